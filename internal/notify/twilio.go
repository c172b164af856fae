package notify

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/campuspool/carpool-backend/internal/config"
)

// TwilioSMS sends codes as SMS through the Twilio REST API.
type TwilioSMS struct {
	client *twilio.RestClient
	from   string
	log    *zap.SugaredLogger
}

// NewTwilioSMS builds the production SMS backend. Credentials must be
// present in config.
func NewTwilioSMS(cfg *config.Config, log *zap.SugaredLogger) (*TwilioSMS, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
		return nil, fmt.Errorf("missing Twilio credentials in configuration")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})

	return &TwilioSMS{
		client: client,
		from:   cfg.TwilioFromNumber,
		log:    log,
	}, nil
}

func (t *TwilioSMS) Send(phone, code string) bool {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(phone)
	params.SetBody(fmt.Sprintf("Your carpool verification code is %s. Do not share it with anyone.", code))

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		t.log.Warnw("failed to send SMS", "to", phone, "error", err)
		return false
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		t.log.Warnw("twilio rejected SMS", "to", phone, "error_code", *resp.ErrorCode)
		return false
	}
	return true
}
