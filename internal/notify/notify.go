// Package notify delivers one-time codes out of band. A Notifier is
// selected once at startup by configuration and injected into the
// identity flows; transport errors never cross this boundary, they
// collapse to a boolean.
package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/campuspool/carpool-backend/internal/config"
)

// Notifier is one delivery channel for one-time codes.
type Notifier interface {
	// Send delivers the code to the identifier (phone or email).
	// Returns false on any delivery failure.
	Send(identifier, code string) bool
}

// Console prints codes to the log. The development default for both
// channels.
type Console struct {
	Channel string // "sms" | "email"
	Log     *zap.SugaredLogger
}

func (c *Console) Send(identifier, code string) bool {
	c.Log.Infow("otp delivery (console)",
		"channel", c.Channel,
		"to", identifier,
		"code", code,
	)
	return true
}

// NewSMSNotifier selects the SMS backend from config.
func NewSMSNotifier(cfg *config.Config, log *zap.SugaredLogger) (Notifier, error) {
	switch cfg.SMSProvider {
	case "console", "":
		return &Console{Channel: "sms", Log: log}, nil
	case "twilio":
		return NewTwilioSMS(cfg, log)
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", cfg.SMSProvider)
	}
}

// NewEmailNotifier selects the email backend from config.
func NewEmailNotifier(cfg *config.Config, log *zap.SugaredLogger) (Notifier, error) {
	switch cfg.EmailProvider {
	case "console", "":
		return &Console{Channel: "email", Log: log}, nil
	case "smtp":
		return NewSMTPEmail(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}
