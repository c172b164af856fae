package notify

import (
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/campuspool/carpool-backend/internal/config"
)

// SMTPEmail sends codes through a plain SMTP relay.
type SMTPEmail struct {
	addr     string
	from     string
	auth     smtp.Auth
	log      *zap.SugaredLogger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmail builds the SMTP email backend from config.
func NewSMTPEmail(cfg *config.Config, log *zap.SugaredLogger) *SMTPEmail {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPEmail{
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from:     cfg.EmailFrom,
		auth:     auth,
		log:      log,
		sendMail: smtp.SendMail,
	}
}

func (e *SMTPEmail) Send(email, code string) bool {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your carpool verification code\r\n\r\n"+
			"Your verification code is %s. It expires in a few minutes.\r\n",
		e.from, email, code,
	))
	if err := e.sendMail(e.addr, e.auth, e.from, []string{email}, msg); err != nil {
		e.log.Warnw("failed to send email", "to", email, "error", err)
		return false
	}
	return true
}
