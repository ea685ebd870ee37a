package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// SMTPSender delivers email over SMTP, with or without implicit TLS.
type SMTPSender struct {
	config config.SMTPConfig
	logger *logrus.Entry
	auth   smtp.Auth
}

// NewSMTPSender creates an email sender from SMTP configuration
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		config: cfg,
		logger: utils.ComponentLogger("email_sender"),
	}
	if cfg.Username != "" && cfg.Password != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Send sends one email message
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s.config.Host == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "SMTP host not configured", "")
	}

	message := s.buildMessage(to, subject, body)

	var err error
	if s.config.UseTLS {
		err = s.sendTLS(to, message)
	} else {
		err = s.sendPlain(to, message)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrCodeProvider, "Failed to send email", err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Debug("Email sent")
	return nil
}

func (s *SMTPSender) buildMessage(to, subject, body string) []byte {
	from := s.config.FromEmail
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (s *SMTPSender) addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *SMTPSender) sendPlain(to string, message []byte) error {
	return smtp.SendMail(s.addr(), s.auth, s.config.FromEmail, []string{to}, message)
}

func (s *SMTPSender) sendTLS(to string, message []byte) error {
	conn, err := tls.Dial("tcp", s.addr(), &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.config.FromEmail); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(message); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
