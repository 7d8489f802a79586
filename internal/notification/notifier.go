package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectHeader carries the notification subject on NATS messages.
const SubjectHeader = "Cms-Alert-Subject"

// New builds the notifier named in cfg. nc is only required for "nats".
func New(cfg config.AlerterConfig, nc *nats.Conn) (model.Notifier, error) {
	switch cfg.Notifier {
	case "", "log":
		return LogNotifier{}, nil
	case "nats":
		if nc == nil {
			return nil, fmt.Errorf("nats notifier requires a NATS connection")
		}
		return NewNATSNotifier(nc, cfg.Subject), nil
	case "email":
		return NewEmailNotifier(cfg.SMTP), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Send(subject, body string) error {
	log.Warn().Str("subject", subject).Msg("[alert] " + body)
	return nil
}

// NATSNotifier publishes notifications on a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier creates a notifier publishing on subject.
func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: subject}
}

func (n *NATSNotifier) Send(subject, body string) error {
	msg := nats.NewMsg(n.subject)
	msg.Header.Set(SubjectHeader, subject)
	msg.Data = []byte(body)
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth}
}

// Send sends an email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	recipients := strings.Split(n.cfg.To, ",")

	if err := smtp.SendMail(addr, n.auth, n.cfg.From, recipients, buildMessage(n.cfg, subject, body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(cfg config.SMTPConfig, subject, body string) []byte {
	return []byte("To: " + cfg.To + "\r\n" +
		"From: " + cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body)
}
