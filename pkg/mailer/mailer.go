package mailer

import (
	"context"
	"crypto/tls"

	cb "github.com/Astemirdum/library-circulation/pkg/circuit_breaker"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

type Config struct {
	Host          string `envconfig:"SMTP_HOST" default:"localhost"`
	Port          int    `envconfig:"SMTP_PORT" default:"587"`
	Username      string `envconfig:"SMTP_USERNAME"`
	Password      string `envconfig:"SMTP_PASSWORD" json:"-"`
	DefaultSender string `envconfig:"MAIL_DEFAULT_SENDER" default:"library@localhost"`
	SkipVerify    bool   `envconfig:"SMTP_SKIP_VERIFY"`
}

type Message struct {
	To      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers through a single SMTP relay guarded by a circuit breaker.
type SMTPSender struct {
	from    string
	dialer  dialer
	breaker *cb.Breaker
}

func NewSMTPSender(cfg Config, breaker *cb.Breaker) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &SMTPSender{
		from:    cfg.DefaultSender,
		dialer:  d,
		breaker: breaker,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("mailer: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := s.build(msg)
	send := func() error { return s.dialer.DialAndSend(m) }
	if s.breaker == nil {
		return errors.Wrap(send(), "smtp send")
	}
	return errors.Wrap(s.breaker.Call(send), "smtp send")
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m
}
