package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"

	"github.com/go-mail/mail"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/domain"
)

// TLS modes accepted in SMTP_TLS_MODE.
const (
	TLSAuto     = "auto"
	TLSStartTLS = "starttls"
	TLSSSL      = "ssl"
	TLSNone     = "none"
)

// Transport delivers messages through an SMTP relay.
type Transport struct {
	host     string
	port     int
	from     string
	username string
	password string
	tlsMode  string

	send func(d *mail.Dialer, m *mail.Message) error
}

func NewTransport(cfg *config.Config) *Transport {
	return &Transport{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		tlsMode:  cfg.SMTPTLSMode,
		send: func(d *mail.Dialer, m *mail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

// Send builds a MIME message for msg and hands it to the relay. A missing
// host or sender yields domain.ErrConfiguration; a 5xx mailbox rejection
// yields domain.ErrInvalidRecipient.
func (t *Transport) Send(ctx context.Context, msg domain.Message) error {
	if t.host == "" || t.from == "" {
		return fmt.Errorf("smtp host or sender not set: %w", domain.ErrConfiguration)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.send(t.dialer(), t.message(msg)); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && (tpErr.Code == 550 || tpErr.Code == 553) {
			return fmt.Errorf("smtp rejected %s: %s: %w", msg.To, tpErr.Msg, domain.ErrInvalidRecipient)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	slog.Debug("email sent", "host", t.host, "to", msg.To, "subject", msg.Subject)
	return nil
}

func (t *Transport) dialer() *mail.Dialer {
	d := mail.NewDialer(t.host, t.port, t.username, t.password)
	d.TLSConfig = &tls.Config{ServerName: t.host}
	switch t.tlsMode {
	case TLSSSL:
		d.SSL = true
	case TLSStartTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case TLSNone:
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto: STARTTLS when the server offers it
	}
	return d
}

func (t *Transport) message(msg domain.Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.IsHTML {
		m.SetBody("text/html", msg.Body)
	} else {
		m.SetBody("text/plain", msg.Body)
	}
	for _, a := range msg.Attachments {
		content := a.Content
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.Filename, settings...)
	}
	return m
}
