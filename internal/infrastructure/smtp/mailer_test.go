package smtp

import (
	"bytes"
	"context"
	"errors"
	"net/textproto"
	"testing"

	"github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/domain"
)

func newTestTransport(send func(*mail.Dialer, *mail.Message) error) *Transport {
	tr := NewTransport(&config.Config{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		SMTPFrom:    "noreply@example.com",
		SMTPTLSMode: TLSAuto,
	})
	tr.send = send
	return tr
}

func TestSend_BuildsMessage(t *testing.T) {
	var raw bytes.Buffer
	tr := newTestTransport(func(d *mail.Dialer, m *mail.Message) error {
		assert.Equal(t, "smtp.example.com", d.Host)
		assert.Equal(t, 587, d.Port)
		_, err := m.WriteTo(&raw)
		return err
	})

	err := tr.Send(context.Background(), domain.Message{
		To:      "customer@example.com",
		Subject: "Request received",
		Body:    "<p>Thanks</p>",
		IsHTML:  true,
		Attachments: []domain.Attachment{
			{Filename: "invoice.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		},
	})
	require.NoError(t, err)

	out := raw.String()
	assert.Contains(t, out, "To: customer@example.com")
	assert.Contains(t, out, "Subject: Request received")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, "invoice.pdf")
	assert.Contains(t, out, "application/pdf")
}

func TestSend_MissingHostIsConfigurationError(t *testing.T) {
	tr := newTestTransport(func(*mail.Dialer, *mail.Message) error {
		t.Fatal("must not dial")
		return nil
	})
	tr.host = ""
	err := tr.Send(context.Background(), domain.Message{To: "a@b.com"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSend_MailboxRejection(t *testing.T) {
	tr := newTestTransport(func(*mail.Dialer, *mail.Message) error {
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	})
	err := tr.Send(context.Background(), domain.Message{To: "gone@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

func TestSend_TransientError(t *testing.T) {
	tr := newTestTransport(func(*mail.Dialer, *mail.Message) error {
		return errors.New("connection reset")
	})
	err := tr.Send(context.Background(), domain.Message{To: "a@b.com"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrConfiguration))
	assert.False(t, errors.Is(err, domain.ErrInvalidRecipient))
}

func TestDialer_TLSModes(t *testing.T) {
	tr := newTestTransport(nil)

	tr.tlsMode = TLSSSL
	assert.True(t, tr.dialer().SSL)

	tr.tlsMode = TLSStartTLS
	assert.Equal(t, mail.MandatoryStartTLS, tr.dialer().StartTLSPolicy)

	tr.tlsMode = TLSNone
	assert.Equal(t, mail.NoStartTLS, tr.dialer().StartTLSPolicy)
}
