package smtp

import (
	"context"
	"log/slog"

	"github.com/techservice/notifier/internal/domain"
)

// LogTransport writes messages to the log instead of sending them.
// Selected with MAIL_TRANSPORT=mock for local development.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg domain.Message) error {
	slog.Info("mock email", "to", msg.To, "subject", msg.Subject, "html", msg.IsHTML, "attachments", len(msg.Attachments))
	return nil
}
