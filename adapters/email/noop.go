package email

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/ports"
)

// NoopSender logs alerts instead of sending them. Used when no SMTP
// server is configured.
type NoopSender struct {
	logger zerolog.Logger
}

// NewNoopSender creates a no-op alert sender.
func NewNoopSender(logger zerolog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the alert and discards it.
func (s *NoopSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Msg("alert sending disabled, dropping notification")
	return nil
}

var _ ports.AlertSender = (*NoopSender)(nil)
