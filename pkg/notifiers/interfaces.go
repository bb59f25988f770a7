package notifiers

import (
	"context"

	"github.com/samvad-hq/acmewire/internal/logger"
)

// Notifier sends events to a downstream sink (webhook, SQS, SNS, Pub/Sub).
type Notifier interface {
	ID() string
	Type() string
	Send(ctx context.Context, evt Event) error
}

func ensureLogger(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.NopLogger{}
	}
	return log
}
