package notifiers

import (
	"context"
	"fmt"

	"github.com/samvad-hq/acmewire/internal/logger"
)

// Builder constructs the notifier for one config entry.
type Builder func(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error)

// Builders maps a notifier type to its constructor. Config types are already
// lower-cased by LoadRegistry.
type Builders map[string]Builder

// DefaultBuilders covers every type LoadRegistry accepts.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:   newWebhookNotifier,
		TypeSQS:    newSQSNotifier,
		TypeSNS:    newSNSNotifier,
		TypePubSub: newPubSubNotifier,
	}
}

// Build constructs the notifier for cfg.
func (b Builders) Build(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	build, ok := b[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("notifier %q: unsupported type %q", cfg.ID, cfg.Type)
	}
	return build(ctx, cfg, log)
}

// BuildAll constructs a notifier per config. On failure the notifiers built
// so far are closed and nothing is returned.
func BuildAll(ctx context.Context, b Builders, cfgs []NotifierConfig, log logger.Logger) ([]Notifier, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([]Notifier, 0, len(cfgs))
	for _, cfg := range cfgs {
		n, err := b.Build(ctx, cfg, log)
		if err != nil {
			_ = closeAll(out)
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
