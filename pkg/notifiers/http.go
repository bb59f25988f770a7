package notifiers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/acmewire/internal/logger"
)

const (
	webhookHeaderPrefix = "X-Acme-"
	maxErrorBodyBytes   = 512
)

// webhookBody is the JSON document POSTed to webhooks: the event plus a
// one-line summary chat integrations can show as-is.
type webhookBody struct {
	Summary string `json:"summary"`
	Event
}

// webhookNotifier delivers reports to an HTTP endpoint. Report attributes are
// mirrored into X-Acme-* headers so receivers can route before parsing.
type webhookNotifier struct {
	id     string
	method string
	url    string
	client *resty.Client
	log    logger.Logger
}

func newWebhookNotifier(_ context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("notifier %q missing http configuration", cfg.ID)
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.HTTP.Headers)

	return &webhookNotifier{
		id:     cfg.ID,
		method: cfg.HTTP.Method,
		url:    cfg.HTTP.URL,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (w *webhookNotifier) ID() string   { return w.id }
func (w *webhookNotifier) Type() string { return TypeHTTP }

func (w *webhookNotifier) Send(ctx context.Context, evt Event) error {
	req := w.client.R().
		SetContext(ctx).
		SetBody(webhookBody{Summary: reportSummary(evt), Event: evt})
	for k, v := range reportAttributes(evt) {
		req.SetHeader(attributeHeader(k), v)
	}

	resp, err := req.Execute(w.method, w.url)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.url, err)
	}
	if resp.IsError() {
		body := resp.Body()
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return fmt.Errorf("webhook %s answered %s: %s", w.url, resp.Status(), strings.TrimSpace(string(body)))
	}
	w.log.DebugObj("webhook notifier delivered report", "notifier_http_delivery", map[string]any{
		"notifier_id":  w.id,
		"directory_id": evt.DirectoryID,
		"status":       resp.StatusCode(),
	})
	return nil
}

// attributeHeader maps "retry_after_seconds" to "X-Acme-Retry-After-Seconds".
func attributeHeader(attr string) string {
	return http.CanonicalHeaderKey(webhookHeaderPrefix + strings.ReplaceAll(attr, "_", "-"))
}
