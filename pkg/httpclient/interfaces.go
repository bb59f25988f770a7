package httpclient

import "context"

// Requester abstracts the verb dispatchers so callers can inject fakes or a
// differently configured Agent.
type Requester interface {
	Get(ctx context.Context, url string) Outcome
	Head(ctx context.Context, url string) Outcome
	Post(ctx context.Context, url, body string) Outcome
}

var _ Requester = (*Agent)(nil)
