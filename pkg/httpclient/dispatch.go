package httpclient

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Get issues a GET request. It never fails; failures are carried in the Outcome.
func (a *Agent) Get(ctx context.Context, url string) Outcome {
	return a.do(ctx, http.MethodGet, url, nil)
}

// Head issues a HEAD request.
func (a *Agent) Head(ctx context.Context, url string) Outcome {
	return a.do(ctx, http.MethodHead, url, nil)
}

// Post sends body as an application/jose+json request.
func (a *Agent) Post(ctx context.Context, url, body string) Outcome {
	return a.do(ctx, http.MethodPost, url, &body)
}

// Get issues a GET request through DefaultAgent.
func Get(ctx context.Context, url string) Outcome { return DefaultAgent().Get(ctx, url) }

// Head issues a HEAD request through DefaultAgent.
func Head(ctx context.Context, url string) Outcome { return DefaultAgent().Head(ctx, url) }

// Post issues a POST request through DefaultAgent.
func Post(ctx context.Context, url, body string) Outcome { return DefaultAgent().Post(ctx, url, body) }

func (a *Agent) do(ctx context.Context, method, url string, body *string) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	req := a.client.R().SetContext(ctx)

	trace := map[string]any{
		"method": method,
		"url":    url,
	}
	if body != nil {
		req.SetHeader("Content-Type", ContentTypeJOSE).SetBody(*body)
		trace["content_type"] = ContentTypeJOSE
		trace["body"] = *body
	}
	a.log.DebugObj("acme request", "acme_request", trace)

	resp, err := req.Execute(method, url)
	return a.classify(resp, err)
}

// classify maps a resty result onto the three Outcome variants. Any status
// outside 2xx is a StatusError; redirects were already followed by then.
func (a *Agent) classify(resp *resty.Response, err error) Outcome {
	if err != nil {
		// A response paired with an error only happens on a failed redirect
		// policy check, and its body is already closed.
		return &TransportError{Err: err}
	}
	r := newResponse(resp, a.log)
	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return &StatusError{Code: code, Response: r}
	}
	return &Success{Response: r}
}
