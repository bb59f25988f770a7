package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outcome is the result of a single request attempt. It is one of *Success,
// *StatusError or *TransportError; the set is closed, and every variant has
// to say how it normalizes and which response it carries.
type Outcome interface {
	response() *Response
	normalize() (*Response, error)
}

// Success is a 2xx response.
type Success struct {
	Response *Response
}

// StatusError is a response with a status outside 2xx.
type StatusError struct {
	Code     int
	Response *Response
}

// TransportError is a request that never produced a response: DNS, dial, TLS
// or timeout failures, or a connection reset before the status line.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Extract returns whatever response the outcome carries, or nil when no
// response was received. It does not consume the body.
func Extract(o Outcome) *Response {
	if o == nil {
		return nil
	}
	return o.response()
}

// Normalize passes a successful response through and turns every failure into
// a *Problem. The returned error, when non-nil, is always a *Problem.
func Normalize(o Outcome) (*Response, error) {
	if o == nil {
		return nil, &Problem{Type: HTTPReqError, Detail: "no request outcome"}
	}
	return o.normalize()
}

// AsProblem extracts a *Problem from err's chain.
func AsProblem(err error) (*Problem, bool) {
	var p *Problem
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

func (o *Success) response() *Response        { return o.Response }
func (o *StatusError) response() *Response    { return o.Response }
func (o *TransportError) response() *Response { return nil }

func (o *Success) normalize() (*Response, error) {
	return o.Response, nil
}

func (o *StatusError) normalize() (*Response, error) {
	resp := o.Response
	if resp.ContentType() == ContentTypeProblem {
		return nil, decodeProblem(ReadBodySafely(resp))
	}

	status := fmt.Sprintf("%d %s", o.Code, resp.StatusText())
	body := ReadBodySafely(resp)
	return nil, &Problem{
		Type:   HTTPReqError,
		Detail: fmt.Sprintf("%s body: %s", status, body),
	}
}

func (o *TransportError) normalize() (*Response, error) {
	return nil, &Problem{
		Type:   HTTPReqError,
		Detail: o.Err.Error(),
	}
}

// decodeProblem parses a problem document. A body that does not decode still
// yields a Problem carrying the parse error and the raw text.
func decodeProblem(body string) *Problem {
	var p Problem
	err := json.Unmarshal([]byte(body), &p)
	if err == nil {
		err = p.validate()
	}
	if err != nil {
		return &Problem{
			Type:   ProblemJSONFail,
			Detail: fmt.Sprintf("Failed to deserialize application/problem+json (%s) body: %s", err, body),
		}
	}
	return &p
}

func (p *Problem) validate() error {
	if p.Type == "" {
		return errors.New("missing field type")
	}
	for i := range p.Subproblems {
		if err := p.Subproblems[i].validate(); err != nil {
			return fmt.Errorf("subproblems[%d]: %w", i, err)
		}
	}
	return nil
}
