package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ProblemJSONFail is the type of a Problem synthesized when a body served as
	// application/problem+json could not be decoded.
	ProblemJSONFail = "problemJsonFail"
	// HTTPReqError is the type of a Problem synthesized for non-problem error
	// responses and for transport failures.
	HTTPReqError = "httpReqError"

	missingHeaderPrefix = "Missing header: "

	acmeErrorNamespace = "urn:ietf:params:acme:error:"
)

// Problem is the uniform error value surfaced by this package. Problems
// reported by the CA are decoded verbatim from application/problem+json bodies.
type Problem struct {
	Type        string      `json:"type"`
	Detail      string      `json:"detail,omitempty"`
	Status      int         `json:"status,omitempty"`
	Identifier  *Identifier `json:"identifier,omitempty"`
	Subproblems []Problem   `json:"subproblems,omitempty"`
}

// Identifier names the subject a subproblem applies to.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UnmarshalJSON decodes only exact, lower-case member names. encoding/json
// would otherwise accept "TYPE" or "Detail" as the same fields, and a body
// whose type is spelled that way has no valid type member.
func (p *Problem) UnmarshalJSON(data []byte) error {
	var out Problem
	err := decodeExact(data, []exactField{
		{"type", &out.Type},
		{"detail", &out.Detail},
		{"status", &out.Status},
		{"identifier", &out.Identifier},
		{"subproblems", &out.Subproblems},
	})
	if err != nil {
		return err
	}
	*p = out
	return nil
}

// UnmarshalJSON decodes only exact, lower-case member names.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	var out Identifier
	if err := decodeExact(data, []exactField{
		{"type", &out.Type},
		{"value", &out.Value},
	}); err != nil {
		return err
	}
	*id = out
	return nil
}

type exactField struct {
	name string
	dst  any
}

// decodeExact decodes a JSON object member by member. Members whose names do
// not match exactly are ignored.
func decodeExact(data []byte, fields []exactField) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	for _, f := range fields {
		raw, ok := members[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
	}
	return nil
}

func (p *Problem) Error() string {
	var b strings.Builder
	b.WriteString(p.Type)
	if p.Detail != "" {
		b.WriteString(": ")
		b.WriteString(p.Detail)
	}
	for _, sub := range p.Subproblems {
		b.WriteString("; ")
		if sub.Identifier != nil {
			fmt.Fprintf(&b, "%s %s: ", sub.Identifier.Type, sub.Identifier.Value)
		}
		b.WriteString(sub.Error())
	}
	return b.String()
}

// IsBadNonce reports whether the CA rejected the request's anti-replay nonce.
func (p *Problem) IsBadNonce() bool {
	return p != nil && p.Type == acmeErrorNamespace+"badNonce"
}

// IsRateLimited reports whether the CA refused the request due to rate limits.
func (p *Problem) IsRateLimited() bool {
	return p != nil && p.Type == acmeErrorNamespace+"rateLimited"
}

// IsMissingHeader reports whether the problem was raised by RequireHeader.
func (p *Problem) IsMissingHeader() bool {
	return p != nil && strings.HasPrefix(p.Type, missingHeaderPrefix)
}

func missingHeader(name string) *Problem {
	return &Problem{Type: missingHeaderPrefix + name}
}
