package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveOnce(t *testing.T, status int, contentType, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func normalizeGet(t *testing.T, url string) (*Response, *Problem) {
	t.Helper()
	resp, err := Normalize(NewAgent().Get(context.Background(), url))
	if err == nil {
		return resp, nil
	}
	p, ok := AsProblem(err)
	if !ok {
		t.Fatalf("Normalize returned non-problem error %T: %v", err, err)
	}
	return resp, p
}

func TestNormalizeSuccessPassesThrough(t *testing.T) {
	url := serveOnce(t, http.StatusOK, "application/json", `{"ok":true}`)
	resp, p := normalizeGet(t, url)
	if p != nil {
		t.Fatalf("unexpected problem %v", p)
	}
	body, err := resp.ReadBody()
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body = %q", body)
	}
	if _, err := resp.ReadBody(); err == nil {
		t.Fatalf("expected second read to fail")
	}
}

func TestNormalizeProblemDocument(t *testing.T) {
	url := serveOnce(t, http.StatusBadRequest, ContentTypeProblem, `{"type":"urn:x","detail":"bad nonce"}`)
	resp, p := normalizeGet(t, url)
	if resp != nil {
		t.Fatalf("expected no response on failure")
	}
	if p == nil {
		t.Fatalf("expected problem")
	}
	if p.Type != "urn:x" || p.Detail != "bad nonce" {
		t.Fatalf("unexpected problem %+v", p)
	}
	if p.Subproblems != nil {
		t.Fatalf("expected no subproblems, got %+v", p.Subproblems)
	}
}

func TestNormalizeProblemDocumentWithParamsAndSubproblems(t *testing.T) {
	body := `{
  "type": "urn:ietf:params:acme:error:malformed",
  "detail": "Some of the identifiers requested were rejected",
  "status": 400,
  "subproblems": [
    {"type": "urn:ietf:params:acme:error:malformed", "detail": "Invalid underscore", "identifier": {"type": "dns", "value": "_example.org"}},
    {"type": "urn:ietf:params:acme:error:rejectedIdentifier", "detail": "blocked"}
  ]
}`
	url := serveOnce(t, http.StatusBadRequest, "Application/Problem+JSON; charset=utf-8", body)
	_, p := normalizeGet(t, url)
	if p == nil || p.Type != "urn:ietf:params:acme:error:malformed" {
		t.Fatalf("unexpected problem %+v", p)
	}
	if p.Status != 400 {
		t.Fatalf("status = %d", p.Status)
	}
	if len(p.Subproblems) != 2 {
		t.Fatalf("expected 2 subproblems, got %d", len(p.Subproblems))
	}
	first := p.Subproblems[0]
	if first.Identifier == nil || first.Identifier.Value != "_example.org" {
		t.Fatalf("unexpected identifier %+v", first.Identifier)
	}
	if !strings.Contains(p.Error(), "dns _example.org: urn:ietf:params:acme:error:malformed: Invalid underscore") {
		t.Fatalf("Error() = %q", p.Error())
	}
}

func TestNormalizeMalformedProblemKeepsBody(t *testing.T) {
	url := serveOnce(t, http.StatusBadRequest, ContentTypeProblem, "not json")
	_, p := normalizeGet(t, url)
	if p == nil || p.Type != ProblemJSONFail {
		t.Fatalf("unexpected problem %+v", p)
	}

	var v Problem
	parseErr := json.Unmarshal([]byte("not json"), &v)
	if parseErr == nil {
		t.Fatalf("expected a parse error for the fixture")
	}
	if !strings.Contains(p.Detail, parseErr.Error()) {
		t.Fatalf("detail %q does not carry parse error %q", p.Detail, parseErr.Error())
	}
	if !strings.Contains(p.Detail, "not json") {
		t.Fatalf("detail %q does not carry raw body", p.Detail)
	}
}

func TestNormalizeProblemMissingType(t *testing.T) {
	url := serveOnce(t, http.StatusForbidden, ContentTypeProblem, `{"detail":"no type here"}`)
	_, p := normalizeGet(t, url)
	if p == nil || p.Type != ProblemJSONFail {
		t.Fatalf("expected deserialization failure, got %+v", p)
	}
	if !strings.Contains(p.Detail, `{"detail":"no type here"}`) {
		t.Fatalf("detail %q does not carry raw body", p.Detail)
	}
}

func TestNormalizeGenericHTTPError(t *testing.T) {
	url := serveOnce(t, http.StatusInternalServerError, "text/html", "Server Error")
	_, p := normalizeGet(t, url)
	if p == nil || p.Type != HTTPReqError {
		t.Fatalf("unexpected problem %+v", p)
	}
	if want := "500 Internal Server Error body: Server Error"; p.Detail != want {
		t.Fatalf("detail = %q, want %q", p.Detail, want)
	}
}

func TestNormalizeGenericHTTPErrorWithoutContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, p := normalizeGet(t, srv.URL)
	if p == nil || p.Type != HTTPReqError {
		t.Fatalf("unexpected problem %+v", p)
	}
	if want := "503 Service Unavailable body: "; p.Detail != want {
		t.Fatalf("detail = %q, want %q", p.Detail, want)
	}
}

func TestNormalizeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewAgent().Get(context.Background(), url)
	te, ok := out.(*TransportError)
	if !ok {
		t.Fatalf("expected *TransportError, got %T", out)
	}
	if Extract(out) != nil {
		t.Fatalf("expected no response for a transport error")
	}

	_, err := Normalize(out)
	p, ok := AsProblem(err)
	if !ok {
		t.Fatalf("expected *Problem, got %v", err)
	}
	if p.Type != HTTPReqError || p.Detail != te.Err.Error() {
		t.Fatalf("unexpected problem %+v (transport %q)", p, te.Err.Error())
	}
}

func TestExtractReturnsResponseForStatusError(t *testing.T) {
	url := serveOnce(t, http.StatusNotFound, "text/plain", "missing")
	out := NewAgent().Get(context.Background(), url)
	resp := Extract(out)
	if resp == nil {
		t.Fatalf("expected a response")
	}
	if resp.StatusCode() != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	if resp.StatusText() != "Not Found" {
		t.Fatalf("status text = %q", resp.StatusText())
	}
	if got := ReadBodySafely(resp); got != "missing" {
		t.Fatalf("body = %q", got)
	}
}

func TestNormalizeNilOutcome(t *testing.T) {
	if _, err := Normalize(nil); err == nil {
		t.Fatalf("expected error for nil outcome")
	}
	if Extract(nil) != nil {
		t.Fatalf("expected nil response for nil outcome")
	}
}

func TestProblemHelpers(t *testing.T) {
	p := &Problem{Type: "urn:ietf:params:acme:error:badNonce"}
	if !p.IsBadNonce() || p.IsRateLimited() {
		t.Fatalf("classification wrong for %q", p.Type)
	}
	var nilProblem *Problem
	if nilProblem.IsBadNonce() {
		t.Fatalf("nil problem should not classify")
	}
	if got := (&Problem{Type: "t", Detail: "d"}).Error(); got != "t: d" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestNormalizeProblemRequiresExactMemberNames(t *testing.T) {
	url := serveOnce(t, http.StatusBadRequest, ContentTypeProblem, `{"TYPE":"urn:x","Detail":"d"}`)
	_, p := normalizeGet(t, url)
	if p == nil || p.Type != ProblemJSONFail {
		t.Fatalf("expected deserialization failure for upper-case members, got %+v", p)
	}
	if !strings.Contains(p.Detail, `{"TYPE":"urn:x","Detail":"d"}`) {
		t.Fatalf("detail %q does not carry raw body", p.Detail)
	}
}

func TestDecodeProblemIgnoresMiscasedMembers(t *testing.T) {
	p := decodeProblem(`{"type":"urn:x","Detail":"ignored","subproblems":[{"type":"urn:y","identifier":{"type":"dns","Value":"z"}}]}`)
	if p.Type != "urn:x" || p.Detail != "" {
		t.Fatalf("unexpected problem %+v", p)
	}
	if len(p.Subproblems) != 1 || p.Subproblems[0].Identifier == nil || p.Subproblems[0].Identifier.Value != "" {
		t.Fatalf("unexpected subproblems %+v", p.Subproblems)
	}
}
