package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/samvad-hq/acmewire/internal/domain"
	"github.com/samvad-hq/acmewire/internal/journal"
	"github.com/samvad-hq/acmewire/pkg/directories"
	"github.com/samvad-hq/acmewire/pkg/httpclient"
)

type fakeNotifier struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, r domain.Report) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

type fakeJournal struct {
	entries []journal.Entry
}

func (f *fakeJournal) Record(e journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fakeResults struct {
	ok, failed int
}

func (f *fakeResults) IncrementProbeResult(_ string, ok bool) {
	if ok {
		f.ok++
	} else {
		f.failed++
	}
}

// newCA serves a directory whose newNonce endpoint is handled by nonce.
func newCA(t *testing.T, nonce http.HandlerFunc) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
  "newNonce": "%[1]s/acme/new-nonce",
  "newAccount": "%[1]s/acme/new-acct",
  "newOrder": "%[1]s/acme/new-order",
  "revokeCert": "%[1]s/acme/revoke-cert",
  "keyChange": "%[1]s/acme/key-change",
  "meta": {"termsOfService": "%[1]s/tos", "caaIdentities": ["ca.example"]}
}`, srv.URL)
	})
	mux.HandleFunc("/acme/new-nonce", nonce)
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeHealthyDirectory(t *testing.T) {
	srv := newCA(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Replay-Nonce", "abc")
		w.WriteHeader(http.StatusOK)
	})

	notifier := &fakeNotifier{}
	results := &fakeResults{}
	jr := &fakeJournal{}
	svc := NewService(httpclient.NewAgent(), notifier, results, nil, jr)

	reports, err := svc.Run(context.Background(), []directories.Directory{{ID: "ca", DirectoryURL: srv.URL + "/directory"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if !r.Healthy || !r.NonceObtained {
		t.Fatalf("expected healthy report, got %+v", r)
	}
	if r.Endpoints.NewOrder != srv.URL+"/acme/new-order" {
		t.Fatalf("newOrder = %q", r.Endpoints.NewOrder)
	}
	if r.Meta.TermsOfService != srv.URL+"/tos" || len(r.Meta.CAAIdentities) != 1 {
		t.Fatalf("unexpected meta %+v", r.Meta)
	}
	if len(notifier.reports) != 1 || results.ok != 1 || len(jr.entries) != 0 {
		t.Fatalf("unexpected side effects: notified=%d ok=%d journal=%d", len(notifier.reports), results.ok, len(jr.entries))
	}
}

func TestProbeMissingReplayNonce(t *testing.T) {
	srv := newCA(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	jr := &fakeJournal{}
	results := &fakeResults{}
	svc := NewService(httpclient.NewAgent(), nil, results, nil, jr)

	report := svc.Probe(context.Background(), directories.Directory{ID: "ca", DirectoryURL: srv.URL + "/directory"})
	if report.Healthy || report.NonceObtained {
		t.Fatalf("expected unhealthy report, got %+v", report)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %#v", report.Failures)
	}
	f := report.Failures[0]
	if f.Step != stepNonce || f.ProblemType != "Missing header: Replay-Nonce" || f.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected failure %+v", f)
	}
	if len(jr.entries) != 1 || jr.entries[0].DirectoryID != "ca" {
		t.Fatalf("expected failure to be journaled, got %#v", jr.entries)
	}
	if results.failed != 1 {
		t.Fatalf("expected failed result to be counted")
	}
}

func TestProbeRateLimitedNonce(t *testing.T) {
	srv := newCA(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", httpclient.ContentTypeProblem)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	report := svc.Probe(context.Background(), directories.Directory{ID: "ca", DirectoryURL: srv.URL + "/directory"})
	if report.RetryAfterSeconds != 30 {
		t.Fatalf("RetryAfterSeconds = %d", report.RetryAfterSeconds)
	}
	if len(report.Failures) != 1 || report.Failures[0].ProblemType != httpclient.ProblemJSONFail {
		t.Fatalf("HEAD has no body, expected deserialization failure, got %+v", report.Failures)
	}
}

func TestProbeDirectoryProblemDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", httpclient.ContentTypeProblem)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"type":"urn:ietf:params:acme:error:serverInternal","detail":"maintenance"}`)
	}))
	defer srv.Close()

	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	report := svc.Probe(context.Background(), directories.Directory{ID: "ca", DirectoryURL: srv.URL})
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %#v", report.Failures)
	}
	f := report.Failures[0]
	if f.ProblemType != "urn:ietf:params:acme:error:serverInternal" || !strings.Contains(f.Detail, "maintenance") {
		t.Fatalf("unexpected failure %+v", f)
	}
	if f.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", f.StatusCode)
	}
}

func TestProbeHTMLDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title> Hotel   WiFi Login </title></head><body></body></html>`)
	}))
	defer srv.Close()

	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	report := svc.Probe(context.Background(), directories.Directory{ID: "ca", DirectoryURL: srv.URL})
	if report.PageTitle != "Hotel WiFi Login" {
		t.Fatalf("PageTitle = %q", report.PageTitle)
	}
	if len(report.Failures) != 1 || report.Failures[0].ProblemType != problemUnexpectedContent {
		t.Fatalf("unexpected failures %+v", report.Failures)
	}
}

func TestProbeUnreachableDirectory(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	report := svc.Probe(context.Background(), directories.Directory{ID: "ca", DirectoryURL: url})
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %#v", report.Failures)
	}
	f := report.Failures[0]
	if f.ProblemType != httpclient.HTTPReqError || f.StatusCode != 0 {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestRunJoinsNotifyErrors(t *testing.T) {
	srv := newCA(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Replay-Nonce", "abc")
	})
	notifier := &fakeNotifier{err: errors.New("sink down")}
	svc := NewService(httpclient.NewAgent(), notifier, nil, nil, nil)

	_, err := svc.Run(context.Background(), []directories.Directory{{ID: "ca", DirectoryURL: srv.URL + "/directory"}})
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected notify error, got %v", err)
	}
}

func TestRunReportsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	reports, err := svc.Run(ctx, []directories.Directory{{ID: "ca", DirectoryURL: "http://127.0.0.1:1/dir"}})
	if len(reports) != 0 {
		t.Fatalf("expected no work on cancelled context, got %d reports", len(reports))
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to be reported, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 0 of 1 directories") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestRunRequiresDirectories(t *testing.T) {
	svc := NewService(httpclient.NewAgent(), nil, nil, nil, nil)
	if _, err := svc.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error when directory list is empty")
	}
}

func TestPageTitlePrefersOGTitle(t *testing.T) {
	html := `<html><head><title>Fallback</title><meta property="og:title" content="OG Title"></head></html>`
	if got := pageTitle(html); got != "OG Title" {
		t.Fatalf("pageTitle = %q", got)
	}
	if got := pageTitle(`<html><body><h1>Bad Gateway</h1></body></html>`); got != "Bad Gateway" {
		t.Fatalf("pageTitle h1 fallback = %q", got)
	}
}

func TestPageTitleTruncatesOnRuneBoundary(t *testing.T) {
	got := pageTitle("<title>" + strings.Repeat("€", 150) + "</title>")
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title is not valid UTF-8: %q", got)
	}
	// "€" is 3 bytes; 66 of them fit in 200 bytes.
	if len(got) != 198 || got != strings.Repeat("€", 66) {
		t.Fatalf("pageTitle len = %d", len(got))
	}
	if got := pageTitle("<title>" + strings.Repeat("a", 250) + "</title>"); len(got) != maxTitleLen {
		t.Fatalf("ascii title len = %d", len(got))
	}
}
