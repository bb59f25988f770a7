package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samvad-hq/acmewire/internal/domain"
	"github.com/samvad-hq/acmewire/internal/journal"
	"github.com/samvad-hq/acmewire/internal/logger"
	"github.com/samvad-hq/acmewire/pkg/directories"
	"github.com/samvad-hq/acmewire/pkg/httpclient"
)

const (
	stepDirectory = "directory"
	stepNonce     = "new_nonce"

	problemUnexpectedContent = "unexpectedContent"
	problemDirectoryDecode   = "directoryDecodeFailed"
)

// Service probes ACME directories: it fetches each directory document and
// asks the advertised newNonce endpoint for a fresh nonce.
type Service struct {
	client   httpclient.Requester
	notifier ReportNotifier
	journal  Journal
	results  ResultRecorder
	log      logger.Logger
	now      func() time.Time
}

// NewService wires a probe with its HTTP requester and optional collaborators.
// Any of notifier, store and results may be nil.
func NewService(client httpclient.Requester, notifier ReportNotifier, results ResultRecorder, log logger.Logger, store Journal) *Service {
	if client == nil {
		client = httpclient.DefaultAgent()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{
		client:   client,
		notifier: notifier,
		journal:  store,
		results:  results,
		log:      log,
		now:      time.Now,
	}
}

// Run probes every directory in order and returns the reports gathered before
// ctx was cancelled. Probe and delivery failures are joined into the error,
// and so is the cancellation when it cut the run short.
func (s *Service) Run(ctx context.Context, dirs []directories.Directory) ([]domain.Report, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("probe service is not initialized")
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories configured for probing")
	}

	reports := make([]domain.Report, 0, len(dirs))
	var errs []error
	for i, dir := range dirs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("probe interrupted after %d of %d directories: %w", i, len(dirs), err))
			break
		}

		report := s.Probe(ctx, dir)
		reports = append(reports, report)
		if !report.Healthy {
			errs = append(errs, fmt.Errorf("directory %s: %d failed step(s)", dir.ID, len(report.Failures)))
		}

		if err := s.deliver(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Probe runs the checks against a single directory. It never fails; problems
// are carried in the report.
func (s *Service) Probe(ctx context.Context, dir directories.Directory) domain.Report {
	start := s.now()
	report := domain.Report{
		DirectoryID:  dir.ID,
		DirectoryURL: dir.DirectoryURL,
		CheckedAt:    start.UTC(),
	}

	if s.fetchDirectory(ctx, dir, &report) {
		s.fetchNonce(ctx, dir, &report)
	}

	report.Healthy = len(report.Failures) == 0
	report.ElapsedMs = s.now().Sub(start).Milliseconds()

	if s.results != nil {
		s.results.IncrementProbeResult(dir.ID, report.Healthy)
	}
	level := s.log.InfoObj
	if !report.Healthy {
		level = s.log.WarnObj
	}
	level("directory probe completed", "probe_result", map[string]any{
		"directory_id": dir.ID,
		"healthy":      report.Healthy,
		"failures":     len(report.Failures),
		"elapsed_ms":   report.ElapsedMs,
	})
	return report
}

func (s *Service) fetchDirectory(ctx context.Context, dir directories.Directory, report *domain.Report) bool {
	url := dir.DirectoryURL
	out := s.client.Get(ctx, url)
	s.logOutcome(dir, stepDirectory, http.MethodGet, url, out)
	status := statusOf(out)

	resp, err := httpclient.Normalize(out)
	if err != nil {
		s.fail(dir, report, stepDirectory, http.MethodGet, url, status, err)
		return false
	}

	if resp.ContentType() == "text/html" {
		report.PageTitle = pageTitle(httpclient.ReadBodySafely(resp))
		s.fail(dir, report, stepDirectory, http.MethodGet, url, status, &httpclient.Problem{
			Type:   problemUnexpectedContent,
			Detail: fmt.Sprintf("expected a JSON directory, got HTML page %q", report.PageTitle),
		})
		return false
	}

	body, err := resp.ReadBody()
	if err == nil {
		err = json.Unmarshal(body, &directoryDoc{endpoints: &report.Endpoints, meta: &report.Meta})
	}
	if err == nil && report.Endpoints.NewNonce == "" {
		err = errors.New("directory does not advertise newNonce")
	}
	if err != nil {
		s.fail(dir, report, stepDirectory, http.MethodGet, url, status, &httpclient.Problem{
			Type:   problemDirectoryDecode,
			Detail: err.Error(),
		})
		return false
	}
	return true
}

func (s *Service) fetchNonce(ctx context.Context, dir directories.Directory, report *domain.Report) {
	url := report.Endpoints.NewNonce
	out := s.client.Head(ctx, url)
	s.logOutcome(dir, stepNonce, http.MethodHead, url, out)
	status := statusOf(out)

	if raw := httpclient.Extract(out); raw != nil {
		if d, err := httpclient.RetryAfter(raw, s.now()); err == nil {
			report.RetryAfterSeconds = int64(d / time.Second)
		}
	}

	resp, err := httpclient.Normalize(out)
	if err != nil {
		s.fail(dir, report, stepNonce, http.MethodHead, url, status, err)
		return
	}
	defer resp.Close()

	if _, err := httpclient.RequireHeader(resp, httpclient.HeaderReplayNonce); err != nil {
		s.fail(dir, report, stepNonce, http.MethodHead, url, status, err)
		return
	}
	report.NonceObtained = true
}

// fail appends a failure to the report and journals it.
func (s *Service) fail(dir directories.Directory, report *domain.Report, step, method, url string, status int, err error) {
	f := domain.Failure{
		Step:       step,
		Method:     method,
		URL:        url,
		StatusCode: status,
	}
	if p, ok := httpclient.AsProblem(err); ok {
		f.ProblemType = p.Type
		f.Detail = p.Error()
	} else {
		f.ProblemType = httpclient.HTTPReqError
		f.Detail = err.Error()
	}
	report.Failures = append(report.Failures, f)

	if s.journal == nil {
		return
	}
	entry := journal.Entry{
		DirectoryID: dir.ID,
		Method:      method,
		URL:         url,
		StatusCode:  status,
		ProblemType: f.ProblemType,
		Detail:      f.Detail,
		RecordedAt:  s.now().UTC(),
	}
	if jerr := s.journal.Record(entry); jerr != nil {
		s.log.ErrorObj("journal record failed", "journal_error", map[string]any{
			"directory_id": dir.ID,
			"error":        jerr.Error(),
		})
	}
}

func (s *Service) deliver(ctx context.Context, report domain.Report) error {
	if s.notifier == nil {
		return nil
	}
	delivered, err := s.notifier.Notify(ctx, report)
	if err != nil {
		s.log.ErrorObj("probe report delivery failed", "notify_error", map[string]any{
			"directory_id": report.DirectoryID,
			"delivered":    delivered,
			"error":        err.Error(),
		})
		return fmt.Errorf("notify %s: %w", report.DirectoryID, err)
	}
	return nil
}

// logOutcome records whatever response came back before it is normalized.
func (s *Service) logOutcome(dir directories.Directory, step, method, url string, out httpclient.Outcome) {
	fields := map[string]any{
		"directory_id": dir.ID,
		"step":         step,
		"method":       method,
		"url":          url,
	}
	if resp := httpclient.Extract(out); resp != nil {
		fields["status"] = resp.Status()
		fields["content_type"] = resp.ContentType()
	} else {
		fields["status"] = "no response"
	}
	s.log.DebugObj("acme response", "acme_response", fields)
}

func statusOf(out httpclient.Outcome) int {
	if resp := httpclient.Extract(out); resp != nil {
		return resp.StatusCode()
	}
	return 0
}

// directoryDoc decodes a directory document into the report's endpoint and
// meta fields.
type directoryDoc struct {
	endpoints *domain.Endpoints
	meta      *domain.Meta
}

func (d *directoryDoc) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, d.endpoints); err != nil {
		return err
	}
	var wrapper struct {
		Meta *domain.Meta `json:"meta"`
	}
	wrapper.Meta = d.meta
	return json.Unmarshal(data, &wrapper)
}
