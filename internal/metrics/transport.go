package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Transport is a http.RoundTripper that records request count and latency for
// every request it forwards, including ones that never got a response.
type Transport struct {
	metrics   *Metrics
	wrappedRT http.RoundTripper
}

// InstrumentRoundTripper wraps next so that every request is measured.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{metrics: m, wrappedRT: next}
}

// RoundTrip implements http.RoundTripper.
func (it *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	statusCode := 999

	start := time.Now()
	resp, err := it.wrappedRT.RoundTrip(req)
	if resp != nil {
		statusCode = resp.StatusCode
	}

	labels := []string{
		req.URL.Scheme,
		req.URL.Host,
		pathProcessor(req.URL.Path),
		req.Method,
		fmt.Sprintf("%d", statusCode),
	}
	it.metrics.ObserveACMERequestDuration(time.Since(start), labels...)
	it.metrics.IncrementACMERequestCount(labels...)

	return resp, err
}

// pathProcessor keeps only the first two path segments to bound label
// cardinality; ACME resource URLs carry per-account and per-order IDs.
func pathProcessor(path string) string {
	p := strings.Split(path, "/")
	if len(p) > 3 {
		p = p[:3]
	}
	return strings.Join(p, "/")
}
