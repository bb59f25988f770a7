package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderReplayNonce = "Replay-Nonce"
	HeaderLocation    = "Location"
	HeaderRetryAfter  = "Retry-After"
	HeaderLink        = "Link"
)

// RequireHeader returns the named header or a *Problem naming it. Lookup uses
// the canonical header key, so it is case-insensitive; when the header repeats
// the first value wins.
func RequireHeader(resp *Response, name string) (string, error) {
	if resp == nil {
		return "", missingHeader(name)
	}
	values := resp.Header().Values(name)
	if len(values) == 0 {
		return "", missingHeader(name)
	}
	return values[0], nil
}

// RetryAfter parses the Retry-After header in either delay-seconds or
// HTTP-date form, relative to now. A date in the past yields zero.
func RetryAfter(resp *Response, now time.Time) (time.Duration, error) {
	raw, err := RequireHeader(resp, HeaderRetryAfter)
	if err != nil {
		return 0, err
	}
	raw = strings.TrimSpace(raw)

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(raw)
	if err != nil {
		return 0, &Problem{
			Type:   HTTPReqError,
			Detail: fmt.Sprintf("invalid %s header %q", HeaderRetryAfter, raw),
		}
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
