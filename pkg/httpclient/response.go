package httpclient

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const (
	// maxBodyBytes bounds how much of a response body is ever buffered.
	maxBodyBytes = 1 << 20 // 1 MiB
)

var errBodyConsumed = errors.New("response body already consumed")

// Response is a received HTTP response. Its body is a stream that can be
// consumed exactly once, by ReadBody, ReadBodySafely or Close.
type Response struct {
	raw      *resty.Response
	log      Logger
	consumed atomic.Bool
}

func newResponse(raw *resty.Response, log Logger) *Response {
	return &Response{raw: raw, log: ensureLogger(log)}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.raw.StatusCode() }

// Status returns the status line as received, e.g. "500 Internal Server Error".
func (r *Response) Status() string {
	if s := strings.TrimSpace(r.raw.Status()); s != "" {
		return s
	}
	code := r.StatusCode()
	return strings.TrimSpace(strconv.Itoa(code) + " " + http.StatusText(code))
}

// StatusText returns the reason phrase of the status line, falling back to the
// standard text for the code when the peer sent none.
func (r *Response) StatusText() string {
	code := strconv.Itoa(r.StatusCode())
	text := strings.TrimSpace(strings.TrimPrefix(r.Status(), code))
	if text == "" {
		text = http.StatusText(r.StatusCode())
	}
	return text
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	if h := r.raw.Header(); h != nil {
		return h
	}
	return http.Header{}
}

// ContentType returns the lower-cased media type of the Content-Type header
// without parameters, or "" when the header is absent.
func (r *Response) ContentType() string {
	v := r.Header().Get("Content-Type")
	if v == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// URL returns the final request URL after redirects.
func (r *Response) URL() string {
	if r.raw.RawResponse == nil || r.raw.RawResponse.Request == nil {
		return ""
	}
	return r.raw.RawResponse.Request.URL.String()
}

// ReadBody reads the whole body and reports any read failure. Use it for
// payloads the caller actually has to decode.
func (r *Response) ReadBody() ([]byte, error) {
	body, ok := r.take()
	if !ok {
		return nil, errBodyConsumed
	}
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, maxBodyBytes))
}

// Close discards the body without reading it.
func (r *Response) Close() error {
	body, ok := r.take()
	if !ok {
		return nil
	}
	return body.Close()
}

func (r *Response) take() (io.ReadCloser, bool) {
	if r.consumed.Swap(true) {
		return nil, false
	}
	body := r.raw.RawBody()
	if body == nil {
		body = http.NoBody
	}
	return body, true
}

// ReadBodySafely reads the response body to text, never failing. Some CAs tear
// down the TLS connection right after the last body byte; whatever was received
// before a read error is returned. The result is bounded to maxBodyBytes and is
// empty if the body was already consumed.
func ReadBodySafely(resp *Response) string {
	if resp == nil {
		return ""
	}
	body, ok := resp.take()
	if !ok {
		return ""
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		resp.log.DebugObj("response body read ended early", "body_read", map[string]any{
			"url":        resp.URL(),
			"bytes_read": len(data),
			"error":      err.Error(),
		})
	}
	return string(data)
}
