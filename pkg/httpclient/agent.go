package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultConnectTimeout bounds dialing and the TLS handshake.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultReadTimeout bounds every read from the connection, including the
	// wait for response headers.
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds every write to the connection.
	DefaultWriteTimeout = 30 * time.Second

	// ContentTypeJOSE is the content type of signed ACME request envelopes.
	ContentTypeJOSE = "application/jose+json"
	// ContentTypeProblem is the content type of RFC 7807 problem documents.
	ContentTypeProblem = "application/problem+json"

	defaultUserAgent = "acmewire/1.0"
	keepAlive        = 30 * time.Second
)

// Timeouts holds the per-phase network timeouts of an Agent.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// DefaultTimeouts returns the fixed 30s connect/read/write configuration.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: DefaultConnectTimeout,
		Read:    DefaultReadTimeout,
		Write:   DefaultWriteTimeout,
	}
}

// Agent is a pooled HTTP client for talking to an ACME server. It is safe for
// concurrent use and is never reconfigured after construction.
type Agent struct {
	client    *resty.Client
	timeouts  Timeouts
	userAgent string
	log       Logger
}

// Option customizes an Agent at construction.
type Option func(*agentOptions)

type agentOptions struct {
	log       Logger
	userAgent string
	tlsConfig *tls.Config
	wrap      []func(http.RoundTripper) http.RoundTripper
}

// WithLogger sets the logger used for request tracing and swallowed read errors.
func WithLogger(log Logger) Option {
	return func(o *agentOptions) { o.log = log }
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(o *agentOptions) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithTLSConfig sets the TLS client configuration, e.g. to trust a private CA.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *agentOptions) { o.tlsConfig = cfg }
}

// WithRoundTripper wraps the agent's transport, e.g. for instrumentation.
// Wrappers are applied in the order given, the last one outermost.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(o *agentOptions) {
		if wrap != nil {
			o.wrap = append(o.wrap, wrap)
		}
	}
}

// NewAgent builds an Agent with the default timeouts.
func NewAgent(opts ...Option) *Agent {
	o := agentOptions{userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = ensureLogger(o.log)

	timeouts := DefaultTimeouts()
	return &Agent{
		client:    newRestyBaseClient(timeouts, o),
		timeouts:  timeouts,
		userAgent: o.userAgent,
		log:       o.log,
	}
}

var (
	defaultAgentOnce sync.Once
	defaultAgent     *Agent
)

// DefaultAgent returns the process-wide Agent, building it on first use.
func DefaultAgent() *Agent {
	defaultAgentOnce.Do(func() {
		defaultAgent = NewAgent()
	})
	return defaultAgent
}

// Timeouts returns the agent's network timeouts.
func (a *Agent) Timeouts() Timeouts { return a.timeouts }

// UserAgent returns the User-Agent header value sent by the agent.
func (a *Agent) UserAgent() string { return a.userAgent }

// newRestyBaseClient creates a resty.Client over a pooled transport with
// per-phase timeouts. There is no overall request timeout; each phase is
// bounded on its own.
func newRestyBaseClient(timeouts Timeouts, o agentOptions) *resty.Client {
	var rt http.RoundTripper = newTransport(timeouts, o.tlsConfig)
	for _, wrap := range o.wrap {
		rt = wrap(rt)
	}

	c := resty.NewWithClient(&http.Client{Transport: rt})
	c.SetLogger(restyLogger{log: o.log})
	c.SetHeader("User-Agent", o.userAgent)
	c.SetDoNotParseResponse(true)
	return c
}

func newTransport(timeouts Timeouts, tlsConfig *tls.Config) *http.Transport {
	tr := cleanhttp.DefaultPooledTransport()
	dialer := &net.Dialer{
		Timeout:   timeouts.Connect,
		KeepAlive: keepAlive,
	}
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &deadlineConn{Conn: conn, read: timeouts.Read, write: timeouts.Write}, nil
	}
	tr.TLSHandshakeTimeout = timeouts.Connect
	tr.ResponseHeaderTimeout = timeouts.Read
	if tlsConfig != nil {
		tr.TLSClientConfig = tlsConfig.Clone()
	}
	return tr
}

// deadlineConn arms a fresh deadline before every read and write, so a stalled
// peer fails the call after the configured idle time rather than hanging.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
