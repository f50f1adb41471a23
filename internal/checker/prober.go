package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	// DefaultProbeTimeout bounds a single probe from request start to response headers.
	DefaultProbeTimeout = 10 * time.Second
	DefaultUserAgent    = "uptimewatch/1.0"

	maxRedirects = 5
)

// ProbeResult is the outcome of one HTTP request.
type ProbeResult struct {
	Success      bool
	Method       string
	StatusCode   int // 0 when no response was received
	ResponseTime time.Duration
	Reason       string // short failure classification, empty on success
	Err          error
}

// ResponseTimeMS returns the measured latency in whole milliseconds.
func (r ProbeResult) ResponseTimeMS() int64 {
	return r.ResponseTime.Milliseconds()
}

// Prober performs a single reachability probe with no retries and no side effects.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

// HTTPProber probes URLs with GET.
//
// By default only transport failures (DNS, connect, TLS, timeout) count as
// failure and the status code is merely recorded. With strict status enabled,
// responses with status >= 400 are failures too.
type HTTPProber struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	strictStatus bool
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithProbeTimeout sets the per-request timeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every probe.
func WithUserAgent(ua string) ProberOption {
	return func(p *HTTPProber) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithStrictStatus makes HTTP status >= 400 a probe failure.
func WithStrictStatus(strict bool) ProberOption {
	return func(p *HTTPProber) { p.strictStatus = strict }
}

// WithHTTPClient replaces the underlying client (tests use httptest clients).
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProber creates a prober with a pooled transport. Timeouts are applied
// per request through the context rather than on the client.
func NewHTTPProber(opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		timeout:   DefaultProbeTimeout,
		userAgent: DefaultUserAgent,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     10,
				IdleConnTimeout:     60 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe issues a single GET against url.
func (p *HTTPProber) Probe(ctx context.Context, url string) ProbeResult {
	return p.do(ctx, http.MethodGet, url)
}

// ProbeHeadThenGet tries HEAD first and falls back to GET when HEAD fails at
// the transport level. Used for ad-hoc checks where bandwidth matters more
// than determinism.
func (p *HTTPProber) ProbeHeadThenGet(ctx context.Context, url string) ProbeResult {
	res := p.do(ctx, http.MethodHead, url)
	if res.StatusCode != 0 {
		return res
	}
	return p.do(ctx, http.MethodGet, url)
}

// Close releases idle connections.
func (p *HTTPProber) Close() {
	p.client.CloseIdleConnections()
}

func (p *HTTPProber) do(ctx context.Context, method, url string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := ProbeResult{Method: method}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		res.Reason = "invalid request"
		res.Err = fmt.Errorf("failed to create request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	res.ResponseTime = time.Since(start)
	if err != nil {
		res.Reason = classifyError(err)
		res.Err = fmt.Errorf("request failed: %w", err)
		return res
	}
	resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if p.strictStatus && resp.StatusCode >= http.StatusBadRequest {
		res.Reason = fmt.Sprintf("http %d", resp.StatusCode)
		return res
	}
	res.Success = true
	return res
}

// classifyError maps transport errors to a short, stable reason for logs.
func classifyError(err error) string {
	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr), errors.As(err, &recordErr):
		return "tls"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "network"
	}
}
