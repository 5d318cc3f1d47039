// Package probe issues the single HTTP HEAD request used to decide whether a
// plugin URL is reachable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ferro-labs/plugin-filter/internal/version"
)

// DefaultMaxRedirects matches the redirect limit of the usual HTTP clients.
const DefaultMaxRedirects = 10

var errNotAbsolute = errors.New("missing scheme or host")

// Result is what a single probe observed. StatusCode is 0 when no response
// arrived, in which case Err is set.
type Result struct {
	StatusCode int
	Err        error
	Duration   time.Duration
}

// Prober checks one URL. Implementations must not panic on network failure;
// every problem is reported through Result.Err.
type Prober interface {
	Probe(ctx context.Context, rawURL string) Result
}

// Options configures an HTTPProber.
type Options struct {
	// Client is used for every request. A nil Client gets a fresh one using
	// http.DefaultTransport. The client is copied, never mutated.
	Client *http.Client
	// Timeout bounds each probe, including redirects.
	Timeout time.Duration
	// MaxRedirects caps redirect hops; <= 0 means DefaultMaxRedirects.
	MaxRedirects int
	// UserAgent defaults to version.UserAgent().
	UserAgent string
}

// HTTPProber sends one HEAD request per Probe call. It never retries.
type HTTPProber struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// New builds an HTTPProber. Timeout must be positive.
func New(opts Options) *HTTPProber {
	if opts.Timeout <= 0 {
		panic("probe: timeout must be positive")
	}
	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	if client.CheckRedirect == nil {
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return &HTTPProber{client: client, timeout: opts.Timeout, userAgent: ua}
}

// Timeout returns the per-probe time bound.
func (p *HTTPProber) Timeout() time.Duration { return p.timeout }

// Probe sends HEAD rawURL and reports the final status after redirects.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return Result{Err: err, Duration: time.Since(start)}
	}
	if req.URL.Scheme == "" || req.URL.Host == "" {
		return Result{Err: &url.Error{Op: "parse", URL: rawURL, Err: errNotAbsolute}, Duration: time.Since(start)}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Err: err, Duration: time.Since(start)}
	}
	_ = resp.Body.Close()
	return Result{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

// Describe converts a probe error into the short reason shown to users.
func Describe(err error, timeout time.Duration) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Op == "parse" {
			return "invalid URL: " + urlErr.Err.Error()
		}
		return urlErr.Err.Error()
	}
	return err.Error()
}
