package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/gpsform/internal/record"
)

const (
	// DefaultProbeTimeout bounds a single reachability probe.
	DefaultProbeTimeout = 3 * time.Second
)

// Prober checks whether the remote endpoint is reachable.
// A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber probes a URL with a HEAD request.
//
// Fails closed: transport errors and any status outside 2xx/3xx count as
// unreachable, except 405. Redirects are not followed; a 3xx already proves
// the host answers. A 405 comes from a POST-only route such as the submission
// endpoint itself, which is the default probe target.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for url. If timeout is 0, uses DefaultProbeTimeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// URL returns the probed URL.
func (p *HTTPProber) URL() string {
	return p.url
}

// Probe performs one HEAD request.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", "gpsform/"+record.Version)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute probe: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: HTTP %d", p.url, resp.StatusCode)
	}
	return nil
}
