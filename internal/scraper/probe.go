package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxProbeBody caps how much of a probe response is read.
const maxProbeBody = 32 << 20

// ProbeResult is the raw outcome of one probe.
type ProbeResult struct {
	Status int
	Body   []byte
}

// LooksLikeJSON reports whether the probe succeeded with a body that starts
// like a JSON object or array. Only then is it worth parsing.
func (r ProbeResult) LooksLikeJSON() bool {
	if r.Status < 200 || r.Status > 299 {
		return false
	}
	trimmed := bytes.TrimSpace(r.Body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Prober issues a single probe.
type Prober interface {
	Do(ctx context.Context, p Probe) (ProbeResult, error)
}

// HTTPProber replays probes from outside the browser, presenting the
// session credentials harvested from the page.
type HTTPProber struct {
	baseURL string
	session Session
	client  *http.Client
}

// NewHTTPProber constructs a prober for the portal at baseURL.
func NewHTTPProber(baseURL string, session Session, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		baseURL: baseURL,
		session: session,
		client:  &http.Client{Timeout: timeout},
	}
}

// Do sends the probe and returns status and body. Non-2xx statuses are not
// errors here; the caller classifies the result.
func (p *HTTPProber) Do(ctx context.Context, probe Probe) (ProbeResult, error) {
	var body io.Reader
	if len(probe.Body) > 0 {
		body = bytes.NewReader(probe.Body)
	}

	req, err := http.NewRequestWithContext(ctx, probe.Method, p.baseURL+probe.Path, body)
	if err != nil {
		return ProbeResult{}, err
	}
	req.Header = p.session.Header()

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("http %s: %w", probe.Method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return ProbeResult{}, fmt.Errorf("read body: %w", err)
	}

	return ProbeResult{Status: resp.StatusCode, Body: data}, nil
}

// pageProber replays probes through the page's own fetch, so the browser
// applies its cookies and same-origin rules.
type pageProber struct {
	page    Page
	headers map[string]string
}

func (p *pageProber) Do(ctx context.Context, probe Probe) (ProbeResult, error) {
	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	if len(probe.Body) > 0 {
		headers["Content-Type"] = "application/json"
	}
	return p.page.Fetch(ctx, FetchRequest{
		Method:  probe.Method,
		URL:     probe.Path,
		Body:    string(probe.Body),
		Headers: headers,
	})
}
