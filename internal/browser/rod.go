// Package browser adapts go-rod to the page abstraction used by discovery.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"tenderwatch/sync-service/internal/scraper"
)

// idleWindow is how long the network must stay quiet to count as settled.
const idleWindow = 500 * time.Millisecond

// fetchJS runs a request with the page's own fetch and returns the status
// and text body. Network failures resolve to status 0.
const fetchJS = `(method, url, body, headers) => {
	const init = { method, headers, credentials: 'include' };
	if (body) init.body = body;
	return fetch(url, init)
		.then(r => r.text().then(t => ({ status: r.status, body: t })))
		.catch(e => ({ status: 0, body: String(e) }));
}`

// Options configures the Chromium launcher.
type Options struct {
	Bin      string // empty lets rod locate or download a browser
	Headless bool
}

// Launcher returns a scraper.Launcher that starts a fresh Chromium per run.
func Launcher(opts Options) scraper.Launcher {
	return func(ctx context.Context) (scraper.Browser, error) {
		l := launcher.New().Headless(opts.Headless).Context(ctx)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}

		b := rod.New().ControlURL(u).Context(ctx)
		if err := b.Connect(); err != nil {
			l.Cleanup()
			return nil, fmt.Errorf("connect chromium: %w", err)
		}
		return &Browser{browser: b, launcher: l}, nil
	}
}

// Browser is a running Chromium instance.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Open creates a blank tab with the given user agent and network events on.
func (b *Browser) Open(ctx context.Context, userAgent string) (scraper.Page, error) {
	p, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	// Enabled up front so event helpers do not disable the domain again
	// when they return.
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("enable network: %w", err)
	}

	listen, stop := context.WithCancel(ctx)
	return &Page{page: p, listen: listen, stop: stop}, nil
}

// Close shuts the browser down and removes its profile directory.
func (b *Browser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

// Page is one Chromium tab.
type Page struct {
	page   *rod.Page
	listen context.Context
	stop   context.CancelFunc

	mu       sync.Mutex
	observer func(scraper.Response)
	closed   bool
	pending  sync.WaitGroup
}

// Observe registers fn for responses received after the next Navigate.
func (p *Page) Observe(fn func(scraper.Response)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

// Navigate loads url, then waits for the network to go idle for at most settle.
func (p *Page) Navigate(ctx context.Context, url string, settle time.Duration) error {
	p.mu.Lock()
	observer := p.observer
	p.mu.Unlock()
	if observer != nil {
		p.watch(observer)
	}

	settleCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	page := p.page.Context(settleCtx)

	idle := page.WaitRequestIdle(idleWindow, nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	idle()
	return nil
}

// watch forwards every finished response to fn. Bodies are fetched in a
// goroutine so a slow body never stalls the event loop.
func (p *Page) watch(fn func(scraper.Response)) {
	page := p.page.Context(p.listen)
	seen := map[proto.NetworkRequestID]*proto.NetworkResponse{}

	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			seen[e.RequestID] = e.Response
		},
		func(e *proto.NetworkLoadingFailed) {
			delete(seen, e.RequestID)
		},
		func(e *proto.NetworkLoadingFinished) {
			resp, ok := seen[e.RequestID]
			if !ok {
				return
			}
			delete(seen, e.RequestID)

			id := e.RequestID
			if !p.track() {
				return
			}
			go func() {
				defer p.pending.Done()
				fn(scraper.Response{
					URL:    resp.URL,
					Status: resp.Status,
					Header: toHTTPHeader(resp.Headers, resp.MIMEType),
					Body:   func() ([]byte, error) { return p.body(page, id) },
				})
			}()
		},
	)
	go wait()
}

func (p *Page) body(page *rod.Page, id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}

func toHTTPHeader(h proto.NetworkHeaders, mimeType string) http.Header {
	out := make(http.Header, len(h)+1)
	for k, v := range h {
		out.Add(k, v.Str())
	}
	if out.Get("Content-Type") == "" && mimeType != "" {
		out.Set("Content-Type", mimeType)
	}
	return out
}

// Cookies returns the cookies visible to the current page URL.
func (p *Page) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Fetch executes req with the page's fetch, inheriting its cookies.
func (p *Page) Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.ProbeResult, error) {
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	res, err := p.page.Context(ctx).Evaluate(
		rod.Eval(fetchJS, req.Method, req.URL, req.Body, headers).ByPromise(),
	)
	if err != nil {
		return scraper.ProbeResult{}, fmt.Errorf("in-page fetch: %w", err)
	}
	return fetchResult(res.Value)
}

// fetchResult decodes the {status, body} object resolved by fetchJS.
func fetchResult(v gson.JSON) (scraper.ProbeResult, error) {
	status := v.Get("status").Int()
	if status == 0 {
		return scraper.ProbeResult{}, errors.New("in-page fetch: " + v.Get("body").Str())
	}
	return scraper.ProbeResult{
		Status: status,
		Body:   []byte(v.Get("body").Str()),
	}, nil
}

// track registers one in-flight observer call. It reports false once the
// page is closing, so no Add can race with the Wait in drain.
func (p *Page) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.pending.Add(1)
	return true
}

// Close stops event delivery and closes the tab.
func (p *Page) Close() error {
	p.drain()
	return p.page.Close()
}

// drain refuses new observer calls, stops listening and waits for the calls
// already running.
func (p *Page) drain() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.stop()
	p.pending.Wait()
}
