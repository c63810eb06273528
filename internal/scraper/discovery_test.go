package scraper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderwatch/sync-service/internal/scraper"
)

// fakePage replays canned responses to the observer during Navigate and
// answers in-page fetches with fetch.
type fakePage struct {
	responses []scraper.Response
	navErr    error
	cookies   []*http.Cookie
	html      string
	fetch     func(scraper.FetchRequest) (scraper.ProbeResult, error)

	mu       sync.Mutex
	observer func(scraper.Response)
	fetched  []scraper.FetchRequest
	navURL   string
	closed   bool
}

func (p *fakePage) Observe(fn func(scraper.Response)) { p.observer = fn }

func (p *fakePage) Navigate(ctx context.Context, url string, settle time.Duration) error {
	p.navURL = url
	var wg sync.WaitGroup
	for _, r := range p.responses {
		wg.Add(1)
		go func(r scraper.Response) {
			defer wg.Done()
			p.observer(r)
		}(r)
	}
	wg.Wait()
	return p.navErr
}

func (p *fakePage) Cookies(ctx context.Context) ([]*http.Cookie, error) { return p.cookies, nil }
func (p *fakePage) HTML(ctx context.Context) (string, error)            { return p.html, nil }

func (p *fakePage) Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.ProbeResult, error) {
	p.mu.Lock()
	p.fetched = append(p.fetched, req)
	p.mu.Unlock()
	if p.fetch == nil {
		return scraper.ProbeResult{Status: http.StatusForbidden}, nil
	}
	return p.fetch(req)
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page    *fakePage
	openErr error
	closed  bool
}

func (b *fakeBrowser) Open(ctx context.Context, userAgent string) (scraper.Page, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func launcherFor(b *fakeBrowser) scraper.Launcher {
	return func(ctx context.Context) (scraper.Browser, error) { return b, nil }
}

func jsonResponse(url, body string) scraper.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json;charset=UTF-8")
	return scraper.Response{
		URL:    url,
		Status: 200,
		Header: h,
		Body:   func() ([]byte, error) { return []byte(body), nil },
	}
}

// portal returns a test server that answers the listing only on hitMethod +
// hitPath and 403 everywhere else. A non-empty csrf must be echoed in
// X-XSRF-TOKEN for the hit to count.
func portal(t *testing.T, hitMethod, hitPath, csrf string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == hitMethod && r.URL.Path == hitPath &&
			(csrf == "" || r.Header.Get("X-XSRF-TOKEN") == csrf) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content":[{"id":1,"noticeNumber":"POST/OR/1/2024"},{"id":2,"noticeNumber":"POST/OSK/2/2024"}]}`))
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEngine(b *fakeBrowser, baseURL string) *scraper.Engine {
	return scraper.NewEngine(launcherFor(b), scraper.Options{
		BaseURL:        baseURL,
		ListURL:        scraper.ListURL(baseURL, org),
		SettleTimeout:  time.Second,
		CaptureTimeout: 50 * time.Millisecond,
		ProbeTimeout:   time.Second,
		Candidates:     scraper.Candidates(org),
	}, nil)
}

func TestDiscover_PassiveCapture(t *testing.T) {
	srv := portal(t, "", "", "")
	page := &fakePage{responses: []scraper.Response{
		jsonResponse(srv.URL+"/static/config.json", `[{"irrelevant":true}]`),
		jsonResponse(srv.URL+scraper.CandidateEndpoints[0]+"?page=0", `{"content":[{"id":1},{"id":2},{"id":3}]}`),
	}}
	b := &fakeBrowser{page: page}

	res, err := newEngine(b, srv.URL).Discover(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, scraper.StagePassive, res.Strategy)
	assert.Len(t, res.Records, 3)
	assert.Zero(t, res.Probes)
	assert.Equal(t, []scraper.Stage{scraper.StageNavigate, scraper.StagePassive, scraper.StageFound}, res.Trail)
	assert.True(t, strings.HasPrefix(page.navURL, srv.URL+"/app/demand/notice/public/current/list?"))
	assert.True(t, page.closed)
	assert.True(t, b.closed)
}

func TestDiscover_PassiveIgnoresNonJSONAndEmpty(t *testing.T) {
	srv := portal(t, http.MethodGet, "/nowhere", "")
	html := jsonResponse(srv.URL+scraper.CandidateEndpoints[0], `[{"id":1}]`)
	html.Header.Set("Content-Type", "text/html")
	page := &fakePage{responses: []scraper.Response{
		html,
		jsonResponse(srv.URL+scraper.CandidateEndpoints[1], `{"content":[]}`),
	}}

	res, err := newEngine(&fakeBrowser{page: page}, srv.URL).Discover(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestDiscover_DirectReplayWithCSRF(t *testing.T) {
	srv := portal(t, http.MethodPost, scraper.CandidateEndpoints[1], "tok")
	page := &fakePage{cookies: []*http.Cookie{
		{Name: "JSESSIONID", Value: "s"},
		{Name: "XSRF-TOKEN", Value: "tok"},
	}}

	res, err := newEngine(&fakeBrowser{page: page}, srv.URL).Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scraper.StageDirect, res.Strategy)
	assert.Len(t, res.Records, 2)
	// endpoint 0 nested + flat fail, endpoint 1 nested hits.
	assert.Equal(t, 3, res.Probes)
	assert.Equal(t, "POST "+scraper.CandidateEndpoints[1], res.Source)
	assert.Equal(t,
		[]scraper.Stage{scraper.StageNavigate, scraper.StagePassive, scraper.StageDirect, scraper.StageFound},
		res.Trail)
	assert.Empty(t, page.fetched, "in-page replay must not run after a direct hit")
}

func TestDiscover_InPageReplay(t *testing.T) {
	srv := portal(t, http.MethodGet, "/nowhere", "")
	page := &fakePage{
		html: `<meta name="_csrf" content="meta-tok"><meta name="_csrf_header" content="X-CSRF-TOKEN">`,
		fetch: func(req scraper.FetchRequest) (scraper.ProbeResult, error) {
			if req.Method == http.MethodGet {
				return scraper.ProbeResult{Status: 200, Body: []byte(`[{"id":9}]`)}, nil
			}
			return scraper.ProbeResult{}, errors.New("TypeError: Failed to fetch")
		},
	}

	res, err := newEngine(&fakeBrowser{page: page}, srv.URL).Discover(context.Background())
	require.NoError(t, err)

	n := len(scraper.CandidateEndpoints)
	assert.Equal(t, scraper.StageInPage, res.Strategy)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, n*3+n*2+1, res.Probes)
	assert.Equal(t, scraper.StageFound, res.Trail[len(res.Trail)-1])

	require.Len(t, page.fetched, n*2+1)
	post := page.fetched[0]
	assert.Equal(t, "application/json", post.Headers["Content-Type"])
	assert.Equal(t, "meta-tok", post.Headers["X-CSRF-TOKEN"])
	assert.NotEmpty(t, post.Body)
	get := page.fetched[len(page.fetched)-1]
	assert.NotContains(t, get.Headers, "Content-Type")
	assert.Empty(t, get.Body)
}

func TestDiscover_NotFound(t *testing.T) {
	srv := portal(t, http.MethodGet, "/nowhere", "")
	page := &fakePage{}

	res, err := newEngine(&fakeBrowser{page: page}, srv.URL).Discover(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Found())
	assert.Empty(t, res.Strategy)
	assert.Equal(t, len(scraper.Candidates(org))*2, res.Probes)
	assert.Equal(t, []scraper.Stage{
		scraper.StageNavigate, scraper.StagePassive, scraper.StageDirect,
		scraper.StageInPage, scraper.StageNotFound,
	}, res.Trail)
}

func TestDiscover_NavigationErrorFallsThrough(t *testing.T) {
	srv := portal(t, http.MethodGet, scraper.CandidateEndpoints[0], "")
	page := &fakePage{navErr: errors.New("net::ERR_TIMED_OUT")}

	res, err := newEngine(&fakeBrowser{page: page}, srv.URL).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scraper.StageDirect, res.Strategy)
}

func TestDiscover_LaunchError(t *testing.T) {
	e := scraper.NewEngine(func(ctx context.Context) (scraper.Browser, error) {
		return nil, errors.New("chromium not found")
	}, scraper.Options{}, nil)

	_, err := e.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium not found")
}

func TestDiscover_OpenErrorClosesBrowser(t *testing.T) {
	b := &fakeBrowser{openErr: errors.New("target crashed")}

	_, err := newEngine(b, "http://127.0.0.1:1").Discover(context.Background())
	require.Error(t, err)
	assert.True(t, b.closed)
}

func TestDiscover_CancelledContext(t *testing.T) {
	srv := portal(t, http.MethodGet, "/nowhere", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(&fakeBrowser{page: &fakePage{}}, srv.URL).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
