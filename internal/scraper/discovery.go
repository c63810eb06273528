package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tenderwatch/sync-service/internal/metrics"
	"tenderwatch/sync-service/internal/model"
)

// Response is a network response observed while the page loads. Body is
// fetched lazily so uninteresting responses cost nothing.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   func() ([]byte, error)
}

// FetchRequest is a request executed from inside the page's script context.
// URL may be relative to the page origin.
type FetchRequest struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Page is a live browser tab.
type Page interface {
	// Observe registers fn for every response the page receives. It must be
	// called before Navigate; fn may be invoked concurrently.
	Observe(fn func(Response))
	// Navigate loads url and waits, at most settle, for the network to go
	// idle. Running out of settle time is not an error.
	Navigate(ctx context.Context, url string, settle time.Duration) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	HTML(ctx context.Context) (string, error)
	Fetch(ctx context.Context, req FetchRequest) (ProbeResult, error)
	Close() error
}

// Browser opens pages.
type Browser interface {
	Open(ctx context.Context, userAgent string) (Page, error)
	Close() error
}

// Launcher starts a browser for one discovery run.
type Launcher func(ctx context.Context) (Browser, error)

// Options tunes the discovery engine.
type Options struct {
	BaseURL        string // portal origin, e.g. https://swpp2.gkpge.pl
	ListURL        string // listing page loaded in the browser
	UserAgent      string
	SettleTimeout  time.Duration
	CaptureTimeout time.Duration // measured from the start of navigation
	ProbeTimeout   time.Duration
	Candidates     []Probe // replay matrix, see Candidates
}

// Result is the outcome of a discovery run. Records is empty when the
// listing could not be found; that is not an error.
type Result struct {
	Records  []model.RawNotice
	Strategy Stage   // stage that produced the records, "" when not found
	Source   string  // response URL or probe that produced the records
	Probes   int     // replay attempts issued
	Trail    []Stage // stages visited, NAVIGATE first
}

// Found reports whether a listing was discovered.
func (r Result) Found() bool { return len(r.Records) > 0 }

// Engine discovers the notice listing of the portal.
type Engine struct {
	launch   Launcher
	opts     Options
	log      *slog.Logger
	external func(Session) Prober
}

// NewEngine constructs an Engine. Zero durations in opts fall back to defaults.
func NewEngine(launch Launcher, opts Options, logger *slog.Logger) *Engine {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 30 * time.Second
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 20 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{launch: launch, opts: opts, log: logger.With("component", "discovery")}
	e.external = func(s Session) Prober {
		return NewHTTPProber(e.opts.BaseURL, s, e.opts.ProbeTimeout)
	}
	return e
}

// Discover loads the listing page and returns the raw notice sequence.
// Strategies run strictly one after another: passive capture, external
// replay, in-page replay. Only a browser that cannot be started or opened,
// or a cancelled context, is reported as an error.
func (e *Engine) Discover(ctx context.Context) (Result, error) {
	tr := newTrail()
	res := Result{}
	finish := func(stage Stage) (Result, error) {
		e.step(tr, stage)
		res.Trail = tr.stages
		if stage == StageFound {
			metrics.ObserveDiscovery(string(res.Strategy))
		} else {
			metrics.ObserveDiscovery("")
		}
		return res, nil
	}

	browser, err := e.launch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			e.log.Debug("browser close failed", "err", err)
		}
	}()

	page, err := browser.Open(ctx, e.opts.UserAgent)
	if err != nil {
		return Result{}, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.log.Debug("page close failed", "err", err)
		}
	}()

	// ── Navigate + passive capture ─────────────────────
	cell := newCaptureCell()
	page.Observe(func(r Response) { e.observe(cell, r) })

	start := time.Now()
	if err := page.Navigate(ctx, e.opts.ListURL, e.opts.SettleTimeout); err != nil {
		e.log.Warn("listing page navigation failed, continuing with replay", "url", e.opts.ListURL, "err", err)
	}

	e.step(tr, StagePassive)
	if e.awaitCapture(ctx, cell, start) {
		res.Records, res.Source = cell.Value()
		res.Strategy = StagePassive
		return finish(StageFound)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// ── Direct replay from outside the browser ─────────
	e.step(tr, StageDirect)
	session := e.harvest(ctx, page)
	if e.replay(ctx, e.external(session), StageDirect, &res) {
		return finish(StageFound)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// ── Replay from inside the page ────────────────────
	e.step(tr, StageInPage)
	if e.replay(ctx, &pageProber{page: page, headers: session.PageHeaders()}, StageInPage, &res) {
		return finish(StageFound)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return finish(StageNotFound)
}

func (e *Engine) step(tr *trail, to Stage) {
	if err := tr.advance(to); err != nil {
		e.log.Error("discovery state machine", "err", err)
		return
	}
	e.log.Debug("discovery stage", "stage", to)
}

// observe is the passive-capture callback. It may run concurrently; the
// capture cell keeps only the first listing.
func (e *Engine) observe(cell *captureCell, r Response) {
	if cell.Filled() {
		return
	}
	if !LooksLikeListingURL(r.URL) || !IsJSONContentType(r.Header) {
		return
	}
	body, err := r.Body()
	if err != nil {
		e.log.Debug("observed response body unavailable", "url", r.URL, "err", err)
		return
	}
	records := UnwrapEnvelope(body)
	if len(records) == 0 {
		e.log.Debug("observed listing-like response without records", "url", r.URL)
		return
	}
	if cell.Offer(r.URL, records) {
		e.log.Info("listing captured from page traffic", "url", r.URL, "records", len(records))
	}
}

// awaitCapture waits until the cell is filled, the capture window (counted
// from start) closes, or ctx ends.
func (e *Engine) awaitCapture(ctx context.Context, cell *captureCell, start time.Time) bool {
	remaining := time.Until(start.Add(e.opts.CaptureTimeout))
	if remaining <= 0 {
		return cell.Filled()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-cell.Done():
		return true
	case <-timer.C:
		e.log.Debug("no listing in page traffic", "waited", e.opts.CaptureTimeout)
		return cell.Filled()
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) harvest(ctx context.Context, page Page) Session {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		e.log.Debug("cookie harvest failed", "err", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		e.log.Debug("page html unavailable", "err", err)
	}
	s := HarvestSession(cookies, html, e.opts.UserAgent, e.opts.ListURL, e.opts.BaseURL)
	e.log.Debug("session harvested", "cookies", len(s.Cookies), "csrf", s.CSRFToken != "")
	return s
}

// replay walks the candidate matrix one probe at a time and stops at the
// first probe yielding a non-empty listing. Individual failures are logged
// at debug level and never abort the walk.
func (e *Engine) replay(ctx context.Context, prober Prober, strategy Stage, res *Result) bool {
	label := string(strategy)
	for _, probe := range e.opts.Candidates {
		if ctx.Err() != nil {
			return false
		}
		res.Probes++

		out, err := prober.Do(ctx, probe)
		if err != nil {
			metrics.ObserveProbe(label, metrics.ProbeError)
			e.log.Debug("probe failed", "strategy", label, "probe", probe.String(), "err", err)
			continue
		}
		if !out.LooksLikeJSON() {
			metrics.ObserveProbe(label, metrics.ProbeNotJSON)
			e.log.Debug("probe returned no json", "strategy", label, "probe", probe.String(), "status", out.Status)
			continue
		}
		records := UnwrapEnvelope(out.Body)
		if len(records) == 0 {
			metrics.ObserveProbe(label, metrics.ProbeEmpty)
			e.log.Debug("probe returned no records", "strategy", label, "probe", probe.String(), "status", out.Status)
			continue
		}

		metrics.ObserveProbe(label, metrics.ProbeHit)
		e.log.Info("listing found by replay", "strategy", label, "probe", probe.String(), "records", len(records))
		res.Records = records
		res.Strategy = strategy
		res.Source = probe.String()
		return true
	}
	return false
}
