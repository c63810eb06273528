package scraper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderwatch/sync-service/internal/board"
	"tenderwatch/sync-service/internal/model"
	"tenderwatch/sync-service/internal/scraper"
	"tenderwatch/sync-service/internal/tender"
)

type stubDiscoverer struct {
	res scraper.Result
	err error
}

func (d stubDiscoverer) Discover(ctx context.Context) (scraper.Result, error) { return d.res, d.err }

type stubSyncer struct {
	got    []model.Tender
	report board.Report
	err    error
}

func (s *stubSyncer) Sync(ctx context.Context, tenders []model.Tender) (board.Report, error) {
	s.got = tenders
	return s.report, s.err
}

type stubLock struct {
	ok       bool
	err      error
	released bool
}

func (l *stubLock) Acquire(ctx context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released = true }, true, nil
}

func records(raw ...string) []model.RawNotice {
	out := make([]model.RawNotice, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.RawNotice(r))
	}
	return out
}

func builder() *tender.Builder {
	return tender.NewBuilder("https://swpp2.gkpge.pl", scraper.ListURL("https://swpp2.gkpge.pl", org))
}

// trello is a minimal board API: one existing card, and a record of every
// created card.
type trello struct {
	mu       sync.Mutex
	existing []string
	created  []url.Values
	attached int
}

func (tr *trello) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boards/board-1/cards", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "name", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		body := "["
		for i, name := range tr.existing {
			if i > 0 {
				body += ","
			}
			body += `{"id":"old","name":"` + name + `"}`
		}
		_, _ = w.Write([]byte(body + "]"))
	})
	mux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		tr.mu.Lock()
		tr.created = append(tr.created, r.PostForm)
		tr.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"new-card","name":"x"}`))
	})
	mux.HandleFunc("POST /cards/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		tr.mu.Lock()
		tr.attached++
		tr.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	return mux
}

func TestWorker_EndToEnd_CreatesOnlyMissingCard(t *testing.T) {
	tr := &trello{existing: []string{"POST/OR/100/2024 — Dostawa transformatorów"}}
	srv := httptest.NewServer(tr.handler(t))
	defer srv.Close()

	lists := map[model.Region]string{
		model.RegionRzeszow:   "list-rz",
		model.RegionSkarzysko: "list-sk",
	}
	reconciler := board.NewReconciler(board.NewClient(srv.URL, "k", "tok", "board-1"), lists, 0, nil)

	d := stubDiscoverer{res: scraper.Result{
		Strategy: scraper.StagePassive,
		Records: records(
			`{"id":1,"noticeNumber":"POST/OR/100/2024","title":"Dostawa transformatorów"}`,
			`{"id":2,"noticeNumber":"POST/OSK/7/2024","title":"Remont","submissionDeadline":"2024-05-10T12:00:00"}`,
			`{"id":3,"noticeNumber":"POST/CENTRALA/9/2024","title":"Usługi"}`,
		),
	}}

	summary, err := scraper.NewWorker(d, builder(), reconciler, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Raw)
	assert.Equal(t, 2, summary.Eligible)
	assert.Equal(t, 1, summary.Existing)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, string(scraper.StagePassive), summary.Strategy)
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, tr.created, 1)
	card := tr.created[0]
	assert.Equal(t, "list-sk", card.Get("idList"))
	assert.Equal(t, "POST/OSK/7/2024 — Remont", card.Get("name"))
	assert.Contains(t, card.Get("desc"), "Termin składania: 10-05-2024 12:00")
	assert.Contains(t, card.Get("desc"), "https://swpp2.gkpge.pl/app/demand/notice/public/2/details")
	assert.Equal(t, 1, tr.attached)
}

func TestWorker_NoListing(t *testing.T) {
	s := &stubSyncer{}
	summary, err := scraper.NewWorker(stubDiscoverer{}, builder(), s, nil).Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.Raw)
	assert.Nil(t, s.got, "board must not be touched without a listing")
}

func TestWorker_NoEligibleRecords(t *testing.T) {
	s := &stubSyncer{}
	d := stubDiscoverer{res: scraper.Result{
		Strategy: scraper.StageDirect,
		Records:  records(`{"id":1,"noticeNumber":"POST/CENTRALA/1/2024","title":"x"}`, `{"id":2}`),
	}}

	summary, err := scraper.NewWorker(d, builder(), s, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Raw)
	assert.Zero(t, summary.Eligible)
	assert.Nil(t, s.got)
}

func TestWorker_DiscoverErrorFails(t *testing.T) {
	d := stubDiscoverer{err: errors.New("launch browser: no chromium")}
	_, err := scraper.NewWorker(d, builder(), &stubSyncer{}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "no chromium")
}

func TestWorker_SyncErrorFails(t *testing.T) {
	d := stubDiscoverer{res: scraper.Result{Records: records(`{"id":1,"noticeNumber":"POST/OR/1/2024"}`)}}
	s := &stubSyncer{err: errors.New("fetch board cards: 401")}

	_, err := scraper.NewWorker(d, builder(), s, nil).Run(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestWorker_LockHeldSkipsRun(t *testing.T) {
	s := &stubSyncer{}
	d := stubDiscoverer{res: scraper.Result{Records: records(`{"id":1,"noticeNumber":"POST/OR/1/2024"}`)}}

	summary, err := scraper.NewWorker(d, builder(), s, nil).WithLock(&stubLock{ok: false}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Nil(t, s.got)
}

func TestWorker_LockReleasedAfterRun(t *testing.T) {
	lock := &stubLock{ok: true}
	d := stubDiscoverer{res: scraper.Result{Records: records(`{"id":1,"noticeNumber":"POST/OR/1/2024"}`)}}
	s := &stubSyncer{report: board.Report{Created: 1, Fresh: 1}}

	summary, err := scraper.NewWorker(d, builder(), s, nil).WithLock(lock).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, lock.released)
	assert.Equal(t, 1, summary.Created)
	require.Len(t, s.got, 1)
	assert.Equal(t, model.RegionRzeszow, s.got[0].Region)
}

func TestWorker_LockErrorRunsWithoutLock(t *testing.T) {
	d := stubDiscoverer{res: scraper.Result{Records: records(`{"id":1,"noticeNumber":"POST/OR/1/2024"}`)}}
	s := &stubSyncer{}

	_, err := scraper.NewWorker(d, builder(), s, nil).WithLock(&stubLock{err: errors.New("dial tcp")}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.got, 1)
}
