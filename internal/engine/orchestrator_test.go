package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
	"github.com/dealmungchi/dealcrawler/services/store"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func record(source, id string) deal.RawRecord {
	return deal.RawRecord{
		Source:   source,
		NativeID: id,
		Fields: map[string]any{
			"title":         "deal " + id,
			"originalPrice": 20000,
			"salePrice":     15000,
			"postedAt":      fixedNow.Add(-time.Hour),
		},
	}
}

func records(source string, from, to int) []deal.RawRecord {
	var out []deal.RawRecord
	for i := from; i <= to; i++ {
		out = append(out, record(source, fmt.Sprint(i)))
	}
	return out
}

// fakeAdapter serves scripted pages and counts calls
type fakeAdapter struct {
	mu     sync.Mutex
	pages  map[int]crawler.Page
	errs   map[int][]error
	calls  int
	onCall func(page int)
}

func (f *fakeAdapter) FetchPage(_ context.Context, page int) (crawler.Page, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if queue := f.errs[page]; len(queue) > 0 {
		err = queue[0]
		f.errs[page] = queue[1:]
	}
	p := f.pages[page]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	if err != nil {
		return crawler.Page{}, err
	}
	return p, nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pagedAdapter(source string, perPage, pages int) *fakeAdapter {
	a := &fakeAdapter{pages: make(map[int]crawler.Page), errs: make(map[int][]error)}
	for p := 1; p <= pages; p++ {
		a.pages[p] = crawler.Page{
			Records: records(source, (p-1)*perPage+1, p*perPage),
			HasMore: p < pages,
		}
	}
	return a
}

// fakeDetail appends content and counts calls
type fakeDetail struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDetail) FetchDetail(_ context.Context, raw deal.RawRecord) (deal.RawRecord, error) {
	d.calls.Add(1)
	if d.err != nil {
		return raw, d.err
	}
	out := raw.Clone()
	out.Fields["imageUrl"] = "https://img.example.com/" + raw.NativeID + ".jpg"
	return out, nil
}

// failingGateway fails saves for selected native ids
type failingGateway struct {
	*store.Memory
	failIDs map[string]bool
}

func (g *failingGateway) SaveIfNew(ctx context.Context, d deal.Deal) (bool, error) {
	if g.failIDs[d.NativeID] {
		return false, errors.NewPersistence(d.Source, "insert failed", nil)
	}
	return g.Memory.SaveIfNew(ctx, d)
}

type recordingSink struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingSink) Publish(key string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func newTestOrchestrator(t *testing.T, gw Gateway, sources []crawler.Source, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := crawler.NewRegistry(sources...)
	require.NoError(t, err)
	base := []Option{
		WithLogger(logger.Nop()),
		WithClock(func() time.Time { return fixedNow }),
		WithDefaults(Defaults{MaxPages: 1, RetryAttempts: 3, RetryDelay: time.Millisecond, BackoffMultiplier: 2}),
	}
	return New(reg, gw, append(base, opts...)...)
}

func intPtr(v int) *int { return &v }

func TestExecuteCrawlJobValidation(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 1, 1)},
	})
	ctx := context.Background()

	_, err := o.ExecuteCrawlJob(ctx, CrawlJobRequest{})
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = o.ExecuteCrawlJob(ctx, CrawlJobRequest{Sources: []string{" ", ""}})
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = o.ExecuteCrawlJob(ctx, CrawlJobRequest{Sources: []string{"clien", "nowhere"}})
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Contains(t, err.Error(), "nowhere")

	_, err = o.ExecuteCrawlJob(ctx, CrawlJobRequest{Sources: []string{"clien"}, Options: Options{MaxPages: intPtr(0)}})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = o.ExecuteCrawlJob(ctx, CrawlJobRequest{Sources: []string{"clien"}, Options: Options{RetryDelayMs: intPtr(-1)}})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestUnknownSourceStartsNoWork(t *testing.T) {
	adapter := pagedAdapter("clien", 2, 1)
	bus := events.NewBus(16)
	ch, unsub := bus.Subscribe()
	defer unsub()

	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}}, WithBus(bus))
	_, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien", "bogus"}})
	require.ErrorIs(t, err, ErrUnknownSource)

	assert.Equal(t, 0, adapter.Calls())
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestExecuteCrawlJobSavesAndAggregates(t *testing.T) {
	gw := store.NewMemory()
	sink := &recordingSink{}
	o := newTestOrchestrator(t, gw, []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 3, 2)},
		{Name: "ruliweb", Adapter: pagedAdapter("ruliweb", 2, 1)},
	}, WithSink(sink))

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien", "ruliweb"},
		Options: Options{MaxPages: intPtr(5)},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.JobID)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 8, result.Stats.TotalCrawled)
	assert.Equal(t, 8, result.Stats.TotalSaved)
	assert.Equal(t, 8, gw.Len())
	assert.Len(t, sink.keys, 8)

	clien := result.Stats.PerSource["clien"]
	assert.Equal(t, 2, clien.PagesCrawled)
	assert.Equal(t, StopNoMorePages, clien.StopReason)

	saved, err := gw.FindByID(context.Background(), "clien:1")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, saved.DiscountRate, 1e-9)
}

func TestExecuteCrawlJobIsIdempotent(t *testing.T) {
	gw := store.NewMemory()
	o := newTestOrchestrator(t, gw, []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 4, 1)},
	})
	req := CrawlJobRequest{Sources: []string{"clien"}}

	first, err := o.ExecuteCrawlJob(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Stats.TotalSaved)

	second, err := o.ExecuteCrawlJob(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.TotalSaved)
	assert.Equal(t, 4, second.Stats.PerSource["clien"].AlreadySeen)
	assert.Equal(t, 4, gw.Len())
}

func TestKnownDealsAreMarkedEnded(t *testing.T) {
	gw := store.NewMemory()
	o := newTestOrchestrator(t, gw, []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 2, 1)},
	})
	req := CrawlJobRequest{Sources: []string{"clien"}}

	first, err := o.ExecuteCrawlJob(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, first.Stats.TotalSaved)

	soldOut := record("clien", "1")
	soldOut.Fields["soldOut"] = true
	adapter := &fakeAdapter{pages: map[int]crawler.Page{
		1: {Records: []deal.RawRecord{soldOut, record("clien", "2")}},
	}}
	o = newTestOrchestrator(t, gw, []crawler.Source{{Name: "clien", Adapter: adapter, NewestFirst: true}})

	second, err := o.ExecuteCrawlJob(context.Background(), req)
	require.NoError(t, err)
	stats := second.Stats.PerSource["clien"]
	assert.Equal(t, 0, stats.TotalSaved)
	assert.Equal(t, 2, stats.AlreadySeen)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, second.Stats.TotalUpdated)
	assert.Equal(t, StopCaughtUp, stats.StopReason)

	ended, err := gw.FindByID(context.Background(), deal.NewID("clien", "1"))
	require.NoError(t, err)
	assert.Equal(t, deal.StatusEnded, ended.Status)
	active, err := gw.FindByID(context.Background(), deal.NewID("clien", "2"))
	require.NoError(t, err)
	assert.Equal(t, deal.StatusActive, active.Status)

	// an ended deal is only updated once
	third, err := o.ExecuteCrawlJob(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Stats.TotalUpdated)
}

func TestDuplicatesWithinJobPersistOnce(t *testing.T) {
	gw := store.NewMemory()
	adapter := &fakeAdapter{pages: map[int]crawler.Page{
		1: {Records: []deal.RawRecord{record("clien", "1"), record("clien", "2")}, HasMore: true},
		2: {Records: []deal.RawRecord{record("clien", "2"), record("clien", "3")}, HasMore: false},
	}}
	o := newTestOrchestrator(t, gw, []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(3)},
	})
	require.NoError(t, err)

	stats := result.Stats.PerSource["clien"]
	assert.Equal(t, 4, stats.TotalCrawled)
	assert.Equal(t, 3, stats.TotalSaved)
	assert.Equal(t, 1, stats.AlreadySeen)
	assert.Equal(t, 3, gw.Len())
}

func TestMalformedRecordsAreSkipped(t *testing.T) {
	bad := record("clien", "2")
	delete(bad.Fields, "title")
	noID := record("clien", "")
	adapter := &fakeAdapter{pages: map[int]crawler.Page{
		1: {Records: []deal.RawRecord{record("clien", "1"), bad, noID}},
	}}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	stats := result.Stats.PerSource["clien"]
	assert.True(t, result.Success)
	assert.Equal(t, 3, stats.TotalCrawled)
	assert.Equal(t, 1, stats.TotalSaved)
	assert.Equal(t, 2, stats.Malformed)
}

func TestPartialFailureIsolation(t *testing.T) {
	broken := &fakeAdapter{errs: map[int][]error{
		1: {errors.NewAuth("ruliweb", "login required")},
	}}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 2, 1)},
		{Name: "ruliweb", Adapter: broken},
	})

	for _, concurrent := range []bool{false, true} {
		t.Run(fmt.Sprintf("concurrent=%v", concurrent), func(t *testing.T) {
			result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
				Sources: []string{"ruliweb", "clien"},
				Options: Options{Concurrent: concurrent},
			})
			require.NoError(t, err)

			assert.False(t, result.Success)
			require.Contains(t, result.Errors, "ruliweb")
			assert.Equal(t, errors.ErrorTypeAuth, result.Errors["ruliweb"].Type)
			assert.Equal(t, StopError, result.Stats.PerSource["ruliweb"].StopReason)
			assert.NotContains(t, result.Errors, "clien")
			assert.Equal(t, StopNoMorePages, result.Stats.PerSource["clien"].StopReason)
		})
	}
}

func TestRetryBound(t *testing.T) {
	transient := errors.NewNetwork("clien", "connection reset", nil)
	adapter := &fakeAdapter{errs: map[int][]error{
		1: {transient, transient, transient, transient},
	}}
	bus := events.NewBus(32)
	ch, unsub := bus.Subscribe()
	defer unsub()

	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}}, WithBus(bus))
	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{RetryAttempts: intPtr(2), RetryDelayMs: intPtr(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, adapter.Calls())
	require.Contains(t, result.Errors, "clien")
	assert.Equal(t, 3, result.Errors["clien"].Attempts)
	assert.Equal(t, 1, result.Errors["clien"].Page)

	var retries []bool
	for len(ch) > 0 {
		if e := <-ch; e.Type == events.TypeError {
			retries = append(retries, e.WillRetry)
		}
	}
	assert.Equal(t, []bool{true, true, false}, retries)
}

func TestRetryRecovers(t *testing.T) {
	adapter := pagedAdapter("clien", 2, 1)
	adapter.errs[1] = []error{errors.NewNetwork("clien", "timeout", nil)}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, adapter.Calls())
	assert.Equal(t, 2, result.Stats.TotalSaved)
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	adapter := &fakeAdapter{errs: map[int][]error{
		1: {errors.NewBlocked("clien", time.Minute)},
	}}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.Calls())
	assert.Equal(t, 1, result.Errors["clien"].Attempts)
}

func TestEarlyStopWhenCaughtUp(t *testing.T) {
	gw := store.NewMemory()
	setup := newTestOrchestrator(t, gw, []crawler.Source{{Name: "clien", Adapter: pagedAdapter("clien", 3, 1)}})
	_, err := setup.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	newest := pagedAdapter("clien", 3, 5)
	older := pagedAdapter("clien", 3, 5)
	o := newTestOrchestrator(t, gw, []crawler.Source{
		{Name: "clien", Adapter: newest, NewestFirst: true},
	})
	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, newest.Calls())
	assert.Equal(t, StopCaughtUp, result.Stats.PerSource["clien"].StopReason)

	// without the ordering guarantee every page is visited
	o = newTestOrchestrator(t, gw, []crawler.Source{{Name: "clien", Adapter: older}})
	result, err = o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, older.Calls())
	assert.Equal(t, StopNoMorePages, result.Stats.PerSource["clien"].StopReason)
}

func TestMaxPagesStop(t *testing.T) {
	adapter := pagedAdapter("clien", 2, 10)
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.Calls())
	assert.Equal(t, StopMaxPages, result.Stats.PerSource["clien"].StopReason)
	assert.Equal(t, 3, result.Stats.PerSource["clien"].PagesCrawled)
}

func TestSequentialAndConcurrentAgree(t *testing.T) {
	run := func(concurrent bool) map[string]SourceStats {
		sources := []crawler.Source{
			{Name: "clien", Adapter: pagedAdapter("clien", 3, 2), NewestFirst: true},
			{Name: "ruliweb", Adapter: pagedAdapter("ruliweb", 2, 3)},
			{Name: "arca", Adapter: &fakeAdapter{errs: map[int][]error{1: {errors.NewNotFound("arca", "gone")}}}},
		}
		o := newTestOrchestrator(t, store.NewMemory(), sources)
		result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
			Sources: []string{"clien", "ruliweb", "arca"},
			Options: Options{MaxPages: intPtr(3), Concurrent: concurrent},
		})
		require.NoError(t, err)
		return result.Stats.PerSource
	}

	assert.Equal(t, run(false), run(true))
}

func TestSequentialRunsInRequestOrder(t *testing.T) {
	bus := events.NewBus(64)
	ch, unsub := bus.Subscribe()
	defer unsub()

	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 1, 1)},
		{Name: "ruliweb", Adapter: pagedAdapter("ruliweb", 1, 1)},
		{Name: "arca", Adapter: pagedAdapter("arca", 1, 1)},
	}, WithBus(bus))

	_, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"ruliweb", "arca", "clien"}})
	require.NoError(t, err)

	var starts []string
	for len(ch) > 0 {
		if e := <-ch; e.Type == events.TypeStart {
			starts = append(starts, e.Source)
		}
	}
	assert.Equal(t, []string{"ruliweb", "arca", "clien"}, starts)
}

func TestEventsPerSourceInPageOrder(t *testing.T) {
	bus := events.NewBus(64)
	ch, unsub := bus.Subscribe()
	defer unsub()

	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 2, 3)},
	}, WithBus(bus))
	_, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(3)},
	})
	require.NoError(t, err)

	var got []events.Type
	var pages []int
	for len(ch) > 0 {
		e := <-ch
		got = append(got, e.Type)
		if e.Type == events.TypeProgress {
			pages = append(pages, e.Page)
		}
	}
	assert.Equal(t, []events.Type{
		events.TypeStart, events.TypeProgress, events.TypeProgress, events.TypeProgress, events.TypeComplete,
	}, got)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestCancellationStopsFurtherPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := pagedAdapter("clien", 2, 10)
	adapter.onCall = func(page int) {
		if page == 2 {
			cancel()
		}
	}
	bus := events.NewBus(64)
	ch, unsub := bus.Subscribe()
	defer unsub()

	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}}, WithBus(bus))
	result, err := o.ExecuteCrawlJob(ctx, CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(10)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, adapter.Calls())
	assert.False(t, result.Success)
	assert.True(t, result.Cancelled)
	// the in-flight page is still processed
	assert.Equal(t, 4, result.Stats.TotalSaved)
	assert.Equal(t, StopCancelled, result.Stats.PerSource["clien"].StopReason)
	require.Contains(t, result.Errors, "clien")
	assert.True(t, result.Errors["clien"].Cancelled)

	var cancelled *events.Event
	for len(ch) > 0 {
		e := <-ch
		if e.Cancelled {
			cancelled = &e
		}
	}
	require.NotNil(t, cancelled)
	assert.False(t, cancelled.WillRetry)
	assert.Equal(t, events.TypeError, cancelled.Type)
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := pagedAdapter("clien", 2, 1)
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})
	result, err := o.ExecuteCrawlJob(ctx, CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	assert.Equal(t, 0, adapter.Calls())
	assert.True(t, result.Cancelled)
	assert.True(t, result.Errors["clien"].Cancelled)
	assert.Equal(t, errors.ErrorTypeCancelled, result.Errors["clien"].Type)
	assert.Equal(t, "crawl cancelled", result.Errors["clien"].Message)
}

func TestPersistenceErrorsAreCounted(t *testing.T) {
	gw := &failingGateway{Memory: store.NewMemory(), failIDs: map[string]bool{"2": true}}
	o := newTestOrchestrator(t, gw, []crawler.Source{{Name: "clien", Adapter: pagedAdapter("clien", 3, 1)}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	stats := result.Stats.PerSource["clien"]
	assert.True(t, result.Success)
	assert.Equal(t, 2, stats.TotalSaved)
	assert.Equal(t, 1, stats.PersistErrors)
}

func TestDetailEnrichment(t *testing.T) {
	gw := store.NewMemory()
	detail := &fakeDetail{}
	o := newTestOrchestrator(t, gw, []crawler.Source{
		{Name: "ppomppu", Adapter: pagedAdapter("ppomppu", 2, 1), Detail: detail},
	})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"ppomppu"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), detail.calls.Load())
	assert.Equal(t, 2, result.Stats.TotalSaved)

	d, err := gw.FindByID(context.Background(), "ppomppu:1")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/1.jpg", d.ImageURL)
}

func TestDetailSkippedAndSoftFailures(t *testing.T) {
	detail := &fakeDetail{}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "ppomppu", Adapter: pagedAdapter("ppomppu", 2, 1), Detail: detail},
	})
	_, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"ppomppu"},
		Options: Options{SkipDetail: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), detail.calls.Load())

	failing := &fakeDetail{err: errors.NewNetwork("clien", "reset", nil)}
	o = newTestOrchestrator(t, store.NewMemory(), []crawler.Source{
		{Name: "clien", Adapter: pagedAdapter("clien", 2, 1), Detail: failing},
	})
	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Stats.TotalSaved)
	assert.Equal(t, 2, result.Stats.PerSource["clien"].DetailErrors)
}

func TestTimeFilter(t *testing.T) {
	var recs []deal.RawRecord
	recs = append(recs, record("clien", "1"))
	for i := 2; i <= 8; i++ {
		old := record("clien", fmt.Sprint(i))
		old.Fields["postedAt"] = fixedNow.Add(-72 * time.Hour)
		recs = append(recs, old)
	}
	adapter := &fakeAdapter{pages: map[int]crawler.Page{1: {Records: recs, HasMore: true}}}
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: adapter}})

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: []string{"clien"},
		Options: Options{MaxPages: intPtr(5), TimeFilterHours: intPtr(24)},
	})
	require.NoError(t, err)

	stats := result.Stats.PerSource["clien"]
	assert.Equal(t, StopTimeFilter, stats.StopReason)
	assert.Equal(t, 1, stats.TotalSaved)
	assert.Equal(t, maxConsecutiveOld, stats.Filtered)
	assert.Equal(t, 1, adapter.Calls())
}

func TestConcurrentPoolIsBounded(t *testing.T) {
	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	slow := func(source string) crawler.Adapter {
		return crawler.AdapterFunc(func(context.Context, int) (crawler.Page, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return crawler.Page{Records: records(source, 1, 1)}, nil
		})
	}

	var sources []crawler.Source
	var names []string
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("site%d", i)
		names = append(names, name)
		sources = append(sources, crawler.Source{Name: name, Adapter: slow(name)})
	}
	o := newTestOrchestrator(t, store.NewMemory(), sources, WithConcurrency(2, 1))

	result, err := o.ExecuteCrawlJob(context.Background(), CrawlJobRequest{
		Sources: names,
		Options: Options{Concurrent: true},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 6, result.Stats.TotalSaved)
}

func TestStartCrawlJob(t *testing.T) {
	o := newTestOrchestrator(t, store.NewMemory(), []crawler.Source{{Name: "clien", Adapter: pagedAdapter("clien", 2, 1)}})

	_, _, err := o.StartCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"nowhere"}})
	require.ErrorIs(t, err, ErrUnknownSource)

	id, done, err := o.StartCrawlJob(context.Background(), CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Equal(t, id, result.JobID)
		assert.Equal(t, 2, result.Stats.TotalSaved)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
}
