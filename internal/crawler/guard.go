package crawler

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
	"github.com/dealmungchi/dealcrawler/services/cache"
)

// Guard wraps a source's adapter with request pacing and a shared block:
// once the site rate limits us, a cache key keeps every process away from
// it for BlockTime.
type Guard struct {
	source    string
	next      Adapter
	detail    DetailFetcher
	cacheSvc  cache.CacheService
	cacheKey  string
	blockTime time.Duration
	limiter   *rate.Limiter
	now       func() time.Time
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithBlockCache enables the rate-limit block stored in cacheSvc
func WithBlockCache(cacheSvc cache.CacheService, blockTime time.Duration) GuardOption {
	return func(g *Guard) {
		g.cacheSvc = cacheSvc
		g.blockTime = blockTime
	}
}

// WithRateLimit paces requests to at most rps per second
func WithRateLimit(rps float64) GuardOption {
	return func(g *Guard) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// GuardSource returns src with its adapter and detail fetcher guarded
func GuardSource(src Source, opts ...GuardOption) Source {
	g := &Guard{
		source:   src.Name,
		next:     src.Adapter,
		detail:   src.Detail,
		cacheKey: src.Name + "_rate_limited",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	guarded := src
	guarded.Adapter = g
	if src.Detail != nil {
		guarded.Detail = g
	}
	return guarded
}

// FetchPage fetches a page unless the source is blocked
func (g *Guard) FetchPage(ctx context.Context, page int) (Page, error) {
	if err := g.before(ctx); err != nil {
		return Page{}, err
	}
	p, err := g.next.FetchPage(ctx, page)
	g.after(err)
	return p, err
}

// FetchDetail fetches a detail page unless the source is blocked
func (g *Guard) FetchDetail(ctx context.Context, raw deal.RawRecord) (deal.RawRecord, error) {
	if g.detail == nil {
		return raw, nil
	}
	if err := g.before(ctx); err != nil {
		return raw, err
	}
	out, err := g.detail.FetchDetail(ctx, raw)
	g.after(err)
	return out, err
}

func (g *Guard) before(ctx context.Context) error {
	if remaining, blocked := g.blocked(); blocked {
		return errors.NewBlocked(g.source, remaining)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return errors.NewNetwork(g.source, "rate limiter wait", err)
		}
	}
	return nil
}

func (g *Guard) after(err error) {
	if err == nil || g.cacheSvc == nil || g.blockTime <= 0 {
		return
	}
	if errors.TypeOf(err) == errors.ErrorTypeRateLimit {
		until := g.now().Add(g.blockTime).Unix()
		_ = g.cacheSvc.Set(g.cacheKey, []byte(strconv.FormatInt(until, 10)), g.blockTime)
	}
}

// blocked reports whether the block key is present and roughly how long it
// has left. Cache failures count as not blocked.
func (g *Guard) blocked() (time.Duration, bool) {
	if g.cacheSvc == nil {
		return 0, false
	}
	value, err := g.cacheSvc.Get(g.cacheKey)
	if err != nil {
		return 0, false
	}
	remaining := g.blockTime
	if until, err := strconv.ParseInt(string(value), 10, 64); err == nil {
		remaining = time.Unix(until, 0).Sub(g.now()).Round(time.Second)
	}
	return remaining, true
}
