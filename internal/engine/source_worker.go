package engine

import (
	"context"
	"encoding/json"

	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/internal/retry"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

// maxConsecutiveOld is how many records older than the time filter end a
// source. Boards pin old posts, so a single old record is not enough.
const maxConsecutiveOld = 5

// sourceWorker pages through one source for one job
type sourceWorker struct {
	o     *Orchestrator
	job   *job
	src   crawler.Source
	log   *logger.Logger
	stats SourceStats

	oldStreak int
}

func newSourceWorker(o *Orchestrator, j *job, src crawler.Source) *sourceWorker {
	return &sourceWorker{
		o:     o,
		job:   j,
		src:   src,
		log:   j.log.ForSource(src.Name),
		stats: SourceStats{Source: src.Name},
	}
}

// fetchError is a page that failed for good
type fetchError struct {
	err      error
	attempts int
}

func (w *sourceWorker) run(ctx context.Context) outcome {
	w.o.publish(events.Start(w.job.id, w.src.Name))
	w.log.Debug().Msg("Source started")

	for page := 1; ; page++ {
		if page > 1 {
			if err := retry.Sleep(ctx, w.job.settings.pageDelay); err != nil {
				return w.cancelled(page)
			}
		}
		if ctx.Err() != nil {
			return w.cancelled(page)
		}

		p, ferr := w.fetch(ctx, page)
		if ferr != nil {
			if ferr.err == nil {
				return w.cancelled(page)
			}
			return w.failed(page, ferr)
		}
		w.stats.PagesCrawled++

		stop := w.process(ctx, p)
		w.o.publish(events.Progress(w.job.id, w.src.Name, page, len(p.Records), w.stats.TotalCrawled))

		switch {
		case stop != "":
			return w.finish(stop)
		case len(p.Records) == 0 || !p.HasMore:
			return w.finish(StopNoMorePages)
		case page >= w.job.settings.maxPages:
			return w.finish(StopMaxPages)
		}
	}
}

// fetch calls the adapter until it succeeds or the retry policy gives up.
// The call itself is shielded from cancellation so an in-flight page is
// always completed. A nil error inside a non-nil fetchError means the job
// was cancelled while backing off.
func (w *sourceWorker) fetch(ctx context.Context, page int) (crawler.Page, *fetchError) {
	fetchCtx := context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		p, err := w.src.Adapter.FetchPage(fetchCtx, page)
		if err == nil {
			w.o.recorder.PageFetched(w.src.Name)
			return p, nil
		}
		w.o.recorder.FetchFailed(w.src.Name, errors.TypeOf(err))

		delay, again := w.job.settings.retry.Next(attempt, err)
		if again && ctx.Err() != nil {
			return crawler.Page{}, &fetchError{}
		}
		w.o.publish(events.Error(w.job.id, w.src.Name, page, err.Error(), again))
		if !again {
			return crawler.Page{}, &fetchError{err: err, attempts: attempt + 1}
		}

		w.log.Warn().
			Err(err).
			Int("page", page).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Page fetch failed, retrying")
		if err := retry.Sleep(ctx, delay); err != nil {
			return crawler.Page{}, &fetchError{}
		}
	}
}

// process runs a fetched page through normalization, dedup and persistence.
// It returns a non-empty reason when the source should stop after this page.
func (w *sourceWorker) process(ctx context.Context, p crawler.Page) StopReason {
	pageCtx := context.WithoutCancel(ctx)
	valid, seen := 0, 0

	for _, raw := range p.Records {
		w.stats.TotalCrawled++

		d, err := w.o.normalizer.Normalize(raw)
		if err != nil {
			w.stats.Malformed++
			w.log.Debug().Err(err).Str("native_id", raw.NativeID).Msg("Skipping malformed record")
			continue
		}

		if w.tooOld(d) {
			w.stats.Filtered++
			w.oldStreak++
			if w.oldStreak >= maxConsecutiveOld {
				return StopTimeFilter
			}
			continue
		}
		w.oldStreak = 0
		valid++

		key := d.Key()
		exists, err := w.job.index.Has(pageCtx, key)
		if err != nil {
			w.stats.PersistErrors++
			w.log.Error().Err(err).Str("key", key.String()).Msg("Dedup lookup failed")
			continue
		}
		if exists || !w.job.index.MarkSeen(key) {
			w.seenAgain(pageCtx, d)
			seen++
			continue
		}

		d = w.enrich(ctx, raw, d)

		saved, err := w.o.gateway.SaveIfNew(pageCtx, d)
		if err != nil {
			w.stats.PersistErrors++
			w.log.Error().Err(err).Str("key", key.String()).Msg("Failed to save deal")
			continue
		}
		if !saved {
			w.seenAgain(pageCtx, d)
			seen++
			continue
		}
		w.stats.TotalSaved++
		w.o.recorder.DealsSaved(w.src.Name, 1)
		w.emit(d)
	}

	if w.src.NewestFirst && valid > 0 && seen == valid {
		return StopCaughtUp
	}
	return ""
}

// seenAgain counts a known deal and carries an ended status over to the
// stored copy. Other fields of a known deal are left as first saved.
func (w *sourceWorker) seenAgain(ctx context.Context, d deal.Deal) {
	w.stats.AlreadySeen++
	if d.Status != deal.StatusEnded {
		return
	}
	updated, err := w.o.gateway.MarkEnded(ctx, d.Source, d.NativeID)
	if err != nil {
		w.stats.PersistErrors++
		w.log.Error().Err(err).Str("id", d.ID).Msg("Failed to mark deal ended")
		return
	}
	if updated {
		w.stats.Updated++
		w.log.Debug().Str("id", d.ID).Msg("Deal ended")
	}
}

func (w *sourceWorker) tooOld(d deal.Deal) bool {
	return !w.job.cutoff.IsZero() && !d.PostedAt.IsZero() && d.PostedAt.Before(w.job.cutoff)
}

// enrich adds the detail page to a new record. Failures keep the list
// version of the deal. Detail fetches are skipped once the job is cancelled.
func (w *sourceWorker) enrich(ctx context.Context, raw deal.RawRecord, d deal.Deal) deal.Deal {
	if w.job.settings.skipDetail || w.src.Detail == nil || ctx.Err() != nil {
		return d
	}
	if err := retry.Sleep(ctx, w.job.settings.detailDelay); err != nil {
		return d
	}

	detailed, err := w.src.Detail.FetchDetail(context.WithoutCancel(ctx), raw)
	if err != nil {
		w.stats.DetailErrors++
		w.log.Warn().Err(err).Str("native_id", raw.NativeID).Msg("Detail fetch failed")
		return d
	}
	enriched, err := w.o.normalizer.Normalize(detailed)
	if err != nil {
		w.stats.DetailErrors++
		w.log.Warn().Err(err).Str("native_id", raw.NativeID).Msg("Detail record rejected")
		return d
	}
	return enriched
}

// emit hands a saved deal to the sink. Sink failures are logged only; the
// deal is already persisted.
func (w *sourceWorker) emit(d deal.Deal) {
	if w.o.sink == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		w.log.Error().Err(err).Str("id", d.ID).Msg("Failed to encode deal")
		return
	}
	if err := w.o.sink.Publish(w.src.Name, data); err != nil {
		w.log.Error().Err(err).Str("id", d.ID).Msg("Failed to publish deal")
	}
}

func (w *sourceWorker) finish(reason StopReason) outcome {
	w.stats.StopReason = reason
	w.o.publish(events.Complete(w.job.id, w.src.Name, w.stats.TotalCrawled, w.stats.TotalSaved))
	w.log.Info().
		Int("pages", w.stats.PagesCrawled).
		Int("crawled", w.stats.TotalCrawled).
		Int("saved", w.stats.TotalSaved).
		Int("updated", w.stats.Updated).
		Str("stop_reason", string(reason)).
		Msg("Source finished")
	return outcome{stats: w.stats}
}

func (w *sourceWorker) failed(page int, ferr *fetchError) outcome {
	w.stats.StopReason = StopError
	w.log.Error().
		Err(ferr.err).
		Int("page", page).
		Int("attempts", ferr.attempts).
		Msg("Source failed")
	return outcome{
		stats: w.stats,
		err: &SourceError{
			Source:   w.src.Name,
			Page:     page,
			Type:     errors.TypeOf(ferr.err),
			Message:  ferr.err.Error(),
			Attempts: ferr.attempts,
		},
	}
}

func (w *sourceWorker) cancelled(page int) outcome {
	w.stats.StopReason = StopCancelled
	w.o.publish(events.Cancelled(w.job.id, w.src.Name, page))
	w.log.Info().Int("page", page).Msg("Source cancelled")
	cerr := errors.NewCancelled(w.src.Name, nil)
	return outcome{
		stats: w.stats,
		err: &SourceError{
			Source:    w.src.Name,
			Page:      page,
			Type:      cerr.Type,
			Message:   cerr.Message,
			Cancelled: true,
		},
	}
}
