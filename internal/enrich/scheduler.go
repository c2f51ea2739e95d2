// Package enrich attaches visual records to catalog items in time-boxed
// batches and runs the background catalog refresh.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Another0Noob/animecatalog/internal/catalog"
	"github.com/Another0Noob/animecatalog/internal/visual"
)

const (
	DefaultBatchSize = 4
	DefaultPause     = 100 * time.Millisecond
)

// Bridge resolves a title to a visual record.
type Bridge interface {
	Resolve(ctx context.Context, rawTitle string, kind visual.Kind, wantDescription bool) (visual.Record, bool, error)
}

// Entry is an item as served to clients. Poster falls back to the item image
// when enrichment is skipped or finds nothing.
type Entry struct {
	catalog.Item
	Poster      string
	Description string
	Enriched    bool
}

func plain(it catalog.Item) Entry {
	return Entry{Item: it, Poster: it.Image}
}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	BatchSize   int
	Pause       time.Duration
	Description bool
}

// Scheduler enriches item lists through a Bridge.
type Scheduler struct {
	bridge      Bridge
	batchSize   int
	pause       time.Duration
	description bool
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
	logger      *slog.Logger
}

func NewScheduler(bridge Bridge, opts Options, logger *slog.Logger) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Pause <= 0 {
		opts.Pause = DefaultPause
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		bridge:      bridge,
		batchSize:   opts.BatchSize,
		pause:       opts.Pause,
		description: opts.Description,
		now:         time.Now,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Enrich returns one entry per item, in input order. Batches that start
// after deadline has elapsed are returned unenriched. A zero deadline means
// no limit. Bridge calls run on a context detached from ctx so a request
// deadline does not abort lookups whose results are cached for later.
func (s *Scheduler) Enrich(ctx context.Context, items []catalog.Item, kindOf func(catalog.Item) visual.Kind, deadline time.Duration) []Entry {
	if kindOf == nil {
		kindOf = func(it catalog.Item) visual.Kind { return visual.KindOf(it.Name) }
	}
	out := make([]Entry, len(items))
	start := s.now()
	lookupCtx := context.WithoutCancel(ctx)
	skipped := 0

	for lo := 0; lo < len(items); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(items))

		if deadline > 0 && s.now().Sub(start) > deadline {
			for i := lo; i < hi; i++ {
				out[i] = plain(items[i])
			}
			skipped += hi - lo
			continue
		}

		p := pool.New()
		for i := lo; i < hi; i++ {
			p.Go(func() {
				out[i] = s.enrichOne(lookupCtx, items[i], kindOf)
			})
		}
		p.Wait()

		if hi < len(items) {
			s.sleep(ctx, s.pause)
		}
	}

	if skipped > 0 {
		s.logger.Info("enrichment deadline reached", "items", len(items), "unenriched", skipped, "elapsed", s.now().Sub(start))
	}
	return out
}

// enrichOne never fails: errors and panics downgrade the item to plain.
func (s *Scheduler) enrichOne(ctx context.Context, it catalog.Item, kindOf func(catalog.Item) visual.Kind) (e Entry) {
	e = plain(it)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("enrichment panicked", "id", it.ID, "panic", fmt.Sprint(r))
			e = plain(it)
		}
	}()

	rec, ok, err := s.bridge.Resolve(ctx, it.Name, kindOf(it), s.description)
	if err != nil {
		s.logger.Debug("enrichment failed", "id", it.ID, "error", err)
		return e
	}
	if !ok {
		return e
	}
	if rec.Poster != "" {
		e.Poster = rec.Poster
	}
	e.Description = rec.Description
	e.Enriched = true
	return e
}
