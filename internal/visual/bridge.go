// Package visual links catalog titles to records of the secondary visual
// source and caches both hits and misses.
package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Another0Noob/animecatalog/internal/match"
	"github.com/Another0Noob/animecatalog/internal/store"
	"github.com/Another0Noob/animecatalog/internal/visualapi"
)

// StoreKey is the durable store key the cache is saved under.
const StoreKey = "visual"

// Kind separates movies from series in cache keys and result filtering.
type Kind string

const (
	KindMovie  Kind = "m"
	KindSeries Kind = "t"
)

// KindOf guesses the kind from a raw title.
func KindOf(title string) Kind {
	if match.IsMovie(title) {
		return KindMovie
	}
	return KindSeries
}

// Record is the enrichment payload for one title.
type Record struct {
	Poster      string `json:"poster,omitempty"`
	Title       string `json:"title,omitempty"`
	VisualID    string `json:"visual_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Status tags a cache entry.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
)

// Entry is a cached lookup outcome. Record is only meaningful when Found.
type Entry struct {
	Status Status `json:"status"`
	Record Record `json:"record"`
}

// Source is the subset of the visual client the bridge needs.
type Source interface {
	Search(ctx context.Context, keyword string) ([]visualapi.Result, error)
	Detail(ctx context.Context, id string) (string, error)
}

// Key returns the cache key for a raw title.
func Key(rawTitle string, kind Kind) string {
	return match.Slug(match.Parse(rawTitle).Base) + "|" + string(kind)
}

// Bridge resolves titles against the visual source. It is safe for
// concurrent use; concurrent lookups of one key share a single request.
type Bridge struct {
	src    Source
	mu     sync.RWMutex
	cache  map[string]Entry
	group  singleflight.Group
	logger *slog.Logger
}

func NewBridge(src Source, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		src:    src,
		cache:  make(map[string]Entry),
		logger: logger,
	}
}

// Resolve returns the visual record for rawTitle. ok is false when the source
// has no match. A non-nil error means the source could not be asked; nothing
// is cached in that case.
func (b *Bridge) Resolve(ctx context.Context, rawTitle string, kind Kind, wantDescription bool) (Record, bool, error) {
	base := match.Parse(rawTitle).Base
	target := match.Slug(base)
	if target == "" {
		return Record{}, false, nil
	}
	key := target + "|" + string(kind)

	e, ok := b.lookup(key)
	if !ok {
		v, err, _ := b.group.Do(key, func() (any, error) {
			return b.fetch(ctx, key, base, target, kind)
		})
		if err != nil {
			return Record{}, false, err
		}
		e = v.(Entry)
	}
	if e.Status != StatusFound {
		return Record{}, false, nil
	}
	if !wantDescription || e.Record.Description != "" || e.Record.VisualID == "" {
		return e.Record, true, nil
	}

	v, _, _ := b.group.Do(key+"|d", func() (any, error) {
		return b.topUp(ctx, key), nil
	})
	return v.(Entry).Record, true, nil
}

// fetch searches the source and caches the outcome under key. One fetch runs
// per key at a time.
func (b *Bridge) fetch(ctx context.Context, key, base, target string, kind Kind) (Entry, error) {
	if e, ok := b.lookup(key); ok {
		return e, nil
	}

	results, err := b.src.Search(ctx, base)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve %q: %w", base, err)
	}

	filtered := make([]visualapi.Result, 0, len(results))
	for _, r := range results {
		if (kind == KindMovie) == (r.Type == visualapi.TypeMovie) {
			filtered = append(filtered, r)
		}
	}

	m, how, ok := match.BestMatch(target, filtered,
		func(r visualapi.Result) string { return r.Title },
		func(r visualapi.Result) string { return r.AlternativeTitle },
	)
	if !ok {
		b.logger.Debug("no visual match", "key", key, "candidates", len(filtered))
		return b.merge(key, Entry{Status: StatusNotFound}), nil
	}

	e := Entry{Status: StatusFound, Record: Record{Poster: m.Poster, Title: m.Title, VisualID: string(m.ID)}}
	b.logger.Debug("visual match", "key", key, "title", m.Title, "match", how)
	return b.merge(key, e), nil
}

// topUp adds the description to a cached hit. A failed detail call leaves the
// entry as it was.
func (b *Bridge) topUp(ctx context.Context, key string) Entry {
	e, _ := b.lookup(key)
	if e.Status != StatusFound || e.Record.Description != "" {
		return e
	}
	desc := b.describe(ctx, e.Record.VisualID)
	if desc == "" {
		return e
	}
	e.Record.Description = desc
	return b.merge(key, e)
}

// describe is best effort: failures leave the description empty.
func (b *Bridge) describe(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	desc, err := b.src.Detail(ctx, id)
	if err != nil {
		b.logger.Debug("visual detail failed", "id", id, "error", err)
		return ""
	}
	return desc
}

func (b *Bridge) lookup(key string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.cache[key]
	return e, ok
}

// merge stores e under key unless the cached entry is already a hit with a
// description, and returns what the cache holds afterwards.
func (b *Bridge) merge(key string, e Entry) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.cache[key]; ok && cur.Status == StatusFound {
		if cur.Record.Description != "" || e.Status != StatusFound {
			return cur
		}
	}
	b.cache[key] = e
	return e
}

// Entry returns the cached entry for key.
func (b *Bridge) Entry(key string) (Entry, bool) {
	return b.lookup(key)
}

// Len returns the number of cached entries, misses included.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cache)
}

// Save writes the cache to s.
func (b *Bridge) Save(s store.Store) error {
	b.mu.RLock()
	blob, err := json.Marshal(b.cache)
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode visual cache: %w", err)
	}
	if err := s.Save(StoreKey, blob); err != nil {
		return fmt.Errorf("save visual cache: %w", err)
	}
	return nil
}

// Load replaces the cache with the saved one. Entries with an unknown status
// are dropped.
func (b *Bridge) Load(s store.Store) error {
	blob, ok, err := s.Load(StoreKey)
	if err != nil {
		return fmt.Errorf("load visual cache: %w", err)
	}
	if !ok {
		return nil
	}
	var saved map[string]Entry
	if err := json.Unmarshal(blob, &saved); err != nil {
		return fmt.Errorf("decode visual cache: %w", err)
	}

	cache := make(map[string]Entry, len(saved))
	for k, e := range saved {
		if e.Status == StatusFound || e.Status == StatusNotFound {
			cache[k] = e
		}
	}
	b.mu.Lock()
	b.cache = cache
	b.mu.Unlock()
	return nil
}
