// Package resolver translates foreign ids into internal catalog ids by title
// search against the primary source. Resolved mappings are permanent.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/Another0Noob/animecatalog/internal/catalog"
	"github.com/Another0Noob/animecatalog/internal/foreign"
	"github.com/Another0Noob/animecatalog/internal/match"
	"github.com/Another0Noob/animecatalog/internal/primaryapi"
	"github.com/Another0Noob/animecatalog/internal/store"
)

// StoreKey is the durable store key the mappings are saved under.
const StoreKey = "mappings"

var (
	// ErrNotResolved means no candidate title found a primary record.
	ErrNotResolved = errors.New("foreign id not resolved")
	// ErrUnknownNamespace means the id belongs to neither supported namespace.
	ErrUnknownNamespace = errors.New("unknown foreign id namespace")
)

// TitleSource returns candidate titles for a base foreign id, best first.
type TitleSource interface {
	Titles(ctx context.Context, ns foreign.Namespace, baseID string) ([]string, error)
}

// Searcher searches the primary source by name.
type Searcher interface {
	Search(ctx context.Context, name string) ([]primaryapi.Record, error)
}

// Resolver is safe for concurrent use. Concurrent resolutions of one id share
// a single round-trip.
type Resolver struct {
	titles   TitleSource
	search   Searcher
	catalog  *catalog.Catalog
	mu       sync.RWMutex
	mappings map[string]string
	group    singleflight.Group
	persist  store.Store
	logger   *slog.Logger
}

func New(titles TitleSource, search Searcher, cat *catalog.Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		titles:   titles,
		search:   search,
		catalog:  cat,
		mappings: make(map[string]string),
		logger:   logger,
	}
}

// PersistTo makes every new mapping, and the catalog item it points at, reach
// s as soon as it is resolved.
func (r *Resolver) PersistTo(s store.Store) {
	r.persist = s
}

// Resolve returns the internal id for foreignID. Failures are never cached.
func (r *Resolver) Resolve(ctx context.Context, foreignID string) (string, error) {
	ns, base, ok := foreign.Parse(foreignID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNamespace, foreignID)
	}
	if id, ok := r.Mapping(base); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(base, func() (any, error) {
		if id, ok := r.Mapping(base); ok {
			return id, nil
		}
		return r.resolve(ctx, ns, base)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) resolve(ctx context.Context, ns foreign.Namespace, base string) (string, error) {
	titles, err := r.titles.Titles(ctx, ns, base)
	if err != nil {
		if errors.Is(err, foreign.ErrNotFound) {
			return "", fmt.Errorf("%w: %s has no titles", ErrNotResolved, base)
		}
		return "", fmt.Errorf("fetch titles for %s: %w", base, err)
	}

	for _, title := range titles {
		query := match.CleanTitle(norm.NFC.String(title))
		if query == "" {
			continue
		}
		results, err := r.search.Search(ctx, query)
		if err != nil {
			return "", fmt.Errorf("search %q for %s: %w", query, base, err)
		}
		if len(results) == 0 {
			continue
		}

		rec := pick(results, match.Slug(query))
		items := r.catalog.Upsert([]primaryapi.Record{rec})
		if len(items) == 0 {
			continue
		}
		id := items[0].ID

		r.mu.Lock()
		r.mappings[base] = id
		r.mu.Unlock()

		r.logger.Info("resolved foreign id", "foreign_id", base, "id", id, "title", rec.Title(), "query", query)
		r.writeThrough()
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotResolved, base)
}

// writeThrough failures are logged; the next flush retries them.
func (r *Resolver) writeThrough() {
	if r.persist == nil {
		return
	}
	if err := r.catalog.Save(r.persist); err != nil {
		r.logger.Warn("catalog not persisted", "error", err)
	}
	if err := r.Save(r.persist); err != nil {
		r.logger.Warn("mapping not persisted", "error", err)
	}
}

// pick returns the first result whose slug overlaps the query slug, or the
// first result when none does.
func pick(results []primaryapi.Record, querySlug string) primaryapi.Record {
	for _, rec := range results {
		if match.SlugOverlap(match.Slug(rec.Title()), querySlug) {
			return rec
		}
	}
	return results[0]
}

// Mapping returns the stored internal id for a base foreign id.
func (r *Resolver) Mapping(baseID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.mappings[baseID]
	return id, ok
}

// Len returns the number of stored mappings.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

// Save writes the mappings to s.
func (r *Resolver) Save(s store.Store) error {
	r.mu.RLock()
	blob, err := json.Marshal(r.mappings)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	if err := s.Save(StoreKey, blob); err != nil {
		return fmt.Errorf("save mappings: %w", err)
	}
	return nil
}

// Load replaces the mappings with the saved ones.
func (r *Resolver) Load(s store.Store) error {
	blob, ok, err := s.Load(StoreKey)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}
	if !ok {
		return nil
	}
	saved := make(map[string]string)
	if err := json.Unmarshal(blob, &saved); err != nil {
		return fmt.Errorf("decode mappings: %w", err)
	}
	if saved == nil {
		saved = make(map[string]string)
	}
	r.mu.Lock()
	r.mappings = saved
	r.mu.Unlock()
	return nil
}
