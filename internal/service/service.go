// Package service wires the catalog, caches and clients together and exposes
// the entry points used by the HTTP adapter and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Another0Noob/animecatalog/internal/catalog"
	"github.com/Another0Noob/animecatalog/internal/config"
	"github.com/Another0Noob/animecatalog/internal/enrich"
	"github.com/Another0Noob/animecatalog/internal/primaryapi"
	"github.com/Another0Noob/animecatalog/internal/resolver"
	"github.com/Another0Noob/animecatalog/internal/store"
	"github.com/Another0Noob/animecatalog/internal/visual"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrUnknownCatalog = errors.New("unknown catalog")
)

// searchFallbackLimit caps local results when the primary search fails.
const searchFallbackLimit = 50

// Primary is the primary source as the service uses it.
type Primary interface {
	List(ctx context.Context, path string) ([]primaryapi.Record, error)
	Search(ctx context.Context, name string) ([]primaryapi.Record, error)
}

// Deps are the external collaborators.
type Deps struct {
	Primary Primary
	Visual  visual.Source
	Titles  resolver.TitleSource
	Store   store.Store
}

// Options tune the service.
type Options struct {
	Catalogs        []config.CatalogConfig
	Enrich          enrich.Options
	Deadline        time.Duration
	RefreshInterval time.Duration
	RefreshOnEmpty  bool
	FlushInterval   time.Duration
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Catalogs: cfg.Catalogs,
		Enrich: enrich.Options{
			BatchSize:   cfg.Enrich.BatchSize,
			Pause:       cfg.Enrich.Pause,
			Description: cfg.Enrich.Description,
		},
		Deadline:        cfg.Enrich.Deadline,
		RefreshInterval: cfg.Refresh.Interval,
		RefreshOnEmpty:  cfg.Refresh.OnEmpty,
		FlushInterval:   cfg.Store.FlushInterval,
	}
}

// Detail is a single item with its visual record and season links.
type Detail struct {
	catalog.Item
	Poster      string
	Description string
	VisualTitle string
	Previous    *catalog.Item
	Next        *catalog.Item
}

// Status summarizes the in-memory state.
type Status struct {
	Items         int           `json:"items"`
	VisualEntries int           `json:"visual_entries"`
	Mappings      int           `json:"mappings"`
	Refresh       enrich.Status `json:"refresh"`
}

type Service struct {
	primary   Primary
	store     store.Store
	catalog   *catalog.Catalog
	bridge    *visual.Bridge
	resolver  *resolver.Resolver
	scheduler *enrich.Scheduler
	refresher *enrich.Refresher
	opts      Options
	logger    *slog.Logger
}

// New builds a service. A nil store keeps everything in memory.
func New(deps Deps, opts Options, logger *slog.Logger) (*Service, error) {
	if deps.Primary == nil || deps.Visual == nil || deps.Titles == nil {
		return nil, errors.New("service: primary, visual and title sources are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	st := deps.Store
	if st == nil {
		var err error
		if st, err = store.Open(store.DriverMemory, ""); err != nil {
			return nil, err
		}
	}

	cat := catalog.New(logger.With("component", "catalog"))
	bridge := visual.NewBridge(deps.Visual, logger.With("component", "visual"))
	s := &Service{
		primary:   deps.Primary,
		store:     st,
		catalog:   cat,
		bridge:    bridge,
		resolver:  resolver.New(deps.Titles, deps.Primary, cat, logger.With("component", "resolver")),
		scheduler: enrich.NewScheduler(bridge, opts.Enrich, logger.With("component", "enrich")),
		opts:      opts,
		logger:    logger,
	}
	s.resolver.PersistTo(st)
	s.refresher = enrich.NewRefresher(s.Refresh, opts.RefreshInterval, logger.With("component", "refresh"))
	return s, nil
}

// Load restores the catalog and caches. Failures are logged and the affected
// table starts empty.
func (s *Service) Load() {
	if err := s.catalog.Load(s.store); err != nil {
		s.logger.Warn("catalog not restored", "error", err)
	}
	if err := s.bridge.Load(s.store); err != nil {
		s.logger.Warn("visual cache not restored", "error", err)
	}
	if err := s.resolver.Load(s.store); err != nil {
		s.logger.Warn("mappings not restored", "error", err)
	}
}

// Flush writes the catalog and caches to the store.
func (s *Service) Flush() error {
	err := errors.Join(
		s.catalog.Save(s.store),
		s.bridge.Save(s.store),
		s.resolver.Save(s.store),
	)
	if err != nil {
		s.logger.Warn("flush incomplete", "error", err)
		return err
	}
	s.logger.Debug("flushed", "items", s.catalog.Len(), "visual", s.bridge.Len(), "mappings", s.resolver.Len())
	return nil
}

// Run drives the background refresh and periodic flush until ctx is done,
// then flushes once more.
func (s *Service) Run(ctx context.Context) {
	var wg conc.WaitGroup
	wg.Go(func() { s.refresher.Run(ctx) })
	wg.Go(func() { s.flushLoop(ctx) })
	wg.Wait()
	s.Flush()
}

func (s *Service) flushLoop(ctx context.Context) {
	if s.opts.FlushInterval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(s.opts.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Flush()
		}
	}
}

// TriggerRefresh queues a background refresh.
func (s *Service) TriggerRefresh() bool {
	return s.refresher.Trigger()
}

// Refresh lists every configured catalog, merges the records and warms the
// visual cache. It keeps going past failing catalogs.
func (s *Service) Refresh(ctx context.Context) error {
	var errs []error
	total := 0
	for _, cat := range s.opts.Catalogs {
		if cat.Path == "" {
			continue
		}
		records, err := s.primary.List(ctx, cat.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("catalog %s: %w", cat.ID, err))
			continue
		}
		items := s.catalog.Upsert(records)
		total += len(items)
		s.scheduler.Enrich(ctx, items, nil, 0)
	}
	s.logger.Info("catalog refreshed", "records", total, "items", s.catalog.Len())
	s.Flush()
	return errors.Join(errs...)
}

// Catalogs returns the configured catalogs.
func (s *Service) Catalogs() []config.CatalogConfig {
	return s.opts.Catalogs
}

// ListCatalog returns the enriched entries of a catalog, or search results
// when search is set. Entries past the enrichment deadline come back
// unenriched.
func (s *Service) ListCatalog(ctx context.Context, catalogID, search string) ([]enrich.Entry, error) {
	if s.opts.RefreshOnEmpty && s.catalog.Len() == 0 {
		s.refresher.Trigger()
	}

	var items []catalog.Item
	if search = strings.TrimSpace(search); search != "" {
		records, err := s.primary.Search(ctx, search)
		if err != nil {
			s.logger.Warn("primary search failed, using local catalog", "query", search, "error", err)
			items = s.catalog.Search(search, searchFallbackLimit)
		} else {
			items = s.catalog.Upsert(records)
		}
	} else {
		cat, ok := s.catalogByID(catalogID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCatalog, catalogID)
		}
		if cat.Path == "" {
			return nil, nil
		}
		records, err := s.primary.List(ctx, cat.Path)
		if err != nil {
			return nil, fmt.Errorf("list catalog %s: %w", catalogID, err)
		}
		items = s.catalog.Upsert(records)
	}

	return s.scheduler.Enrich(ctx, items, nil, s.opts.Deadline), nil
}

func (s *Service) catalogByID(id string) (config.CatalogConfig, bool) {
	for _, c := range s.opts.Catalogs {
		if c.ID == id {
			return c, true
		}
	}
	return config.CatalogConfig{}, false
}

// ResolveForeignID maps a foreign id to an internal one.
func (s *Service) ResolveForeignID(ctx context.Context, id string) (string, error) {
	return s.resolver.Resolve(ctx, id)
}

// GetItem returns an item by internal or foreign id with its neighbors and
// visual record. A failing visual lookup only leaves the detail unenriched.
func (s *Service) GetItem(ctx context.Context, id string) (Detail, error) {
	internal := id
	if !strings.HasPrefix(id, catalog.IDPrefix) {
		resolved, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, resolver.ErrNotResolved) || errors.Is(err, resolver.ErrUnknownNamespace) {
				return Detail{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
			}
			return Detail{}, err
		}
		internal = resolved
	}

	it, ok := s.catalog.Item(internal)
	if !ok {
		return Detail{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	d := Detail{Item: it, Poster: it.Image}
	n := s.catalog.Neighbors(internal)
	if prev, ok := s.catalog.Item(n.Previous); ok {
		d.Previous = &prev
	}
	if next, ok := s.catalog.Item(n.Next); ok {
		d.Next = &next
	}

	rec, found, err := s.bridge.Resolve(context.WithoutCancel(ctx), it.Name, visual.KindOf(it.Name), true)
	switch {
	case err != nil:
		s.logger.Debug("visual lookup failed", "id", internal, "error", err)
	case found:
		if rec.Poster != "" {
			d.Poster = rec.Poster
		}
		d.Description = rec.Description
		d.VisualTitle = rec.Title
	}
	return d, nil
}

// Import merges records into the catalog and returns how many were kept.
func (s *Service) Import(records []primaryapi.Record) int {
	return len(s.catalog.Upsert(records))
}

// Items returns a snapshot of the catalog.
func (s *Service) Items() []catalog.Item {
	return s.catalog.Items()
}

// Status reports cache sizes and the refresh state.
func (s *Service) Status() Status {
	return Status{
		Items:         s.catalog.Len(),
		VisualEntries: s.bridge.Len(),
		Mappings:      s.resolver.Len(),
		Refresh:       s.refresher.Status(),
	}
}
