// Package catalog holds the in-memory item table and the series groups
// derived from it.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/Another0Noob/animecatalog/internal/match"
	"github.com/Another0Noob/animecatalog/internal/primaryapi"
	"github.com/Another0Noob/animecatalog/internal/store"
)

// IDPrefix is prepended to the primary source id to form an internal id.
const IDPrefix = "i-"

// StoreKey is the durable store key the catalog is saved under.
const StoreKey = "catalog"

// Item is one series season or movie known to the catalog.
type Item struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	Name     string   `json:"name"`
	Image    string   `json:"image,omitempty"`
	Base     string   `json:"base"`
	Seq      int      `json:"seq"`
	Genres   []string `json:"genres,omitempty"`
}

// Entry is a group member.
type Entry struct {
	ID  string `json:"id"`
	Seq int    `json:"seq"`
}

// Group lists the items sharing a canonical base, ascending by Seq.
type Group struct {
	Base    string
	Entries []Entry
}

// Neighbors are the ids of the adjacent seasons of an item. Empty when absent.
type Neighbors struct {
	Previous string
	Next     string
}

// ItemID mints the internal id for a primary source id.
func ItemID(sourceID string) string {
	return IDPrefix + sourceID
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	items  map[string]Item
	groups map[string][]Entry
	logger *slog.Logger
}

func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		items:  make(map[string]Item),
		groups: make(map[string][]Entry),
		logger: logger,
	}
}

// Upsert merges records into the catalog and returns the resulting items in
// input order. Records without an id are skipped.
func (c *Catalog) Upsert(records []primaryapi.Record) []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item, 0, len(records))
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		name := r.Title()
		p := match.Parse(name)
		it := Item{
			ID:       ItemID(r.SourceID()),
			SourceID: r.SourceID(),
			Name:     name,
			Image:    r.Image(),
			Base:     p.Base,
			Seq:      p.Seq,
			Genres:   []string(r.Generos),
		}
		c.put(it)
		out = append(out, it)
	}
	return out
}

// put stores it and keeps its group membership consistent. Callers hold mu.
func (c *Catalog) put(it Item) {
	if prev, ok := c.items[it.ID]; ok && prev.Base != it.Base {
		c.removeEntry(prev.Base, it.ID)
	}
	c.items[it.ID] = it

	entries := c.groups[it.Base]
	for i := range entries {
		if entries[i].ID == it.ID {
			if entries[i].Seq != it.Seq {
				entries[i].Seq = it.Seq
				sortEntries(entries)
			}
			return
		}
	}
	entries = append(entries, Entry{ID: it.ID, Seq: it.Seq})
	sortEntries(entries)
	c.groups[it.Base] = entries
}

func (c *Catalog) removeEntry(base, id string) {
	entries := c.groups[base]
	for i := range entries {
		if entries[i].ID == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(c.groups, base)
		return
	}
	c.groups[base] = entries
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
}

// Item returns the item with the given internal id.
func (c *Catalog) Item(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// Group returns a copy of the group for base.
func (c *Catalog) Group(base string) (Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.groups[base]
	if !ok {
		return Group{}, false
	}
	return Group{Base: base, Entries: append([]Entry(nil), entries...)}, true
}

// Neighbors returns the previous and next season of id within its group.
func (c *Catalog) Neighbors(id string) Neighbors {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[id]
	if !ok {
		return Neighbors{}
	}
	entries := c.groups[it.Base]
	var n Neighbors
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if i > 0 {
			n.Previous = entries[i-1].ID
		}
		if i < len(entries)-1 {
			n.Next = entries[i+1].ID
		}
		break
	}
	return n
}

// Search ranks item names against query, closest first. It serves as the
// local fallback when the primary search endpoint is unavailable.
func (c *Catalog) Search(query string, limit int) []Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	items := c.Items()
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}

	ranks := fuzzy.RankFindFold(query, names)
	sort.Stable(ranks)

	out := make([]Item, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, items[r.OriginalIndex])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Items returns a snapshot of all items ordered by id.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type snapshot struct {
	Items  map[string]Item    `json:"items"`
	Groups map[string][]Entry `json:"groups"`
}

// Save writes the item and group tables to s.
func (c *Catalog) Save(s store.Store) error {
	c.mu.RLock()
	blob, err := json.Marshal(snapshot{Items: c.items, Groups: c.groups})
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := s.Save(StoreKey, blob); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// Load replaces the in-memory tables with the saved ones. A missing blob is
// not an error; a corrupt one leaves the catalog empty and is reported.
func (c *Catalog) Load(s store.Store) error {
	blob, ok, err := s.Load(StoreKey)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if !ok {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		c.reset()
		return fmt.Errorf("decode catalog: %w", err)
	}
	if snap.Items == nil {
		snap.Items = make(map[string]Item)
	}
	if snap.Groups == nil {
		snap.Groups = make(map[string][]Entry)
	}

	c.mu.Lock()
	c.items = snap.Items
	c.groups = snap.Groups
	c.mu.Unlock()

	c.logger.Info("catalog loaded", "items", len(snap.Items), "groups", len(snap.Groups))
	return nil
}

func (c *Catalog) reset() {
	c.mu.Lock()
	c.items = make(map[string]Item)
	c.groups = make(map[string][]Entry)
	c.mu.Unlock()
}
