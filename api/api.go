package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Another0Noob/animecatalog/internal/catalog"
	"github.com/Another0Noob/animecatalog/internal/config"
	"github.com/Another0Noob/animecatalog/internal/enrich"
	"github.com/Another0Noob/animecatalog/internal/match"
	"github.com/Another0Noob/animecatalog/internal/service"
)

const (
	addonID      = "org.animecatalog"
	addonVersion = "1.0.0"
	addonName    = "Anime Catalog"
)

// Core is what the handlers need from the service.
type Core interface {
	Catalogs() []config.CatalogConfig
	ListCatalog(ctx context.Context, catalogID, search string) ([]enrich.Entry, error)
	GetItem(ctx context.Context, id string) (service.Detail, error)
	TriggerRefresh() bool
	Status() service.Status
}

// CatalogAPI serves the addon protocol on top of Core.
type CatalogAPI struct {
	core    Core
	missing []string
	logger  *slog.Logger
}

// NewCatalogAPI creates the handlers. missing lists unset settings and is
// reported by the status route.
func NewCatalogAPI(core Core, missing []string, logger *slog.Logger) *CatalogAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogAPI{core: core, missing: missing, logger: logger}
}

// Router returns the routes of the addon and the control endpoints.
func (api *CatalogAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/manifest.json", api.HandleManifest).Methods(http.MethodGet)
	r.HandleFunc("/catalog/{type}/{id}.json", api.HandleCatalog).Methods(http.MethodGet)
	r.HandleFunc("/catalog/{type}/{id}/{extra}.json", api.HandleCatalog).Methods(http.MethodGet)
	r.HandleFunc("/meta/{type}/{id}.json", api.HandleMeta).Methods(http.MethodGet)
	r.HandleFunc("/stream/{type}/{id}.json", api.HandleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/refresh", api.HandleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/status", api.HandleStatus).Methods(http.MethodGet)
	return r
}

// Addon clients load resources from other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type manifestCatalog struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Extra []manifestExtra `json:"extra,omitempty"`
}

type manifestExtra struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired,omitempty"`
}

type manifest struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Resources   []string          `json:"resources"`
	Types       []string          `json:"types"`
	Catalogs    []manifestCatalog `json:"catalogs"`
	IDPrefixes  []string          `json:"idPrefixes"`
}

// HandleManifest describes the addon.
// GET /manifest.json
func (api *CatalogAPI) HandleManifest(w http.ResponseWriter, r *http.Request) {
	m := manifest{
		ID:          addonID,
		Version:     addonVersion,
		Name:        addonName,
		Description: "Catalog with season grouping and artwork from a secondary source.",
		Resources:   []string{"catalog", "meta", "stream"},
		Types:       []string{"series", "movie"},
		IDPrefixes:  []string{catalog.IDPrefix, "tt", "kitsu"},
	}
	for _, c := range api.core.Catalogs() {
		m.Catalogs = append(m.Catalogs, manifestCatalog{Type: c.Type, ID: c.ID, Name: c.Name})
	}
	m.Catalogs = append(m.Catalogs, manifestCatalog{
		Type:  "series",
		ID:    config.CatalogSearch,
		Name:  "Busca",
		Extra: []manifestExtra{{Name: "search", IsRequired: true}},
	})
	writeJSON(w, http.StatusOK, m)
}

type metaPreview struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	Description string   `json:"description,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

func kindName(title string) string {
	if match.IsMovie(title) {
		return "movie"
	}
	return "series"
}

// HandleCatalog lists a catalog page. Upstream failures are served as an
// empty page.
// GET /catalog/{type}/{id}.json and /catalog/{type}/{id}/{extra}.json
func (api *CatalogAPI) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var search string
	if extra := vars["extra"]; extra != "" {
		q, err := url.ParseQuery(extra)
		if err != nil {
			http.Error(w, "invalid extra", http.StatusBadRequest)
			return
		}
		search = q.Get("search")
	}
	if id == config.CatalogSearch && strings.TrimSpace(search) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"metas": []metaPreview{}})
		return
	}

	entries, err := api.core.ListCatalog(r.Context(), id, search)
	if err != nil {
		if errors.Is(err, service.ErrUnknownCatalog) {
			http.Error(w, "unknown catalog", http.StatusNotFound)
			return
		}
		api.logger.Warn("catalog request failed", "catalog", id, "search", search, "error", err)
		entries = nil
	}

	metas := make([]metaPreview, 0, len(entries))
	for _, e := range entries {
		metas = append(metas, metaPreview{
			ID:          e.ID,
			Type:        kindName(e.Name),
			Name:        e.Name,
			Poster:      e.Poster,
			Description: e.Description,
			Genres:      e.Genres,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"metas": metas})
}

type metaLink struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

type metaDetail struct {
	metaPreview
	Links []metaLink `json:"links,omitempty"`
}

// HandleMeta returns one item with links to the neighboring seasons.
// GET /meta/{type}/{id}.json
func (api *CatalogAPI) HandleMeta(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d, err := api.core.GetItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"meta": nil})
			return
		}
		api.logger.Warn("meta request failed", "id", id, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"meta": nil})
		return
	}

	m := metaDetail{metaPreview: metaPreview{
		ID:          d.ID,
		Type:        kindName(d.Name),
		Name:        d.Name,
		Poster:      d.Poster,
		Description: d.Description,
		Genres:      d.Genres,
	}}
	if d.Previous != nil {
		m.Links = append(m.Links, seasonLink("Anterior: ", d.Previous))
	}
	if d.Next != nil {
		m.Links = append(m.Links, seasonLink("Próxima: ", d.Next))
	}
	writeJSON(w, http.StatusOK, map[string]any{"meta": m})
}

func seasonLink(prefix string, it *catalog.Item) metaLink {
	return metaLink{
		Name:     prefix + it.Name,
		Category: "Temporadas",
		URL:      "stremio:///detail/" + kindName(it.Name) + "/" + it.ID,
	}
}

// HandleStream always answers with no streams.
// GET /stream/{type}/{id}.json
func (api *CatalogAPI) HandleStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"streams": []any{}})
}

// HandleRefresh queues a background catalog refresh.
// POST /api/refresh
func (api *CatalogAPI) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	queued := api.core.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

// HandleStatus reports cache sizes, refresh state and missing settings.
// GET /api/status
func (api *CatalogAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		service.Status
		Missing []string `json:"missing"`
	}{api.core.Status(), api.missing})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
