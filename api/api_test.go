package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Another0Noob/animecatalog/internal/catalog"
	"github.com/Another0Noob/animecatalog/internal/config"
	"github.com/Another0Noob/animecatalog/internal/enrich"
	"github.com/Another0Noob/animecatalog/internal/service"
)

type fakeCore struct {
	entries    []enrich.Entry
	listErr    error
	lastID     string
	lastSearch string
	details    map[string]service.Detail
	detailErr  error
	triggered  int
}

func (f *fakeCore) Catalogs() []config.CatalogConfig {
	return []config.CatalogConfig{{ID: config.CatalogPopular, Name: "Populares", Type: "series", Path: "p"}}
}

func (f *fakeCore) ListCatalog(_ context.Context, catalogID, search string) ([]enrich.Entry, error) {
	f.lastID, f.lastSearch = catalogID, search
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeCore) GetItem(_ context.Context, id string) (service.Detail, error) {
	if f.detailErr != nil {
		return service.Detail{}, f.detailErr
	}
	d, ok := f.details[id]
	if !ok {
		return service.Detail{}, service.ErrItemNotFound
	}
	return d, nil
}

func (f *fakeCore) TriggerRefresh() bool {
	f.triggered++
	return f.triggered == 1
}

func (f *fakeCore) Status() service.Status {
	return service.Status{Items: 7, Mappings: 2}
}

func newTestServer(t *testing.T, core *fakeCore) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewCatalogAPI(core, []string{"API_HOST_VISUAL"}, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestManifest(t *testing.T) {
	srv := newTestServer(t, &fakeCore{})

	var m manifest
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/manifest.json", &m))
	assert.Equal(t, []string{"i-", "tt", "kitsu"}, m.IDPrefixes)
	require.Len(t, m.Catalogs, 2)
	assert.Equal(t, config.CatalogPopular, m.Catalogs[0].ID)
	assert.Equal(t, config.CatalogSearch, m.Catalogs[1].ID)
	assert.True(t, m.Catalogs[1].Extra[0].IsRequired)
}

func TestCatalogRoute(t *testing.T) {
	core := &fakeCore{entries: []enrich.Entry{
		{Item: catalog.Item{ID: "i-1", Name: "Frieren"}, Poster: "p.jpg", Enriched: true},
		{Item: catalog.Item{ID: "i-2", Name: "Frieren Movie"}, Poster: "m.jpg"},
	}}
	srv := newTestServer(t, core)

	var body struct {
		Metas []metaPreview `json:"metas"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/catalog/series/cat_pop.json", &body))
	assert.Equal(t, "cat_pop", core.lastID)
	assert.Empty(t, core.lastSearch)
	require.Len(t, body.Metas, 2)
	assert.Equal(t, metaPreview{ID: "i-1", Type: "series", Name: "Frieren", Poster: "p.jpg"}, body.Metas[0])
	assert.Equal(t, "movie", body.Metas[1].Type)
}

func TestCatalogSearchExtra(t *testing.T) {
	core := &fakeCore{}
	srv := newTestServer(t, core)

	var body struct {
		Metas []metaPreview `json:"metas"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/catalog/series/cat_search/search=Jujutsu%20Kaisen.json", &body))
	assert.Equal(t, "Jujutsu Kaisen", core.lastSearch)
	assert.NotNil(t, body.Metas)
}

func TestCatalogSearchWithoutQuery(t *testing.T) {
	core := &fakeCore{}
	srv := newTestServer(t, core)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/catalog/series/cat_search.json", nil))
	assert.Empty(t, core.lastID)
}

func TestCatalogErrors(t *testing.T) {
	core := &fakeCore{listErr: service.ErrUnknownCatalog}
	srv := newTestServer(t, core)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/catalog/series/nope.json", nil))

	core.listErr = errors.New("upstream down")
	var body struct {
		Metas []metaPreview `json:"metas"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/catalog/series/cat_pop.json", &body))
	assert.NotNil(t, body.Metas)
	assert.Empty(t, body.Metas)
}

func TestMetaRoute(t *testing.T) {
	prev := catalog.Item{ID: "i-1", Name: "Show"}
	core := &fakeCore{details: map[string]service.Detail{
		"tt55": {
			Item:        catalog.Item{ID: "i-2", Name: "Show 2", Genres: []string{"Ação"}},
			Poster:      "v.jpg",
			Description: "Second season.",
			Previous:    &prev,
		},
	}}
	srv := newTestServer(t, core)

	var body struct {
		Meta metaDetail `json:"meta"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/meta/series/tt55.json", &body))
	assert.Equal(t, "i-2", body.Meta.ID)
	assert.Equal(t, "Second season.", body.Meta.Description)
	assert.Equal(t, []string{"Ação"}, body.Meta.Genres)
	require.Len(t, body.Meta.Links, 1)
	assert.Equal(t, "stremio:///detail/series/i-1", body.Meta.Links[0].URL)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/meta/series/i-404.json", nil))
}

func TestStreamRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCore{})

	var body map[string][]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stream/series/i-1.json", &body))
	assert.NotNil(t, body["streams"])
	assert.Empty(t, body["streams"])
}

func TestRefreshAndStatus(t *testing.T) {
	core := &fakeCore{}
	srv := newTestServer(t, core)

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	var queued map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&queued))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, queued["queued"])

	var status struct {
		Items   int      `json:"items"`
		Missing []string `json:"missing"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/status", &status))
	assert.Equal(t, 7, status.Items)
	assert.Equal(t, []string{"API_HOST_VISUAL"}, status.Missing)

	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, srv.URL+"/api/refresh", nil))
}

func TestCORSHeader(t *testing.T) {
	srv := newTestServer(t, &fakeCore{})
	resp, err := http.Get(srv.URL + "/manifest.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
