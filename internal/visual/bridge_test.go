package visual

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Another0Noob/animecatalog/internal/store"
	"github.com/Another0Noob/animecatalog/internal/visualapi"
)

type fakeSource struct {
	mu          sync.Mutex
	results     map[string][]visualapi.Result
	searchErr   error
	detail      map[string]string
	detailErr   error
	searches    int
	detailCalls int
	entered     chan struct{}
	release     chan struct{}
}

func (f *fakeSource) Search(_ context.Context, keyword string) ([]visualapi.Result, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results[keyword], nil
}

func (f *fakeSource) Detail(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if f.detailErr != nil {
		return "", f.detailErr
	}
	return f.detail[id], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frierenSource() *fakeSource {
	return &fakeSource{
		results: map[string][]visualapi.Result{
			"frieren": {
				{ID: "f-movie", Title: "Frieren", Type: "Movie", Poster: "movie.jpg"},
				{ID: "f-long", Title: "Frieren: Beyond Journey's End", Type: "TV", Poster: "long.jpg"},
				{ID: "f-tv", Title: "Sousou no Frieren", AlternativeTitle: "Frieren", Type: "TV", Poster: "tv.jpg"},
			},
		},
		detail: map[string]string{"f-tv": "An elf mage outlives her party."},
	}
}

func TestResolveFiltersByKindAndMatchesAlt(t *testing.T) {
	src := frierenSource()
	b := NewBridge(src, quietLogger())

	rec, ok, err := b.Resolve(context.Background(), "Frieren Season 2 (Legendado)", KindSeries, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{Poster: "tv.jpg", Title: "Sousou no Frieren", VisualID: "f-tv"}, rec)

	rec, ok, err = b.Resolve(context.Background(), "Frieren", KindMovie, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "f-movie", rec.VisualID)
	assert.Equal(t, 2, src.searches)
}

func TestResolveCachesHits(t *testing.T) {
	src := frierenSource()
	b := NewBridge(src, quietLogger())

	for i := 0; i < 3; i++ {
		_, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, false)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, src.searches)
}

func TestNegativeMarkerSuppressesNetwork(t *testing.T) {
	src := &fakeSource{results: map[string][]visualapi.Result{
		"unknown show": {{ID: "x", Title: "Something Else", Type: "TV"}},
	}}
	b := NewBridge(src, quietLogger())

	for i := 0; i < 3; i++ {
		_, ok, err := b.Resolve(context.Background(), "Unknown Show", KindSeries, true)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, src.searches)
	assert.Equal(t, 0, src.detailCalls)

	e, ok := b.Entry(Key("Unknown Show", KindSeries))
	require.True(t, ok)
	assert.Equal(t, StatusNotFound, e.Status)
}

func TestSearchFailureCachesNothing(t *testing.T) {
	src := &fakeSource{searchErr: errors.New("timeout")}
	b := NewBridge(src, quietLogger())

	_, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, false)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())

	_, _, _ = b.Resolve(context.Background(), "Frieren", KindSeries, false)
	assert.Equal(t, 2, src.searches)
}

func TestDescriptionFetchedOnceAndReused(t *testing.T) {
	src := frierenSource()
	b := NewBridge(src, quietLogger())

	rec, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "An elf mage outlives her party.", rec.Description)

	rec, _, _ = b.Resolve(context.Background(), "Frieren", KindSeries, true)
	assert.Equal(t, "An elf mage outlives her party.", rec.Description)
	assert.Equal(t, 1, src.searches)
	assert.Equal(t, 1, src.detailCalls)
}

func TestMissingDescriptionRepeatsOnlyDetail(t *testing.T) {
	src := frierenSource()
	b := NewBridge(src, quietLogger())

	_, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, false)
	require.NoError(t, err)
	require.True(t, ok)

	src.detailErr = errors.New("boom")
	rec, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, rec.Description)

	src.detailErr = nil
	rec, _, _ = b.Resolve(context.Background(), "Frieren", KindSeries, true)
	assert.Equal(t, "An elf mage outlives her party.", rec.Description)
	assert.Equal(t, 1, src.searches)
	assert.Equal(t, 2, src.detailCalls)
}

func TestConcurrentPlainAndDescriptionLookupsShareSearch(t *testing.T) {
	src := frierenSource()
	src.entered = make(chan struct{}, 2)
	src.release = make(chan struct{})
	b := NewBridge(src, quietLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, false)
		assert.NoError(t, err)
		assert.True(t, ok)
	}()
	<-src.entered

	var described Record
	go func() {
		defer wg.Done()
		rec, ok, err := b.Resolve(context.Background(), "Frieren", KindSeries, true)
		assert.NoError(t, err)
		assert.True(t, ok)
		described = rec
	}()
	close(src.release)
	wg.Wait()

	assert.Equal(t, "An elf mage outlives her party.", described.Description)
	assert.Equal(t, 1, src.searches)
	assert.Equal(t, 1, src.detailCalls)

	e, ok := b.Entry(Key("Frieren", KindSeries))
	require.True(t, ok)
	assert.Equal(t, "An elf mage outlives her party.", e.Record.Description)

	rec, _, _ := b.Resolve(context.Background(), "Frieren", KindSeries, true)
	assert.Equal(t, "An elf mage outlives her party.", rec.Description)
	assert.Equal(t, 1, src.detailCalls)
}

func TestMergeKeepsDescribedHit(t *testing.T) {
	b := NewBridge(frierenSource(), quietLogger())
	key := Key("Frieren", KindSeries)

	described := Entry{Status: StatusFound, Record: Record{VisualID: "f-tv", Description: "long text"}}
	b.merge(key, described)

	got := b.merge(key, Entry{Status: StatusFound, Record: Record{VisualID: "f-tv"}})
	assert.Equal(t, described, got)
	got = b.merge(key, Entry{Status: StatusNotFound})
	assert.Equal(t, described, got)

	e, _ := b.Entry(key)
	assert.Equal(t, "long text", e.Record.Description)
}

func TestEmptySlugSkipsLookup(t *testing.T) {
	src := frierenSource()
	b := NewBridge(src, quietLogger())

	_, ok, err := b.Resolve(context.Background(), "葬送のフリーレン", KindSeries, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, src.searches)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	src := frierenSource()
	src.results["nothing here"] = nil
	b := NewBridge(src, quietLogger())
	_, _, _ = b.Resolve(context.Background(), "Frieren", KindSeries, true)
	_, _, _ = b.Resolve(context.Background(), "Nothing Here", KindSeries, false)
	require.NoError(t, b.Save(s))

	fresh := NewBridge(&fakeSource{}, quietLogger())
	require.NoError(t, fresh.Load(s))
	assert.Equal(t, 2, fresh.Len())

	for _, title := range []string{"Frieren", "Nothing Here"} {
		want, _ := b.Entry(Key(title, KindSeries))
		got, ok := fresh.Entry(Key(title, KindSeries))
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindMovie, KindOf("One Piece Filme: Red"))
	assert.Equal(t, KindMovie, KindOf("Hellsing OVA"))
	assert.Equal(t, KindSeries, KindOf("One Piece"))
}
