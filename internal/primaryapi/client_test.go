package primaryapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL,
		SearchPath: "/search",
		Headers:    map[string]string{"X-App": "catalog"},
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestListShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"envelope", `{"data":[{"id":1,"titulo":"One"},{"posts_id":"2","postTitle":"Two"}]}`, []string{"1", "2"}},
		{"bare list", `[{"id":3,"titulo":"Three"},null,{"titulo":"no id"}]`, []string{"3"}},
		{"object map", `{"b":{"id":5,"titulo":"Five"},"a":{"id":4,"titulo":"Four"}}`, []string{"4", "5"}},
		{"malformed", `<html>`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/list", r.URL.Path)
				assert.Equal(t, "catalog", r.Header.Get("X-App"))
				io.WriteString(w, tt.body)
			})
			records, err := c.List(context.Background(), "list")
			require.NoError(t, err)

			var ids []string
			for _, r := range records {
				ids = append(ids, r.SourceID())
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchSendsName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Frieren", r.URL.Query().Get("name"))
		io.WriteString(w, `{"data":[{"id":10,"titulo":"Frieren","cover_url":"http://img/10.jpg"}]}`)
	})

	records, err := c.Search(context.Background(), " Frieren ")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Frieren", records[0].Title())
	assert.Equal(t, "http://img/10.jpg", records[0].Image())
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[{"id":1,"titulo":"ok"}]`)
	})

	records, err := c.List(context.Background(), "list")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.List(context.Background(), "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.List(context.Background(), "list")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmptySearchSkipsNetwork(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})
	records, err := c.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestToValues(t *testing.T) {
	v := ToValues(SearchParams{Name: "x y"})
	assert.Equal(t, "x y", v.Get("name"))
	assert.False(t, v.Has("page"))

	v = ToValues(&SearchParams{Name: "z", Page: 2})
	assert.Equal(t, "2", v.Get("page"))
}
