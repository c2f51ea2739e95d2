package primaryapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// List fetches a catalog listing. path is relative to the base URL and may
// carry its own query string.
func (c *Client) List(ctx context.Context, path string) ([]Record, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("list path is empty")
	}
	records, err := c.getRecords(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return valid(records), nil
}

// Search queries the search endpoint by name.
func (c *Client) Search(ctx context.Context, name string) ([]Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if c.searchPath == "" {
		return nil, errors.New("search path not configured")
	}
	records, err := c.getRecords(ctx, c.searchPath, ToValues(SearchParams{Name: name}))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", name, err)
	}
	return valid(records), nil
}

func valid(records []Record) []Record {
	out := records[:0]
	for _, r := range records {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}
