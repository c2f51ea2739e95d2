// Package visualapi is a small client for the secondary source that supplies
// posters, alternate titles and long descriptions.
package visualapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 2500 * time.Millisecond
	defaultDetailPath = "anime/details"
	rateLimitRequests = 8
	rateLimitDuration = time.Second
)

// TypeMovie is the result type the source uses for films.
const TypeMovie = "Movie"

// ErrNotConfigured is returned when no base URL is set.
var ErrNotConfigured = errors.New("visual source not configured")

// ID accepts a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Result is one hit of the search endpoint.
type Result struct {
	ID               ID     `json:"id"`
	Title            string `json:"title"`
	AlternativeTitle string `json:"alternativeTitle,omitempty"`
	Type             string `json:"type"`
	Poster           string `json:"poster"`
}

type searchResponse struct {
	Data *struct {
		Response []Result `json:"response"`
	} `json:"data"`
}

type detailResponse struct {
	Data *struct {
		Description string `json:"description"`
	} `json:"data"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	DetailPath string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client queries the visual source. Calls are never retried.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	detailPath  string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	detail := strings.Trim(opts.DetailPath, "/")
	if detail == "" {
		detail = defaultDetailPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		detailPath:  detail,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDuration/time.Duration(rateLimitRequests)), rateLimitRequests),
		logger:      logger,
	}
}

// Search looks up keyword on the first result page. A payload without the
// expected envelope is reported as an error so callers do not cache it.
func (c *Client) Search(ctx context.Context, keyword string) ([]Result, error) {
	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("page", "1")

	var resp searchResponse
	if err := c.getJSON(ctx, "search", params, &resp); err != nil {
		return nil, fmt.Errorf("visual search %q: %w", keyword, err)
	}
	if resp.Data == nil || resp.Data.Response == nil {
		return nil, fmt.Errorf("visual search %q: missing data.response", keyword)
	}
	return resp.Data.Response, nil
}

// Detail fetches the long description for a visual id.
func (c *Client) Detail(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	params.Set("id", id)

	var resp detailResponse
	if err := c.getJSON(ctx, c.detailPath, params, &resp); err != nil {
		return "", fmt.Errorf("visual detail %s: %w", id, err)
	}
	if resp.Data == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Data.Description), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("visual request", "endpoint", endpoint)
	return nil
}
