// Package foreign fetches titles for identifiers that belong to the two
// external metadata namespaces: IMDb-style "tt" ids served by a Cinemeta
// compatible service, and "kitsu:" ids served by the Kitsu API.
package foreign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCinemetaURL = "https://v3-cinemeta.strem.io"
	DefaultKitsuURL    = "https://kitsu.io/api/edge"

	defaultTimeout    = 5 * time.Second
	rateLimitRequests = 4
	rateLimitDuration = time.Second
)

// Namespace identifies which external service owns an id.
type Namespace int

const (
	NamespaceUnknown Namespace = iota
	NamespaceCinemeta
	NamespaceKitsu
)

func (n Namespace) String() string {
	switch n {
	case NamespaceCinemeta:
		return "cinemeta"
	case NamespaceKitsu:
		return "kitsu"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned when the service has no record for the id.
var ErrNotFound = errors.New("foreign record not found")

// Parse classifies id and strips any ":season:episode" suffix. The returned
// base id keeps its namespace prefix ("tt123", "kitsu:45").
func Parse(id string) (Namespace, string, bool) {
	id = strings.TrimSpace(id)
	switch {
	case strings.HasPrefix(id, "tt"):
		base, _, _ := strings.Cut(id, ":")
		if len(base) <= 2 {
			return NamespaceUnknown, "", false
		}
		return NamespaceCinemeta, base, true
	case strings.HasPrefix(id, "kitsu:"):
		rest := strings.TrimPrefix(id, "kitsu:")
		num, _, _ := strings.Cut(rest, ":")
		if num == "" {
			return NamespaceUnknown, "", false
		}
		return NamespaceKitsu, "kitsu:" + num, true
	default:
		return NamespaceUnknown, "", false
	}
}

// Options configures a Client. Empty URLs fall back to the public services.
type Options struct {
	CinemetaURL string
	KitsuURL    string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client reads titles from both namespaces.
type Client struct {
	httpClient  *http.Client
	cinemetaURL string
	kitsuURL    string
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
	cinemeta := strings.TrimRight(opts.CinemetaURL, "/")
	if cinemeta == "" {
		cinemeta = DefaultCinemetaURL
	}
	kitsu := strings.TrimRight(opts.KitsuURL, "/")
	if kitsu == "" {
		kitsu = DefaultKitsuURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  httpClient,
		cinemetaURL: cinemeta,
		kitsuURL:    kitsu,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDuration/time.Duration(rateLimitRequests)), rateLimitRequests),
		logger:      logger,
	}
}

// Titles returns the candidate titles for a base id, best first. Cinemeta
// yields one name; Kitsu yields up to three (romanized, English, native).
func (c *Client) Titles(ctx context.Context, ns Namespace, baseID string) ([]string, error) {
	switch ns {
	case NamespaceCinemeta:
		return c.cinemetaTitles(ctx, baseID)
	case NamespaceKitsu:
		return c.kitsuTitles(ctx, strings.TrimPrefix(baseID, "kitsu:"))
	default:
		return nil, fmt.Errorf("no title source for %q", baseID)
	}
}

type cinemetaResponse struct {
	Meta *struct {
		Name string `json:"name"`
	} `json:"meta"`
}

// cinemetaTitles tries the series catalog first, then movies.
func (c *Client) cinemetaTitles(ctx context.Context, id string) ([]string, error) {
	var failure error
	for _, kind := range []string{"series", "movie"} {
		var resp cinemetaResponse
		err := c.getJSON(ctx, fmt.Sprintf("%s/meta/%s/%s.json", c.cinemetaURL, kind, id), &resp)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				failure = err
			}
			continue
		}
		if resp.Meta != nil && strings.TrimSpace(resp.Meta.Name) != "" {
			return []string{strings.TrimSpace(resp.Meta.Name)}, nil
		}
	}
	if failure != nil {
		return nil, fmt.Errorf("cinemeta %s: %w", id, failure)
	}
	return nil, fmt.Errorf("cinemeta %s: %w", id, ErrNotFound)
}

type kitsuResponse struct {
	Data *struct {
		Attributes struct {
			Titles struct {
				EnJp string `json:"en_jp"`
				En   string `json:"en"`
				JaJp string `json:"ja_jp"`
			} `json:"titles"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) kitsuTitles(ctx context.Context, id string) ([]string, error) {
	var resp kitsuResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/anime/%s", c.kitsuURL, id), &resp); err != nil {
		return nil, fmt.Errorf("kitsu %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("kitsu %s: %w", id, ErrNotFound)
	}

	t := resp.Data.Attributes.Titles
	var out []string
	seen := make(map[string]bool, 3)
	for _, s := range []string{t.EnJp, t.En, t.JaJp} {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("kitsu %s: %w", id, ErrNotFound)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, fullURL string, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
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

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("foreign request", "url", fullURL)
	return nil
}
