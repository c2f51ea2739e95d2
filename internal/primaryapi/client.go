package primaryapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	userAgent         = "okhttp/5.0.0-SNAPSHOT"
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultRetryDelay = 500 * time.Millisecond
	rateLimitRequests = 5
	rateLimitDuration = time.Second
)

// ErrUpstream marks a non-2xx answer from the primary source.
var ErrUpstream = errors.New("primary source error")

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL    string
	SearchPath string
	Headers    map[string]string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the primary catalog source.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	searchPath  string
	headers     map[string]string
	retries     uint
	retryDelay  time.Duration
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a new primary source client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		searchPath:  strings.Trim(opts.SearchPath, "/"),
		headers:     opts.Headers,
		retries:     uint(retries),
		retryDelay:  delay,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDuration/time.Duration(rateLimitRequests)), rateLimitRequests),
		logger:      logger,
	}
}

// doRequest performs a single GET against the primary source and returns the
// body of a 2xx answer.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	fullURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: unexpected status %d: %.200s", ErrUpstream, resp.StatusCode, string(b))
		// Client errors will not improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	return b, nil
}

// getRecords fetches endpoint with the fixed-delay retry budget and decodes
// whatever record shape comes back.
func (c *Client) getRecords(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			return c.doRequest(ctx, endpoint, params)
		},
		retry.Context(ctx),
		retry.Attempts(c.retries+1),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying primary request", "endpoint", endpoint, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	records, err := DecodeRecords(body)
	if err != nil {
		// Malformed payloads count as no data.
		c.logger.Warn("primary payload not understood", "endpoint", endpoint, "error", err)
		return nil, nil
	}
	return records, nil
}

// ToValues converts tagged struct fields to url.Values. Fields without a url
// tag are skipped; ",omitempty" drops zero values.
func ToValues(q any) url.Values {
	v := url.Values{}
	rv := reflect.ValueOf(q)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return v
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("url")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				omitempty = true
			}
		}
		fv := rv.Field(i)
		if omitempty && fv.IsZero() {
			continue
		}
		v.Add(name, strings.TrimSpace(fmt.Sprintf("%v", fv.Interface())))
	}
	return v
}
