package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/tourmap-app/metrics"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "tourmap-app/1.0"
	DefaultTimeout   = 5 * time.Second
	// DefaultRateLimit is the usage policy of the public instance
	DefaultRateLimit = rate.Limit(1.0)
	MaxRetries       = 2
	RetryBaseDelay   = time.Second
)

var ErrNoResults = errors.New("no place found")

// Place is a geocoded place
type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName"`
}

// searchResult is one item of the format=jsonv2 search response. Coordinates come as strings.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type Client struct {
	doer      httpextra.Doer
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithRateLimit sets requests per second
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a client. email is added to the User-Agent, as the public instance asks for contact details.
func NewClient(doer httpextra.Doer, baseURL, email string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := DefaultUserAgent
	if email != "" {
		userAgent = fmt.Sprintf("%s (%s)", DefaultUserAgent, email)
	}

	client := &Client{
		doer:      doer,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		limiter:   rate.NewLimiter(DefaultRateLimit, 1),
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Search finds the best match for a free-text place name
func (c *Client) Search(ctx context.Context, query string) (*Place, errorsx.Error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errorsx.Errorf("query cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	var results []searchResult
	err := c.doWithRetry(ctx, c.baseURL+"/search?"+params.Encode(), &results)
	if err != nil {
		return nil, errorsx.Wrap(err, "query", query)
	}

	if len(results) == 0 {
		return nil, errorsx.Wrap(ErrNoResults, "query", query)
	}

	return results[0].toPlace()
}

func (r searchResult) toPlace() (*Place, errorsx.Error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, errorsx.Wrap(err, "lat", r.Lat)
	}

	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, errorsx.Wrap(err, "lon", r.Lon)
	}

	validationErr := tourmap.ValidateCoords(lat, lon)
	if validationErr != nil {
		return nil, validationErr
	}

	return &Place{Lat: lat, Lon: lon, DisplayName: r.DisplayName}, nil
}

// doWithRetry retries network failures, 429 and 5xx with exponential backoff
func (c *Client) doWithRetry(ctx context.Context, requestURL string, dest interface{}) errorsx.Error {
	var lastErr errorsx.Error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			err := c.sleep(ctx, RetryBaseDelay*time.Duration(1<<uint(attempt-1)))
			if err != nil {
				return errorsx.Wrap(err)
			}
		}

		err := c.limiter.Wait(ctx)
		if err != nil {
			return errorsx.Wrap(err)
		}

		retry, err := c.do(ctx, requestURL, dest)
		if err == nil {
			return nil
		}
		lastErr = errorsx.Wrap(err, "attempt", attempt)
		if !retry {
			return lastErr
		}
	}

	return lastErr
}

func (c *Client) do(ctx context.Context, requestURL string, dest interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		metrics.ObserveUpstream("nominatim", "search", 0, start)
		return true, err
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream("nominatim", "search", resp.StatusCode, start)

	switch {
	case resp.StatusCode == http.StatusOK:
		err = json.NewDecoder(resp.Body).Decode(dest)
		if err != nil {
			return false, err
		}
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return true, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, httpextra.GetBodyOrErrorMsg(resp))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
