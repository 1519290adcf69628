// Package tranzy is the client for the Tranzy OpenData REST API, a partial
// GTFS implementation serving static schedule tables as JSON arrays plus a
// live vehicle positions endpoint.
//
// Endpoints:
//
//	GET /agency      - agencies available to the key (no agency header)
//	GET /routes      - routes for the agency
//	GET /stops       - stops for the agency
//	GET /trips       - trips for the agency
//	GET /stop_times  - scheduled stop times
//	GET /vehicles    - live vehicle telemetry
//
// Every request carries X-API-KEY; all but the agency listing also carry
// X-Agency-Id.
package tranzy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"tranzymon.opentransit.org/internal/logging"
	"tranzymon.opentransit.org/internal/models"
)

const (
	DefaultBaseURL = "https://api.tranzy.ai/v1/opendata"

	headerAPIKey   = "X-API-KEY"
	headerAgencyID = "X-Agency-Id"

	// maxBodySize caps response bodies; the largest table (stop_times for a
	// big agency) stays well under this.
	maxBodySize = 25 * 1024 * 1024
)

// newHTTPClient builds the dedicated client for API calls, configured with
// explicit timeouts and transport limits to avoid the pitfalls of
// http.DefaultClient. The transport is cloned from http.DefaultTransport to
// preserve proxy, dialer and HTTP/2 defaults.
func newHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 20
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &http.Client{
		// Absolute safety net per request; callers also pass a per-cycle
		// context timeout and the stricter of the two wins.
		Timeout:   15 * time.Second,
		Transport: transport,
	}
}

// Client talks to the Tranzy API for one agency. It is safe for concurrent
// use; the embedded limiter throttles outgoing requests so a burst of
// monitors sharing one key stays under the upstream 429 threshold.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	agencyID   string
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the production API base URL (tests, mirrors).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the default tuned HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit replaces the default client-side request limiter.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the given key and agency.
func NewClient(apiKey, agencyID string, opts ...Option) *Client {
	c := &Client{
		httpClient: newHTTPClient(),
		// 5 req/s with a burst of 10 clears a full static refresh (five
		// endpoints) in one burst without tripping upstream throttling.
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 10),
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		agencyID: agencyID,
		logger:   slog.Default().With(slog.String("component", "tranzy_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches one endpoint and decodes the JSON array into out.
func (c *Client) get(ctx context.Context, endpoint string, withAgency bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	if withAgency {
		req.Header.Set(headerAgencyID, c.agencyID)
	}
	req.Header.Set("Accept", "application/json")
	// Requesting gzip explicitly disables the transport's transparent
	// decompression, so the body is decoded below.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode != http.StatusOK:
		return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("HTTP %s", resp.Status)}
	}

	var body io.Reader = io.LimitReader(resp.Body, maxBodySize+1)
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("gzip decode: %w", err)}
		}
		defer logging.SafeCloseWithLogging(gz, c.logger, "gzip_reader")
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	if int64(len(data)) > maxBodySize {
		return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("response exceeds size limit of %d bytes", maxBodySize)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Agencies lists the agencies the API key can access. This is the only
// request sent without the agency header.
func (c *Client) Agencies(ctx context.Context) ([]models.Agency, error) {
	var out []models.Agency
	if err := c.get(ctx, "agency", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Routes fetches all routes for the agency.
func (c *Client) Routes(ctx context.Context) ([]models.Route, error) {
	var out []models.Route
	if err := c.get(ctx, "routes", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stops fetches all stops for the agency.
func (c *Client) Stops(ctx context.Context) ([]models.Stop, error) {
	var out []models.Stop
	if err := c.get(ctx, "stops", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trips fetches all trips for the agency.
func (c *Client) Trips(ctx context.Context) ([]models.Trip, error) {
	var out []models.Trip
	if err := c.get(ctx, "trips", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StopTimes fetches the scheduled stop times for the agency.
func (c *Client) StopTimes(ctx context.Context) ([]models.StopTime, error) {
	var out []models.StopTime
	if err := c.get(ctx, "stop_times", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Vehicles fetches current vehicle telemetry. Never cached: every call is a
// fresh request reflecting one poll cycle.
func (c *Client) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	if err := c.get(ctx, "vehicles", true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyConnection checks that the key/agency pairing works by fetching the
// routes table. An AuthError here means the configuration is wrong, not
// that the caller should wait and retry.
func (c *Client) VerifyConnection(ctx context.Context) error {
	_, err := c.Routes(ctx)
	return err
}
