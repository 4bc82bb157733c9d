// Package backend is the HTTP client for the LHASA forecast API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/lox/hazardmap/internal/htmlutil"
	"github.com/lox/hazardmap/internal/httputil"
	"github.com/lox/hazardmap/internal/metrics"
	"github.com/lox/hazardmap/internal/models"
)

// ErrNotFound is returned when the backend answers 404, usually for an unknown raster.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Auditor records every backend call. The store implements it.
type Auditor interface {
	InsertFetchRun(run models.FetchRun) error
}

// Archiver keeps raw response bodies for the registry and country endpoints.
type Archiver interface {
	StoreRawPayload(endpoint string, payload []byte) (int64, error)
}

// Client talks to the backend named by one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	maxElapsed time.Duration
	validate   *validator.Validate
	auditor    Auditor
	archiver   Archiver
}

// Option configures a Client.
type Option func(*Client)

// WithRetries retries transport errors, 429 and 5xx up to n extra times.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithAuditor(a Auditor) Option {
	return func(c *Client) { c.auditor = a }
}

func WithArchiver(a Archiver) Option {
	return func(c *Client) { c.archiver = a }
}

// NewClient creates a backend client. The base URL must not end with a slash.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: httputil.NewClient(timeout),
		maxElapsed: 2 * time.Minute,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TileURLTemplate returns the slippy-map template for a raster's overlay tiles.
func (c *Client) TileURLTemplate(tif string) string {
	return TileURLTemplate(c.baseURL, tif)
}

// TileURLTemplate builds `{base}/tiles/{z}/{x}/{y}.png?tif=<file>`.
func TileURLTemplate(base, tif string) string {
	return base + "/tiles/{z}/{x}/{y}.png?tif=" + url.QueryEscape(tif)
}

// Ping checks the backend root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Message string `json:"message"`
	}
	return c.getJSON(ctx, "root", "/", nil, "", &resp)
}

// Countries returns the selectable countries with their NUTS code.
func (c *Client) Countries(ctx context.Context) ([]models.Country, error) {
	var countries []models.Country
	if err := c.getJSON(ctx, "countries", "/countries/", nil, "", &countries); err != nil {
		return nil, err
	}
	for i := range countries {
		if err := c.validate.Struct(countries[i]); err != nil {
			return nil, fmt.Errorf("countries: entry %d: %w", i, err)
		}
	}
	return countries, nil
}

// Files returns the available date to file mapping.
func (c *Client) Files(ctx context.Context) (map[string]models.FileInfo, error) {
	var files map[string]*models.FileInfo
	if err := c.getJSON(ctx, "files", "/files", nil, "", &files); err != nil {
		return nil, err
	}
	out := make(map[string]models.FileInfo, len(files))
	for date, info := range files {
		if info == nil {
			return nil, fmt.Errorf("files: %s has no file info", date)
		}
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("files: invalid date key %q", date)
		}
		if err := c.validate.Struct(info); err != nil {
			return nil, fmt.Errorf("files: %s: %w", date, err)
		}
		out[date] = *info
	}
	return out, nil
}

// Forecast returns the chart payload for a NUTS region and raster.
func (c *Client) Forecast(ctx context.Context, nutsID, tif string) (*models.ForecastPlot, error) {
	q := url.Values{"nuts_id": {nutsID}, "tif": {tif}}
	var plot models.ForecastPlot
	if err := c.getJSON(ctx, "forecast", "/forecast/", q, tif, &plot); err != nil {
		return nil, err
	}
	if len(plot.Data) == 0 {
		return nil, errors.New("forecast: empty plot data")
	}
	return &plot, nil
}

// Download asks the backend to refresh its data. The response body is ignored.
func (c *Client) Download(ctx context.Context) error {
	_, _, err := c.do(ctx, "download", http.MethodPost, "/download/", nil, "")
	return err
}

// Bounds returns the extent of a raster. Both `{"bounds": [...]}` and a bare array are accepted.
func (c *Client) Bounds(ctx context.Context, tif string) (models.Bounds, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "bounds", "/bounds", url.Values{"tif": {tif}}, tif, &raw); err != nil {
		return models.Bounds{}, err
	}

	var values []float64
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return models.Bounds{}, fmt.Errorf("bounds: decode: %w", err)
		}
	} else {
		var wrapped struct {
			Bounds []float64 `json:"bounds" validate:"len=4"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return models.Bounds{}, fmt.Errorf("bounds: decode: %w", err)
		}
		if err := c.validate.Struct(wrapped); err != nil {
			return models.Bounds{}, fmt.Errorf("bounds: %w", err)
		}
		values = wrapped.Bounds
	}
	if len(values) != 4 {
		return models.Bounds{}, fmt.Errorf("bounds: expected 4 values, got %d", len(values))
	}

	b := models.Bounds{values[0], values[1], values[2], values[3]}
	if !b.Valid() {
		return models.Bounds{}, fmt.Errorf("bounds: invalid extent %v", values)
	}
	return b, nil
}

// Statistics returns the band statistics of a raster.
func (c *Client) Statistics(ctx context.Context, tif string) (*models.Statistics, error) {
	var stats models.Statistics
	if err := c.getJSON(ctx, "statistics", "/statistics", url.Values{"tif": {tif}}, tif, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Tile fetches one rendered overlay tile.
func (c *Client) Tile(ctx context.Context, tif string, z, x, y int) ([]byte, string, error) {
	path := fmt.Sprintf("/tiles/%d/%d/%d.png", z, x, y)
	body, header, err := c.do(ctx, "tiles", http.MethodGet, path, url.Values{"tif": {tif}}, tif)
	if err != nil {
		return nil, "", err
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return body, contentType, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, tif string, v any) error {
	body, _, err := c.do(ctx, endpoint, http.MethodGet, path, query, tif)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	c.archive(endpoint, body)
	return nil
}

func (c *Client) archive(endpoint string, body []byte) {
	if c.archiver == nil || (endpoint != "files" && endpoint != "countries") {
		return
	}
	if _, err := c.archiver.StoreRawPayload(endpoint, body); err != nil {
		log.Printf("backend: archive %s payload: %v", endpoint, err)
	}
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, tif string) ([]byte, http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	run := models.FetchRun{
		StartedAt:  time.Now().UTC(),
		Endpoint:   endpoint,
		RasterFile: tif,
	}

	var body []byte
	var header http.Header
	operation := func() error {
		run.Attempts++
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: create request: %w", endpoint, err))
		}
		req.Header.Set("User-Agent", "hazardmap/1.0")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		metrics.BackendLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BackendCallsTotal.WithLabelValues(endpoint, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%s: %w", endpoint, err))
			}
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		run.HTTPStatus = resp.StatusCode
		metrics.BackendCallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := &StatusError{
				Endpoint: endpoint,
				Code:     resp.StatusCode,
				Body:     htmlutil.ErrorSnippet(string(b), resp.Header.Get("Content-Type"), 200),
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: read body: %w", endpoint, err))
		}
		header = resp.Header
		return nil
	}

	var err error
	if c.retries > 0 {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = c.maxElapsed
		err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retries)), ctx))
	} else {
		err = operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	run.FinishedAt = time.Now().UTC()
	run.ResponseSizeBytes = len(body)
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	c.audit(run)

	return body, header, err
}

func (c *Client) audit(run models.FetchRun) {
	if c.auditor == nil || run.Endpoint == "tiles" {
		return
	}
	if err := c.auditor.InsertFetchRun(run); err != nil {
		log.Printf("backend: record %s fetch: %v", run.Endpoint, err)
	}
}
