package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/couchcryptid/meter-route-service/internal/observability"
)

// Client talks to the route persistence service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a persistence client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchRouteMeters returns the ordered meters of a route.
func (c *Client) FetchRouteMeters(ctx context.Context, routeID string) ([]domain.MeterRecord, error) {
	u := fmt.Sprintf("%s/routes/%s/meters", c.baseURL, url.PathEscape(routeID))

	var meters []domain.MeterRecord
	if err := c.getJSON(ctx, u, "route meters", &meters); err != nil {
		return nil, err
	}
	return meters, nil
}

// FetchMeterHistory returns the raw period-key to value history of one meter.
func (c *Client) FetchMeterHistory(ctx context.Context, meterID, routeID string) (map[string]any, error) {
	u := fmt.Sprintf("%s/routes/%s/meters/%s/history", c.baseURL, url.PathEscape(routeID), url.PathEscape(meterID))

	start := time.Now()
	var history map[string]any
	err := c.getJSON(ctx, u, "meter history", &history)
	c.metrics.HistoryFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return history, nil
}

// SubmitRouteReadings stores a finalized route. The submission ID is sent as
// the idempotency key so a retried submit is not stored twice.
func (c *Client) SubmitRouteReadings(ctx context.Context, sub domain.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	u := fmt.Sprintf("%s/routes/%s/submissions", c.baseURL, url.PathEscape(sub.RouteID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sub.SubmissionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit route readings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("persistence API error: status %d: %s", resp.StatusCode, msg)
	}
	c.logger.Debug("submission stored", "route_id", sub.RouteID, "submission_id", sub.SubmissionID)
	return nil
}

func (c *Client) getJSON(ctx context.Context, fullURL, what string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("persistence API error: status %d: %s", resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
