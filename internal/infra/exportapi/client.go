// Package exportapi provides the HTTP adapter for the remote report
// service that owns the cached export result set. It implements the four
// boundary operations the orchestrator drives: prepare, fetch batch,
// cancel, and download.
package exportapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/avelar/rankexport/internal/domain/export"
	"github.com/avelar/rankexport/pkg/common/logger"
)

// Common errors.
var (
	ErrUnauthorized = errors.New("exportapi: authorization token rejected")
	ErrServerError  = errors.New("exportapi: server error")
)

// Config defines the information needed to talk to the report service.
type Config struct {
	// BaseURL is the root of the export API, e.g. https://reports.example.com.
	BaseURL string

	// AuthToken is the opaque per-session credential passed unchanged on
	// every call.
	AuthToken string

	// PrepareTimeout bounds the preparation request, which may trigger
	// expensive server-side computation.
	PrepareTimeout time.Duration

	// BatchTimeout bounds each batch request.
	BatchTimeout time.Duration
}

// Client implements export.JobService over HTTP. Preparation and batch
// requests use separate underlying clients because they belong to
// different timeout classes.
type Client struct {
	cfg     Config
	prepare *http.Client
	batch   *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

var _ domain.JobService = (*Client)(nil)

// NewClient creates a Client for the given service configuration.
func NewClient(cfg Config, log *logger.Logger, tracer trace.Tracer) *Client {
	return &Client{
		cfg:     cfg,
		prepare: &http.Client{Timeout: cfg.PrepareTimeout},
		batch:   &http.Client{Timeout: cfg.BatchTimeout},
		logger:  log.With("component", "exportapi_client"),
		tracer:  tracer,
	}
}

// prepareResponse is the wire shape of the preparation result.
type prepareResponse struct {
	TotalBatches int   `json:"total_batches"`
	RateLimitMS  int64 `json:"rate_limit_ms"`
}

// errorResponse is the structured failure body the service returns for
// application-level errors.
type errorResponse struct {
	Error string `json:"error"`
}

// Prepare asks the service to compute and cache the full ranked result
// set, returning the batch count and the pacing interval the server
// wants between batch requests.
func (c *Client) Prepare(ctx context.Context) (domain.PrepareResult, error) {
	ctx, span := c.tracer.Start(ctx, "exportapi.prepare")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodPost, "/export/prepare", nil)
	if err != nil {
		return domain.PrepareResult{}, err
	}

	resp, err := c.prepare.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare request failed")
		return domain.PrepareResult{}, fmt.Errorf("prepare request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare rejected")
		return domain.PrepareResult{}, err
	}

	var body prepareResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		span.RecordError(err)
		return domain.PrepareResult{}, fmt.Errorf("decode prepare response: %w", err)
	}
	if body.TotalBatches < 0 {
		return domain.PrepareResult{}, fmt.Errorf("invalid total batch count %d", body.TotalBatches)
	}

	span.SetAttributes(
		attribute.Int("total_batches", body.TotalBatches),
		attribute.Int64("rate_limit_ms", body.RateLimitMS),
	)
	return domain.PrepareResult{
		TotalBatches:   body.TotalBatches,
		PacingInterval: time.Duration(body.RateLimitMS) * time.Millisecond,
	}, nil
}

// FetchBatch requests one page of the cached result set. A structured
// error body maps to *export.BatchError; transport failures and opaque
// server errors are returned as-is. Both classes are retryable at the
// scheduler.
func (c *Client) FetchBatch(ctx context.Context, index int) error {
	ctx, span := c.tracer.Start(ctx, "exportapi.fetch_batch",
		trace.WithAttributes(attribute.Int("index", index)),
	)
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/export/batches/%d", index), nil)
	if err != nil {
		return err
	}

	resp, err := c.batch.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch request failed")
		return fmt.Errorf("fetch batch %d: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if msg, ok := decodeErrorBody(resp); ok {
		appErr := &domain.BatchError{Index: index, Message: msg}
		span.RecordError(appErr)
		span.SetStatus(codes.Error, "batch rejected by service")
		return appErr
	}

	err = statusError(resp)
	span.RecordError(err)
	span.SetStatus(codes.Error, "batch request rejected")
	return fmt.Errorf("fetch batch %d: %w", index, err)
}

// Cancel tells the service to release the cached result set early. Best
// effort: callers log failures and move on.
func (c *Client) Cancel(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "exportapi.cancel")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodPost, "/export/cancel", nil)
	if err != nil {
		return err
	}

	resp, err := c.batch.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cancel request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Download retrieves the assembled export file as a stream. The caller
// owns closing the returned reader.
func (c *Client) Download(ctx context.Context) (io.ReadCloser, error) {
	ctx, span := c.tracer.Start(ctx, "exportapi.download")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/export/download", nil)
	if err != nil {
		return nil, err
	}

	// The file can be large; downloads are not bounded by the batch
	// timeout class.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download request failed")
		return nil, fmt.Errorf("download request: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "download rejected")
		return nil, err
	}

	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	req.Header.Set("Accept", "application/json, text/csv")
	return req, nil
}

// decodeErrorBody extracts the structured error message from a JSON
// failure response, reporting ok=false for opaque bodies.
func decodeErrorBody(resp *http.Response) (string, bool) {
	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || ct != "application/json" {
		return "", false
	}

	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return "", false
	}
	if body.Error == "" {
		return "", false
	}
	return body.Error, true
}

// checkStatus returns an appropriate error for non-success status codes.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, http.StatusText(resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
