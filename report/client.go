// Package report talks to the remote barcode backend that renders PDF sheets.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/eansheet/eansheet/internal/generator"
)

// maxDetailBytes caps how much of an error body is kept as detail.
const maxDetailBytes = 4 << 10

// Client wraps interactions with the barcode backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a new client. Request deadlines are left to the caller's
// context so that the form controller owns the timeout policy.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate posts the codes and preset to the backend and returns the PDF bytes.
func (c *Client) Generate(ctx context.Context, payload generator.Request) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: backend url not configured", generator.ErrConnectivity)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set(middleware.RequestIDHeader, requestID(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = transportErr(ctx, err)
		c.logger.Warn("backend request failed", slog.String("url", req.URL.String()), slog.Any("error", err))
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		detail := errorDetail(data)
		c.logger.Warn("backend rejected generate",
			slog.Int("status", resp.StatusCode),
			slog.String("detail", detail),
			slog.String("request_id", req.Header.Get(middleware.RequestIDHeader)),
		)
		return nil, &generator.BackendError{Status: resp.StatusCode, Detail: detail}
	}
	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(ctx, err)
	}
	return pdf, nil
}

// Ping checks whether the backend answers HTTP at all. The backend exposes no
// health route, so any response below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: backend url not configured", generator.ErrConnectivity)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportErr(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDetailBytes))
	if resp.StatusCode >= 500 {
		c.logger.Warn("backend ping unhealthy", slog.Int("status", resp.StatusCode))
		return &generator.BackendError{Status: resp.StatusCode}
	}
	return nil
}

// transportErr keeps context errors recognisable and marks everything else as
// a connectivity failure.
func transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", generator.ErrConnectivity, err)
}

// errorDetail forwards the response body text as the backend sent it.
func errorDetail(data []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(data), "\uFFFD"))
}

func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
