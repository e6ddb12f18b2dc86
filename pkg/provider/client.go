// Package provider calls the remote image generation service with bounded
// concurrency, per-attempt timeouts and exponential retry backoff.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/models"
)

const apiKeyHeader = "x-goog-api-key"

// Request asks for one generated image at exact pixel dimensions.
type Request struct {
	Prompt string
	Width  int
	Height int
}

// Client is the generation provider client. A process-wide weighted
// semaphore caps concurrent outbound calls.
type Client struct {
	endpoint       string
	apiKey         string
	unitCost       float64
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	dryRun         bool

	sem        *semaphore.Weighted
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client from provider configuration. unitCost is the
// catalog price charged per successful generation; dryRun disables
// network I/O entirely.
func NewClient(cfg config.ProviderConfig, unitCost float64, dryRun bool, opts ...Option) *Client {
	c := &Client{
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		unitCost:       unitCost,
		maxRetries:     cfg.MaxRetries,
		baseDelay:      time.Duration(cfg.BaseDelaySeconds * float64(time.Second)),
		attemptTimeout: time.Duration(cfg.PerAttemptTimeoutSeconds * float64(time.Second)),
		dryRun:         dryRun,
		sem:            semaphore.NewWeighted(cfg.MaxConcurrent),
		httpClient:     &http.Client{},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// generateRequest is the provider wire format.
type generateRequest struct {
	Instances  []generateInstance `json:"instances"`
	Parameters generateParameters `json:"parameters"`
}

type generateInstance struct {
	Prompt string `json:"prompt"`
}

type generateParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio"`
}

type generateResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

// Generate produces one image for req, blocking on the concurrency
// semaphore. Transient failures (network, 5xx, timeout) are retried up to
// maxRetries times with exponential backoff; client errors are terminal.
func (c *Client) Generate(ctx context.Context, req Request) (*models.Artifact, error) {
	if c.dryRun {
		data, err := syntheticPNG(req.Width, req.Height)
		if err != nil {
			return nil, &Error{Kind: KindMalformed, Msg: "render dry-run image", Err: err}
		}
		return &models.Artifact{Bytes: data, ChargedCost: 0, Method: "dry_run"}, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &Error{Kind: KindTimeout, Msg: "waiting for provider slot", Err: err}
	}
	defer c.sem.Release(1)

	var lastErr *Error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay * time.Duration(1<<(attempt-2))
			c.logger.Info("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Msg: "canceled during backoff", Err: ctx.Err()}
			}
		}

		artifact, err := c.attempt(ctx, req)
		if err == nil {
			return artifact, nil
		}

		var perr *Error
		if !errors.As(err, &perr) {
			perr = &Error{Kind: KindNetwork, Msg: "provider call failed", Err: err}
		}
		if !perr.Retriable() {
			return nil, perr
		}
		lastErr = perr
		c.logger.Warn("provider attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(perr.Kind)),
			zap.Error(perr))
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req Request) (*models.Artifact, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Instances: []generateInstance{{Prompt: req.Prompt}},
		Parameters: generateParameters{
			SampleCount: 1,
			AspectRatio: AspectRatio(req.Width, req.Height),
		},
	})
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, &Error{Kind: KindTimeout, Msg: "attempt timed out", Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Msg: "send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Msg: "read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindQuotaExceeded, Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindHTTPServer, Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &Error{Kind: KindHTTPClient, Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "parse response", Err: err}
	}
	if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
		return nil, &Error{Kind: KindMalformed, Msg: "response carries no image"}
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "decode image payload", Err: err}
	}

	png, err := normalizePNG(raw, req.Width, req.Height)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Msg: "normalize image", Err: err}
	}

	return &models.Artifact{Bytes: png, ChargedCost: c.unitCost, Method: "provider"}, nil
}
