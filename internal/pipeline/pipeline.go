// Package pipeline forwards validated uploads to the external prediction
// service over the POST /upload contract.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	platformhttp "github.com/hjagadishkumar/alfalfa-yield/internal/platform/http"
	"github.com/hjagadishkumar/alfalfa-yield/internal/wire"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxResponseBytes caps how much of a pipeline response is buffered
const maxResponseBytes = 64 << 20

// Options configures the HTTP pipeline client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec int
	ReadyTimeout   time.Duration
}

// HTTPPipeline talks to the prediction service
type HTTPPipeline struct {
	baseURL string
	client  *platformhttp.Client
	logger  zerolog.Logger
}

// NewHTTPPipeline creates a client for the service at opts.BaseURL.
// Timeout is a transport ceiling; callers pass tighter deadlines via ctx.
func NewHTTPPipeline(opts Options) *HTTPPipeline {
	return &HTTPPipeline{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client: platformhttp.NewClient(platformhttp.ClientOptions{
			Timeout:        opts.Timeout,
			RequestsPerSec: opts.RequestsPerSec,
			MaxProbeTime:   opts.ReadyTimeout,
			Component:      "pipeline_transport",
		}),
		logger: log.With().Str("component", "pipeline_client").Logger(),
	}
}

// Analyze uploads one file for single-file analysis
func (p *HTTPPipeline) Analyze(ctx context.Context, part models.FilePart) ([]byte, error) {
	body, contentType, err := wire.EncodeSingle(part)
	if err != nil {
		return nil, err
	}
	raw, err := p.post(ctx, body, contentType)
	var perr *models.Error
	if errors.As(err, &perr) && perr.Kind == models.KindServerError &&
		(perr.StatusCode == http.StatusUnsupportedMediaType || perr.StatusCode == http.StatusUnprocessableEntity) {
		return nil, models.Wrap(models.KindUnsupportedFormat, err, "pipeline cannot parse %q", part.Filename)
	}
	return raw, err
}

// Predict uploads the five slot files in the order given as one request
func (p *HTTPPipeline) Predict(ctx context.Context, parts []models.FilePart) ([]byte, error) {
	body, contentType, err := wire.EncodeSlots(parts)
	if err != nil {
		return nil, err
	}
	return p.post(ctx, body, contentType)
}

// WaitReady blocks until the service health endpoint answers
func (p *HTTPPipeline) WaitReady(ctx context.Context) error {
	return p.client.WaitReady(ctx, p.baseURL+"/health")
}

func (p *HTTPPipeline) post(ctx context.Context, body io.Reader, contentType string) ([]byte, error) {
	url := p.baseURL + wire.UploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.DoRequest(ctx, req)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, p.classify(ctx, fmt.Errorf("reading response body: %w", err))
	}

	p.logger.Debug().Int("bytes", len(raw)).Msg("Pipeline response received")
	return raw, nil
}

func (p *HTTPPipeline) classify(ctx context.Context, err error) error {
	if code, ok := platformhttp.StatusCode(err); ok {
		p.logger.Warn().Int("status", code).Msg("Pipeline returned error status")
		return models.ServerStatus(code)
	}
	var timeout interface{ Timeout() bool }
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &timeout) && timeout.Timeout()) {
		return models.Wrap(models.KindPipelineTimeout, err, "pipeline did not answer in time")
	}
	return fmt.Errorf("pipeline request failed: %w", err)
}
