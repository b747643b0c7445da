// Package client submits files to a running gateway the way the mobile
// screens did and reports progress through a status tracker.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hjagadishkumar/alfalfa-yield/internal/aggregate"
	platformhttp "github.com/hjagadishkumar/alfalfa-yield/internal/platform/http"
	"github.com/hjagadishkumar/alfalfa-yield/internal/wire"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxResponseBytes caps how much of a gateway response is buffered
var maxResponseBytes int64 = 64 << 20

// Options configures the client
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// Client uploads files to the gateway
type Client struct {
	baseURL string
	http    *platformhttp.Client
	tracker *models.Tracker
	logger  zerolog.Logger
}

// New creates a client for the gateway at opts.BaseURL
func New(opts Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: platformhttp.NewClient(platformhttp.ClientOptions{
			Timeout:        opts.RequestTimeout,
			RequestsPerSec: opts.RequestsPerSec,
			Component:      "upload_transport",
		}),
		tracker: models.NewTracker(),
		logger:  log.With().Str("component", "upload_client").Logger(),
	}
}

// Tracker exposes the status of the latest submission
func (c *Client) Tracker() *models.Tracker {
	return c.tracker
}

// UploadFile reads one file from disk and submits it for analysis
func (c *Client) UploadFile(ctx context.Context, path string) (models.Metrics, error) {
	part, err := readPart("", path)
	if err != nil {
		c.tracker.Fail(err)
		return nil, err
	}
	return c.SubmitFile(ctx, part)
}

// SubmitFile sends one in-memory file for single-file analysis
func (c *Client) SubmitFile(ctx context.Context, part models.FilePart) (models.Metrics, error) {
	if part.Size() == 0 {
		err := models.NewError(models.KindEmptyPayload, "file %q is empty", part.Filename)
		c.tracker.Fail(err)
		return nil, err
	}

	c.tracker.Start()
	body, contentType, err := wire.EncodeSingle(part)
	if err != nil {
		c.tracker.Fail(err)
		return nil, err
	}

	raw, err := c.post(ctx, body, contentType)
	if err != nil {
		c.tracker.Fail(err)
		return nil, err
	}

	metrics, err := aggregate.ParseMetrics(raw)
	if err != nil {
		err = asUnexpected(err)
		c.tracker.Fail(err)
		return nil, err
	}

	c.tracker.CompleteMetrics(metrics)
	return metrics, nil
}

// UploadSlots reads the five slot files from disk and submits them together.
// Nothing is read or sent unless every slot has a path.
func (c *Client) UploadSlots(ctx context.Context, paths map[models.SlotName]string) (*models.PredictionResult, error) {
	var missing []models.SlotName
	for _, slot := range models.CanonicalSlots {
		if paths[slot] == "" {
			missing = append(missing, slot)
		}
	}
	if len(missing) > 0 {
		err := models.Incomplete(missing)
		c.tracker.Fail(err)
		return nil, err
	}

	req := models.NewUploadRequest()
	for slot, path := range paths {
		if _, err := models.ParseSlotName(string(slot)); err != nil {
			c.tracker.Fail(err)
			return nil, err
		}
		part, err := readPart(slot, path)
		if err != nil {
			c.tracker.Fail(err)
			return nil, err
		}
		req.Set(part)
	}
	return c.SubmitSlots(ctx, req)
}

// SubmitSlots sends an in-memory multi-file submission
func (c *Client) SubmitSlots(ctx context.Context, req *models.UploadRequest) (*models.PredictionResult, error) {
	if missing := req.Missing(); len(missing) > 0 {
		err := models.Incomplete(missing)
		c.tracker.Fail(err)
		return nil, err
	}

	c.tracker.Start()
	body, contentType, err := wire.EncodeSlots(req.Ordered())
	if err != nil {
		c.tracker.Fail(err)
		return nil, err
	}

	raw, err := c.post(ctx, body, contentType)
	if err != nil {
		c.tracker.Fail(err)
		return nil, err
	}

	result, err := aggregate.Aggregate(raw)
	if err != nil {
		err = asUnexpected(err)
		c.tracker.Fail(err)
		return nil, err
	}

	c.tracker.Complete(result)
	return result, nil
}

func (c *Client) post(ctx context.Context, body io.Reader, contentType string) ([]byte, error) {
	url := c.baseURL + wire.UploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug().Str("url", url).Msg("Uploading")
	resp, err := c.http.DoRequest(ctx, req)
	if err != nil {
		if code, ok := platformhttp.StatusCode(err); ok {
			c.logger.Error().Int("status", code).Msg("Server error")
			return nil, models.ServerStatus(code)
		}
		if isTimeout(err) {
			return nil, models.Wrap(models.KindPipelineTimeout, err, "gateway did not answer in time")
		}
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, models.Wrap(models.KindPipelineTimeout, err, "gateway did not answer in time")
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(raw)) > maxResponseBytes {
		return nil, models.NewError(models.KindUnexpectedResponseFormat,
			"response exceeds %d bytes", maxResponseBytes)
	}
	return raw, nil
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout())
}

// asUnexpected reports missing or mistyped response keys as UnexpectedResponseFormat
func asUnexpected(err error) error {
	var perr *models.Error
	if errors.As(err, &perr) && perr.Kind == models.KindMalformedPipelineOutput {
		return models.Wrap(models.KindUnexpectedResponseFormat, err, "unexpected response format")
	}
	return err
}

func readPart(slot models.SlotName, path string) (models.FilePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.FilePart{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return models.FilePart{Slot: slot, Filename: filepath.Base(path), Payload: data}, nil
}
