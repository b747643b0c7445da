// Package ingest validates uploaded files and hands them to the prediction
// pipeline, one atomic call per submission.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hjagadishkumar/alfalfa-yield/internal/aggregate"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxSlotBytes    = 32 << 20
	DefaultPipelineTimeout = 60 * time.Second
)

// Options bounds what the gateway accepts and how long it waits
type Options struct {
	MaxSlotBytes    int64
	PipelineTimeout time.Duration
}

// Gateway is stateless; one value may serve any number of concurrent submissions
type Gateway struct {
	pipeline models.Pipeline
	opts     Options
	logger   zerolog.Logger
}

// NewGateway creates a gateway delegating to pipeline
func NewGateway(pipeline models.Pipeline, opts Options) *Gateway {
	if opts.MaxSlotBytes <= 0 {
		opts.MaxSlotBytes = DefaultMaxSlotBytes
	}
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = DefaultPipelineTimeout
	}
	return &Gateway{
		pipeline: pipeline,
		opts:     opts,
		logger:   log.With().Str("component", "ingest_gateway").Logger(),
	}
}

// MaxSlotBytes is the largest payload accepted for one slot
func (g *Gateway) MaxSlotBytes() int64 {
	return g.opts.MaxSlotBytes
}

// SubmitSingleFile sends one opaque file for analysis and returns its metrics
func (g *Gateway) SubmitSingleFile(ctx context.Context, payload []byte, filename string) (models.Metrics, error) {
	logger := g.loggerFor(ctx).With().Str("mode", "single").Str("filename", filename).Logger()

	if len(payload) == 0 {
		return nil, models.NewError(models.KindEmptyPayload, "file %q is empty", filename)
	}
	if int64(len(payload)) > g.opts.MaxSlotBytes {
		return nil, models.NewError(models.KindPayloadTooLarge,
			"file %q is %d bytes, limit is %d", filename, len(payload), g.opts.MaxSlotBytes)
	}

	part := models.FilePart{Filename: filename, Payload: payload}
	start := time.Now()
	raw, err := g.call(ctx, func(ctx context.Context) ([]byte, error) {
		return g.pipeline.Analyze(ctx, part)
	})
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Single-file analysis failed")
		return nil, err
	}

	metrics, err := aggregate.ParseMetrics(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("Pipeline returned unusable metrics")
		return nil, err
	}

	logger.Info().Int("bytes", len(payload)).Int("metrics", len(metrics)).
		Dur("elapsed", time.Since(start)).Msg("Single-file analysis completed")
	return metrics, nil
}

// SubmitMultiFile validates a five-slot submission and forwards it in
// canonical order as one pipeline call. Nothing is sent unless every slot
// is recognized, present and non-empty.
func (g *Gateway) SubmitMultiFile(ctx context.Context, slots map[string]models.FilePart) (*models.PredictionResult, error) {
	logger := g.loggerFor(ctx).With().Str("mode", "multi").Logger()

	req, err := g.buildRequest(slots)
	if err != nil {
		logger.Info().Err(err).Msg("Rejected multi-file submission")
		return nil, err
	}

	parts := req.Ordered()
	total := 0
	for _, p := range parts {
		total += p.Size()
	}

	start := time.Now()
	raw, err := g.call(ctx, func(ctx context.Context) ([]byte, error) {
		return g.pipeline.Predict(ctx, parts)
	})
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Prediction pipeline failed")
		return nil, err
	}

	result, err := aggregate.Aggregate(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("Pipeline returned unusable prediction output")
		return nil, err
	}

	logger.Info().
		Int("bytes", total).
		Int("historical", len(result.HistoricalYields)).
		Int("predictions", len(result.AdjustedPredictions)).
		Dur("elapsed", time.Since(start)).
		Msg("Multi-file prediction completed")
	return result, nil
}

func (g *Gateway) buildRequest(slots map[string]models.FilePart) (*models.UploadRequest, error) {
	req := models.NewUploadRequest()
	for name, part := range slots {
		slot, err := models.ParseSlotName(name)
		if err != nil {
			return nil, err
		}
		part.Slot = slot
		req.Set(part)
	}

	if missing := req.Missing(); len(missing) > 0 {
		return nil, models.Incomplete(missing)
	}

	for _, part := range req.Ordered() {
		if int64(part.Size()) > g.opts.MaxSlotBytes {
			return nil, models.NewError(models.KindPayloadTooLarge,
				"%s is %d bytes, limit is %d", part.Slot, part.Size(), g.opts.MaxSlotBytes)
		}
	}
	return req, nil
}

type callResult struct {
	raw []byte
	err error
}

// call runs fn under the pipeline deadline. If ctx ends first the result
// of fn is dropped even if it arrives later.
func (g *Gateway) call(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.PipelineTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		raw, err := fn(ctx)
		done <- callResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, contextError(ctx.Err(), res.err)
		}
		return res.raw, res.err
	case <-ctx.Done():
		return nil, contextError(ctx.Err(), nil)
	}
}

func contextError(ctxErr, cause error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if errors.Is(cause, models.ErrPipelineTimeout) {
			return cause
		}
		if cause == nil {
			cause = ctxErr
		}
		return models.Wrap(models.KindPipelineTimeout, cause, "pipeline did not answer in time")
	}
	if cause != nil {
		return fmt.Errorf("submission canceled: %w", cause)
	}
	return fmt.Errorf("submission canceled: %w", ctxErr)
}

func (g *Gateway) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		sub := l.With().Str("component", "ingest_gateway").Logger()
		return &sub
	}
	return &g.logger
}
