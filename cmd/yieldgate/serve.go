package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hjagadishkumar/alfalfa-yield/internal/api"
	"github.com/hjagadishkumar/alfalfa-yield/internal/config"
	"github.com/hjagadishkumar/alfalfa-yield/internal/ingest"
	"github.com/hjagadishkumar/alfalfa-yield/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload gateway",
	Long: `Serve POST /upload, forwarding each submission to the prediction
pipeline. Waits for the pipeline health check first unless --ready-timeout=0.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Listen address (overrides YIELD_LISTEN_ADDR)")
	serveCmd.Flags().Duration("pipeline-timeout", 0, "Per-submission pipeline timeout (overrides YIELD_PIPELINE_TIMEOUT)")
	serveCmd.Flags().Duration("ready-timeout", 0, "How long to wait for the pipeline at startup (overrides YIELD_READY_TIMEOUT)")
	viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("pipeline_timeout", serveCmd.Flags().Lookup("pipeline-timeout"))
	viper.BindPFlag("ready_timeout", serveCmd.Flags().Lookup("ready-timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.NewHTTPPipeline(pipeline.Options{
		BaseURL:        cfg.PipelineURL,
		Timeout:        cfg.PipelineTimeout,
		RequestsPerSec: cfg.RequestsPerSec,
		ReadyTimeout:   cfg.ReadyTimeout,
	})

	if cfg.ReadyTimeout > 0 {
		log.Info().Str("pipeline", cfg.PipelineURL).Dur("timeout", cfg.ReadyTimeout).Msg("Waiting for pipeline")
		if err := pipe.WaitReady(ctx); err != nil {
			return fmt.Errorf("pipeline not ready: %w", err)
		}
	}

	gateway := ingest.NewGateway(pipe, ingest.Options{
		MaxSlotBytes:    cfg.MaxSlotBytes,
		PipelineTimeout: cfg.PipelineTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(gateway),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Gateway listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
