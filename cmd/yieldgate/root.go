package main

import (
	"os"

	"github.com/hjagadishkumar/alfalfa-yield/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "yieldgate",
	Short: "Alfalfa yield upload gateway",
	Long: `Accepts dataset uploads for the alfalfa yield pipeline and returns
its predictions. Run "serve" for the HTTP gateway or "upload" to submit files
to a running gateway.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(cfg.Level())
		return nil
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(config.Init)

	rootCmd.PersistentFlags().String("pipeline-url", "", "Pipeline base URL (overrides YIELD_PIPELINE_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides YIELD_LOG_LEVEL)")
	viper.BindPFlag("pipeline_url", rootCmd.PersistentFlags().Lookup("pipeline-url"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}
