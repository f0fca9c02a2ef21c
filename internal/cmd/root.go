// Package cmd wires the CLI: the serve command that runs the copilot HTTP
// service, plus version. Logging and OpenTelemetry are configured once in
// the root command's PersistentPreRun.
package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
)

var (
	// otelShutdown is called from Execute() on exit so exporters flush.
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "chainsolve-copilot",
	Short: "AI copilot backend for ChainSolve calculation graphs",
	Long: `chainsolve-copilot turns a natural-language instruction plus a snapshot
of a user's calculation graph into a validated, risk-scored set of
graph-mutation operations.

It enforces per-plan and per-organization policy, monthly token quotas,
and a schema-contract-with-repair protocol against the model provider.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		otelEnabled := otelFlag || os.Getenv("CHAINSOLVE_OTEL_ENABLED") == "true"
		shutdown, err := otel.Setup("chainsolve-copilot", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		otelShutdown = shutdown
		return nil
	},
}

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v1.2.3).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// structured logs go to stderr so stdout stays clean for piping
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./chainsolve.config.yaml or ~/.chainsolve/chainsolve.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.chainsolve")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("chainsolve.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CHAINSOLVE")
	viper.AutomaticEnv()

	// file may not exist yet; env and defaults still apply
	_ = viper.ReadInConfig()
}

// Execute runs the root command and flushes telemetry on exit.
func Execute() {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := otelShutdown(ctx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("OpenTelemetry shutdown failed")
		}
		cancel()
	}
	if err != nil {
		os.Exit(1)
	}
}
