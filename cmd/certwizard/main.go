// Command certwizard builds X.509 certificates step by step, interactively
// or through its HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/config"
	"github.com/remiblancher/certwizard/internal/logging"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	auditLogPath string
	logLevel     string
)

// cfg is loaded before any subcommand runs.
var cfg = config.Default()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certwizard",
	Short: "Step-by-step X.509 certificate builder",
	Long: `certwizard assembles an X.509 certificate in four steps: issuer name,
subject name, dates (version, serial, validity, signature algorithm) and
extensions. A request can only move forward once the current step is valid.

The available key-pair and signature algorithms come from two CSV tables,
embedded by default or loaded from files set in the configuration.

Examples:
  # Walk through a new EC certificate in the terminal
  certwizard new --algorithm EC --out leaf.crt

  # Prefill the request from a template
  certwizard new --template server.yaml --out server.crt

  # Serve the wizard over HTTP
  certwizard serve --port 8080

  # List algorithms
  certwizard algorithms`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		logging.Setup(cfg.Log.Level, os.Stderr)

		// Flag wins over config file and CERTWIZARD_AUDIT_LOG
		if auditLogPath != "" {
			cfg.Audit.Log = auditLogPath
		}
		if cfg.Audit.Log != "" {
			if err := audit.InitFile(cfg.Audit.Log); err != nil {
				return fmt.Errorf("failed to initialize audit log: %w", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return audit.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set CERTWIZARD_AUDIT_LOG env var)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(algorithmsCmd)
	rootCmd.AddCommand(extCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(auditCmd)
}
