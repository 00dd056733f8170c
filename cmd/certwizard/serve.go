package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/api/server"
	"github.com/remiblancher/certwizard/internal/api/service"
	"github.com/remiblancher/certwizard/internal/audit"
)

// Serve command flags
var (
	servePort        int
	serveHost        string
	serveTLSCert     string
	serveTLSKey      string
	serveSignatures  string
	serveKeySizes    string
	serveSessionIdle time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wizard HTTP API",
	Long: `Start the wizard HTTP API.

Each request session is a wizard held in memory. Clients move it through
the issuer, subject, dates and extensions steps and finish it to receive
the certificate. Navigation changes are streamed as server-sent events on
/api/v1/sessions/{id}/events. Idle sessions are removed after
--session-idle.

Environment variables:
  CERTWIZARD_PORT            Listen port
  CERTWIZARD_HOST            Host to bind to
  CERTWIZARD_TLS_CERT        TLS certificate file
  CERTWIZARD_TLS_KEY         TLS private key file
  CERTWIZARD_SIGNATURES_CSV  Signature algorithm table
  CERTWIZARD_KEY_SIZES_CSV   Key size table

Examples:
  # Start on the default port with the embedded tables
  certwizard serve

  # Start with TLS
  certwizard serve --port 8443 --tls-cert server.crt --tls-key server.key`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	serveCmd.Flags().StringVar(&serveSignatures, "signatures", "", "Signature algorithm CSV (default: embedded)")
	serveCmd.Flags().StringVar(&serveKeySizes, "key-sizes", "", "Key size CSV (default: embedded)")
	serveCmd.Flags().DurationVar(&serveSessionIdle, "session-idle", 30*time.Minute, "Remove sessions idle for this long (0 keeps them)")
}

// applyServeFlags lets explicit flags override the configuration.
func applyServeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("tls-cert") {
		cfg.Server.TLSCert = serveTLSCert
	}
	if flags.Changed("tls-key") {
		cfg.Server.TLSKey = serveTLSKey
	}
	if flags.Changed("signatures") {
		cfg.Capabilities.SignaturesCSV = serveSignatures
	}
	if flags.Changed("key-sizes") {
		cfg.Capabilities.KeySizesCSV = serveKeySizes
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
	}

	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	if !audit.Enabled() {
		log.Warn().Msg("Audit logging disabled; use --audit-log to record request sessions")
	}

	serverCfg := server.FromConfig(cfg.Server)
	serverCfg.SessionIdleTimeout = serveSessionIdle

	srv := server.New(serverCfg, version, service.NewSessionService(reg), log.Logger)
	return srv.Start(cmd.Context())
}
