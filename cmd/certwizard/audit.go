package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log management",
	Long: `Commands for managing and verifying audit logs.

The audit log provides a tamper-evident record of registry loads, request
sessions and issued certificates. Each event is chained to the previous
one with a SHA-256 hash.

Examples:
  # Verify audit log integrity
  certwizard audit verify --log /var/log/certwizard/audit.jsonl

  # Show last 10 events
  certwizard audit tail --log /var/log/certwizard/audit.jsonl -n 10`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log integrity",
	Long: `Verify the cryptographic hash chain of an audit log file.

Each event in the log contains:
  - hash_prev: SHA-256 hash of the previous event
  - hash: SHA-256 hash of the current event

The chain starts with hash_prev="sha256:genesis" for the first event.

If the chain is broken (events modified, deleted, or inserted),
this command will report the location and nature of the tampering.`,
	Args: cobra.NoArgs,
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit events",
	Long:  `Display the most recent audit events from the log file.`,
	Args:  cobra.NoArgs,
	RunE:  runAuditTail,
}

var (
	auditLogFile  string
	auditTailNum  int
	auditShowJSON bool
)

func init() {
	auditVerifyCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit log file (required)")
	_ = auditVerifyCmd.MarkFlagRequired("log")

	auditTailCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit log file (required)")
	_ = auditTailCmd.MarkFlagRequired("log")
	auditTailCmd.Flags().IntVarP(&auditTailNum, "num", "n", 10, "Number of events to show")
	auditTailCmd.Flags().BoolVar(&auditShowJSON, "json", false, "Output as JSON")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Verifying audit log: %s\n\n", auditLogFile)

	count, err := audit.VerifyChain(auditLogFile)
	if err != nil {
		_, _ = fmt.Fprintf(out, "VERIFICATION FAILED\n")
		_, _ = fmt.Fprintf(out, "  Valid events: %d\n", count)
		_, _ = fmt.Fprintf(out, "  Error: %s\n", err)
		return fmt.Errorf("audit log verification failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "VERIFICATION PASSED\n")
	_, _ = fmt.Fprintf(out, "  Total events: %d\n", count)
	_, _ = fmt.Fprintf(out, "  Hash chain: VALID\n")
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	events, err := audit.Tail(auditLogFile, auditTailNum)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "Audit log is empty")
		return nil
	}

	if auditShowJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	for i := range events {
		printEvent(out, &events[i])
	}
	return nil
}

func printEvent(out io.Writer, e *audit.Event) {
	resultIcon := "✓"
	if e.Result == audit.ResultFailure {
		resultIcon = "✗"
	}

	_, _ = fmt.Fprintf(out, "[%s] %s %s\n", e.Timestamp, resultIcon, e.EventType)
	_, _ = fmt.Fprintf(out, "    Actor:  %s@%s\n", e.Actor.ID, e.Actor.Host)

	if e.Object.Type != "" {
		_, _ = fmt.Fprintf(out, "    Object: %s", e.Object.Type)
		if e.Object.ID != "" {
			_, _ = fmt.Fprintf(out, " id=%s", e.Object.ID)
		}
		if e.Object.Serial != "" {
			_, _ = fmt.Fprintf(out, " serial=%s", e.Object.Serial)
		}
		if e.Object.Subject != "" {
			_, _ = fmt.Fprintf(out, " subject=%s", e.Object.Subject)
		}
		if e.Object.Path != "" {
			_, _ = fmt.Fprintf(out, " path=%s", e.Object.Path)
		}
		_, _ = fmt.Fprintln(out)
	}

	c := e.Context
	if c.KeyPairAlgorithm != "" || c.SignatureAlgorithm != "" || c.State != "" || c.Reason != "" {
		_, _ = fmt.Fprint(out, "    Context:")
		if c.KeyPairAlgorithm != "" {
			_, _ = fmt.Fprintf(out, " keypair=%s", c.KeyPairAlgorithm)
		}
		if c.SignatureAlgorithm != "" {
			_, _ = fmt.Fprintf(out, " signature=%s", c.SignatureAlgorithm)
		}
		if c.State != "" {
			_, _ = fmt.Fprintf(out, " state=%s", c.State)
		}
		if c.Reason != "" {
			_, _ = fmt.Fprintf(out, " reason=%s", c.Reason)
		}
		_, _ = fmt.Fprintln(out)
	}

	_, _ = fmt.Fprintln(out)
}
