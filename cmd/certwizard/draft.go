package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/draft"
	"github.com/remiblancher/certwizard/internal/extension"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect saved request drafts",
}

var draftShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Print the content of a draft",
	Long: `Print the step and request fields stored in a draft file. Drafts are
written by the save command of "certwizard new" and by GET
/api/v1/sessions/{id}/draft. They hold no key material.`,
	Args: cobra.ExactArgs(1),
	RunE: runDraftShow,
}

func init() {
	draftCmd.AddCommand(draftShowCmd)
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read draft: %w", err)
	}
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	w, err := draft.Decode(data, reg)
	if err != nil {
		return err
	}
	req := w.Request()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Draft: %s\n", args[0])
	_, _ = fmt.Fprintf(out, "  Step:       %s\n", w.State())
	_, _ = fmt.Fprintf(out, "  Algorithm:  %s", req.KeyPairAlgorithm)
	if req.PublicKey != nil && req.PublicKey.KeySize > 0 {
		_, _ = fmt.Fprintf(out, " (%d)", req.PublicKey.KeySize)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "  Signature:  %s\n", req.SignatureAlgorithm)
	_, _ = fmt.Fprintf(out, "  Version:    %d\n", req.Version)
	if req.Serial != nil {
		_, _ = fmt.Fprintf(out, "  Serial:     0x%s\n", req.Serial.Text(16))
	}
	_, _ = fmt.Fprintf(out, "  Issuer:     %s\n", req.Issuer)
	_, _ = fmt.Fprintf(out, "  Subject:    %s\n", req.Subject)
	_, _ = fmt.Fprintf(out, "  Not before: %s\n", req.Validity.NotBefore.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "  Not after:  %s\n", req.Validity.NotAfter.Format(time.RFC3339))
	for i, e := range req.Extensions {
		critical := ""
		if e.Critical {
			critical = " critical"
		}
		_, _ = fmt.Fprintf(out, "  Extension %d: %s%s %q\n", i+1, extension.Describe(e.ID), critical, e.Value)
	}
	return nil
}
