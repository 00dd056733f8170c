package main

import (
	"fmt"
	"strconv"
	"strings"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/bootstrap"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/certbuild"
	"github.com/remiblancher/certwizard/internal/keygen"
)

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List key-pair and signature algorithms",
	Long: `List the key-pair algorithms of the capability registry with their
signature algorithms and key sizes. The first signature algorithm is the
default for new requests. Signature algorithms marked with * are listed by
the registry but cannot be used to issue a certificate.`,
	Args: cobra.NoArgs,
	RunE: runAlgorithms,
}

// loadRegistry loads the capability tables named by the configuration.
func loadRegistry(cmd *cobra.Command) (*capability.Registry, error) {
	return bootstrap.LoadRegistry(cmd.Context(), cfg.Capabilities)
}

func runAlgorithms(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	issuable := certbuild.SignatureAlgorithms()
	unusable := false

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ALGORITHM\tSIGNATURES\tKEY SIZES\tGENERATE")
	_, _ = fmt.Fprintln(w, "---------\t----------\t---------\t--------")
	for _, name := range reg.KeyPairAlgorithms() {
		sizes := reg.KeySizesFor(name)
		if len(sizes) == 0 {
			sizes = keygen.DefaultKeySizes(name)
		}
		generate := "no"
		if keygen.Supported(name) {
			generate = "yes"
		}
		sigs := reg.SignatureAlgorithmsFor(name)
		for i, sig := range sigs {
			if !slices.Contains(issuable, sig) {
				sigs[i] = sig + "*"
				unusable = true
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			name,
			strings.Join(sigs, ", "),
			formatSizes(sizes),
			generate)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if unusable {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\n* not supported for issuance")
	}
	return nil
}

func formatSizes(sizes []int) string {
	if len(sizes) == 0 {
		return "-"
	}
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ", ")
}
