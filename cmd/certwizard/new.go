package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/certbuild"
	"github.com/remiblancher/certwizard/internal/cli"
	"github.com/remiblancher/certwizard/internal/draft"
	"github.com/remiblancher/certwizard/internal/keygen"
	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/wizard"
	"github.com/remiblancher/certwizard/templates"
)

var (
	newAlgorithm string
	newKeySize   int
	newSignature string
	newTemplate  string
	newOut       string
	newDraft     string
	newResume    bool
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Build a certificate interactively",
	Long: `Build a certificate interactively.

A key pair of the chosen algorithm is generated, then each step prompts
for its fields with the current values prefilled. At the end of a step,
choose next, back, finish or cancel. The certificate is self-signed with
the generated key and carries the issuer name entered in the first step.
The generated key is not saved.

Template format (YAML):
  keyPairAlgorithm: EC
  keySize: 384
  signatureAlgorithm: SHA384withECDSA
  validityDays: 825
  issuer:
    commonName: Example Root
  subject:
    commonName: www.example.com

Examples:
  # EC P-256 with the default signature algorithm
  certwizard new --algorithm EC --out leaf.crt

  # Start from a built-in template (ec-tls-server, rsa-root, mldsa-root, ed25519-v1)
  certwizard new --template ec-tls-server --out server.crt

  # Prefill from a template file and allow saving a draft
  certwizard new --template server.yaml --draft server.draft --out server.crt

  # Resume a saved draft
  certwizard new --resume --draft server.draft --out server.crt`,
	Args: cobra.NoArgs,
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVarP(&newAlgorithm, "algorithm", "a", "", "Key-pair algorithm (see 'certwizard algorithms')")
	newCmd.Flags().IntVar(&newKeySize, "key-size", 0, "Key size (default: first size listed for the algorithm)")
	newCmd.Flags().StringVar(&newSignature, "signature", "", "Signature algorithm (default: first listed for the algorithm)")
	newCmd.Flags().StringVarP(&newTemplate, "template", "t", "", "YAML template file or built-in template name prefilling the request")
	newCmd.Flags().StringVarP(&newOut, "out", "o", "", "Output certificate file (default: stdout)")
	newCmd.Flags().StringVar(&newDraft, "draft", "", "Draft file for the save command")
	newCmd.Flags().BoolVar(&newResume, "resume", false, "Resume the request saved in --draft")
}

// session ties the wizard to its key pair and audit identity.
type session struct {
	id     string
	wiz    *wizard.Wizard
	issuer *certbuild.Issuer
}

func summarize(id string, r *request.Request) audit.RequestSummary {
	s := audit.RequestSummary{
		SessionID:          id,
		Subject:            r.Subject.String(),
		Issuer:             r.Issuer.String(),
		KeyPairAlgorithm:   r.KeyPairAlgorithm,
		SignatureAlgorithm: r.SignatureAlgorithm,
		Version:            r.Version,
		Extensions:         len(r.Extensions),
	}
	if r.Serial != nil {
		s.Serial = "0x" + r.Serial.Text(16)
	}
	return s
}

// issue signs with the session key and records the attempt.
func (s *session) issue(ctx context.Context, r *request.Request) error {
	err := s.issuer.Issue(ctx, r)
	if auditErr := audit.LogCertIssued(summarize(s.id, r), err); auditErr != nil {
		return auditErr
	}
	return err
}

func runNew(cmd *cobra.Command, args []string) error {
	if newResume && newDraft == "" {
		return fmt.Errorf("--resume requires --draft")
	}

	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	sess := &session{id: uuid.NewString()}
	opts := []wizard.Option{wizard.WithIssuer(wizard.IssuerFunc(sess.issue))}
	if newResume {
		err = sess.resume(reg, opts)
	} else {
		err = sess.start(reg, opts)
	}
	if err != nil {
		return err
	}

	req := sess.wiz.Request()
	if err := audit.LogRequestStarted(sess.id, req.KeyPairAlgorithm, req.SignatureAlgorithm); err != nil {
		return err
	}
	log.Debug().Str("session", sess.id).Str("keypair_algorithm", req.KeyPairAlgorithm).Msg("request session started")

	term, err := cli.NewTerminal(os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = term.Close() }()

	runner := cli.NewRunner(sess.wiz, term, cmd.OutOrStdout(),
		cli.WithPalette(cli.NewPalette(os.Stdout)),
		cli.WithDraftPath(newDraft))

	status, err := runner.Run(cmd.Context())
	if status == wizard.StatusCancelled {
		if auditErr := audit.LogRequestCancelled(sess.id, sess.wiz.State().String()); auditErr != nil {
			return auditErr
		}
	}
	if err != nil {
		return err
	}
	if status != wizard.StatusFinished {
		return nil
	}

	result := sess.issuer.Result()
	if result == nil {
		return fmt.Errorf("certificate was not issued")
	}
	return writeCertificate(cmd.OutOrStdout(), newOut, result)
}

// start generates a key pair and a fresh request from flags and template.
func (s *session) start(reg *capability.Registry, opts []wizard.Option) error {
	tmpl, err := loadTemplate(newTemplate)
	if err != nil {
		return err
	}

	algorithm, keySize := newAlgorithm, newKeySize
	if tmpl != nil {
		if algorithm == "" {
			algorithm = tmpl.KeyPairAlgorithm
		}
		if keySize == 0 {
			keySize = tmpl.KeySize
		}
	}
	algorithm = strings.TrimSpace(algorithm)
	if algorithm == "" {
		return fmt.Errorf("--algorithm is required (or keyPairAlgorithm in the template)")
	}
	if !reg.Knows(algorithm) {
		return &keygen.UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm}
	}
	if keySize == 0 {
		if sizes := reg.KeySizesFor(algorithm); len(sizes) > 0 {
			keySize = sizes[0]
		}
	}

	keys, err := keygen.Generate(rand.Reader, algorithm, keySize)
	if err != nil {
		return err
	}
	priv, pub, err := keys.Info()
	if err != nil {
		return err
	}

	req, err := request.New(algorithm, reg.DefaultSignatureAlgorithm(algorithm))
	if err != nil {
		return err
	}
	req.PrivateKey, req.PublicKey = priv, pub
	if tmpl != nil {
		tmpl.Apply(req)
		req.KeyPairAlgorithm = algorithm
	}
	if newSignature != "" {
		req.SignatureAlgorithm = newSignature
	}

	if s.wiz, err = wizard.New(req, reg, opts...); err != nil {
		return err
	}
	s.issuer = certbuild.NewIssuer(keys)
	return nil
}

// loadTemplate reads a template file, or an embedded template when no
// file of that name exists.
func loadTemplate(name string) (*request.Template, error) {
	if name == "" {
		return nil, nil
	}
	if _, err := os.Stat(name); err == nil {
		return request.LoadTemplate(name)
	}
	return templates.Load(name)
}

// resume restores a draft and generates a fresh key pair for it.
func (s *session) resume(reg *capability.Registry, opts []wizard.Option) error {
	data, err := os.ReadFile(newDraft)
	if err != nil {
		return fmt.Errorf("failed to read draft: %w", err)
	}
	w, err := draft.Decode(data, reg, opts...)
	if err != nil {
		return err
	}

	req := w.Request()
	keySize := 0
	if req.PublicKey != nil {
		keySize = req.PublicKey.KeySize
	}
	keys, err := keygen.Generate(rand.Reader, req.KeyPairAlgorithm, keySize)
	if err != nil {
		return err
	}
	priv, pub, err := keys.Info()
	if err != nil {
		return err
	}
	if err := w.SetKeys(priv, pub); err != nil {
		return err
	}
	s.wiz = w
	s.issuer = certbuild.NewIssuer(keys)
	return nil
}

func writeCertificate(stdout io.Writer, path string, result *certbuild.Result) error {
	data := certbuild.EncodePEM(result.DER)
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	info := result.Info
	_, _ = fmt.Fprintf(stdout, "Certificate written to %s\n", path)
	_, _ = fmt.Fprintf(stdout, "  Subject: %s\n", info.Subject)
	_, _ = fmt.Fprintf(stdout, "  Issuer:  %s\n", info.Issuer)
	_, _ = fmt.Fprintf(stdout, "  Serial:  0x%s\n", info.Serial.Text(16))
	_, _ = fmt.Fprintf(stdout, "  Valid:   %s to %s\n", info.Validity.NotBefore.Format("2006-01-02"), info.Validity.NotAfter.Format("2006-01-02"))
	return nil
}
