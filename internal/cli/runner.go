package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/remiblancher/certwizard/internal/draft"
	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/validation"
	"github.com/remiblancher/certwizard/internal/wizard"
)

// stepCount is the number of wizard steps shown in the header.
const stepCount = 4

// Runner walks a wizard step by step on a terminal.
type Runner struct {
	wiz       *wizard.Wizard
	prompt    Prompter
	out       io.Writer
	palette   Palette
	random    io.Reader
	draftPath string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPalette sets the output colors.
func WithPalette(p Palette) RunnerOption {
	return func(r *Runner) { r.palette = p }
}

// WithRandom sets the entropy source for generated serial numbers.
func WithRandom(random io.Reader) RunnerOption {
	return func(r *Runner) { r.random = random }
}

// WithDraftPath enables the save command, writing drafts to path.
func WithDraftPath(path string) RunnerOption {
	return func(r *Runner) { r.draftPath = path }
}

// NewRunner creates a Runner for wiz.
func NewRunner(wiz *wizard.Wizard, prompt Prompter, out io.Writer, opts ...RunnerOption) *Runner {
	r := &Runner{wiz: wiz, prompt: prompt, out: out, random: rand.Reader}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run prompts until the wizard is finished or cancelled and returns the
// final status. Ctrl-C or end of input cancels the request.
func (r *Runner) Run(ctx context.Context) (wizard.Status, error) {
	for r.wiz.Status() == wizard.StatusActive {
		if err := ctx.Err(); err != nil {
			return r.abort(err)
		}
		r.header()
		err := r.editStep()
		if err == nil {
			err = r.command(ctx)
		}
		if errors.Is(err, ErrInterrupted) || errors.Is(err, io.EOF) {
			return r.abort(nil)
		}
		if err != nil {
			return r.wiz.Status(), err
		}
	}
	return r.wiz.Status(), nil
}

func (r *Runner) abort(cause error) (wizard.Status, error) {
	if r.wiz.Status() == wizard.StatusActive {
		_ = r.wiz.Cancel()
	}
	fmt.Fprintf(r.out, "\nRequest %s\n", r.palette.FormatStatus(r.wiz.Status().String()))
	return r.wiz.Status(), cause
}

func (r *Runner) header() {
	state := r.wiz.State()
	fmt.Fprintf(r.out, "\n%s\n", r.palette.Step(fmt.Sprintf("[%d/%d] %s", int(state)+1, stepCount, state)))
}

// report prints err and returns whether the action succeeded.
func (r *Runner) report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, wizard.ErrNoNextState):
		fmt.Fprintf(r.out, "%s\n", r.palette.Warn("No further step; use finish"))
	case errors.Is(err, wizard.ErrNoPreviousState):
		fmt.Fprintf(r.out, "%s\n", r.palette.Warn("Already on the first step"))
	default:
		var ve *validation.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(r.out, "%s %s\n", r.palette.Error("✗"), ve.Message)
		} else {
			fmt.Fprintf(r.out, "%s %s\n", r.palette.Error("✗"), err)
		}
	}
	return false
}

func (r *Runner) editStep() error {
	req := r.wiz.Request()
	switch r.wiz.State() {
	case wizard.StateIssuer:
		dn, err := promptName(r.prompt, "Issuer", req.Issuer)
		if err != nil {
			return err
		}
		r.report(r.wiz.SetIssuer(dn))
	case wizard.StateSubject:
		dn, err := promptName(r.prompt, "Subject", req.Subject)
		if err != nil {
			return err
		}
		r.report(r.wiz.SetSubject(dn))
	case wizard.StateDates:
		return r.editDates(req)
	case wizard.StateExtensions:
		return r.editExtensions()
	}
	return nil
}

func (r *Runner) editDates(req *request.Request) error {
	answer, err := r.prompt.Prompt("Version (1 or 3)", strconv.Itoa(req.Version))
	if err != nil {
		return err
	}
	if v, convErr := strconv.Atoi(answer); convErr != nil {
		r.report(validation.New(validation.UnsupportedVersion, "version", answer, "version must be 1 or 3"))
	} else {
		r.report(r.wiz.SetVersion(v))
	}

	current := ""
	if req.Serial != nil {
		current = "0x" + req.Serial.Text(16)
	}
	answer, err = r.prompt.Prompt("Serial (decimal, 0x hex or random)", current)
	if err != nil {
		return err
	}
	if strings.EqualFold(answer, "random") {
		if serial, err := r.wiz.GenerateSerial(r.random); r.report(err) {
			fmt.Fprintf(r.out, "Serial 0x%s\n", serial.Text(16))
		}
	} else if serial, err := request.ParseSerial(answer); r.report(err) {
		r.report(r.wiz.SetSerial(serial))
	}

	if err := r.editValidity(req.Validity); err != nil {
		return err
	}

	choices := r.wiz.Registry().SignatureAlgorithmsFor(req.KeyPairAlgorithm)
	label := "Signature algorithm"
	if len(choices) > 0 {
		label += " (" + strings.Join(choices, ", ") + ")"
	}
	answer, err = r.prompt.Prompt(label, req.SignatureAlgorithm)
	if err != nil {
		return err
	}
	r.report(r.wiz.SetSignatureAlgorithm(answer))
	return nil
}

func (r *Runner) editValidity(v request.Validity) error {
	answer, err := r.prompt.Prompt("Not before", v.NotBefore.Format(time.RFC3339))
	if err != nil {
		return err
	}
	notBefore, parseErr := request.ParseTime("notBefore", answer)
	answer, err = r.prompt.Prompt("Not after", v.NotAfter.Format(time.RFC3339))
	if err != nil {
		return err
	}
	if !r.report(parseErr) {
		return nil
	}
	notAfter, parseErr := request.ParseTime("notAfter", answer)
	if !r.report(parseErr) {
		return nil
	}
	r.report(r.wiz.SetValidity(request.Validity{NotBefore: notBefore, NotAfter: notAfter}))
	return nil
}

func (r *Runner) editExtensions() error {
	for {
		exts := r.wiz.Extensions()
		if len(exts) == 0 {
			fmt.Fprintln(r.out, "No extensions")
		}
		for i, e := range exts {
			critical := ""
			if e.Critical {
				critical = " (critical)"
			}
			fmt.Fprintf(r.out, "  %d. %s%s = %q\n", i+1, extension.Describe(e.ID), critical, e.Value)
		}

		answer, err := r.prompt.Prompt("Extension (add, edit N, delete N, empty to continue)", "")
		if err != nil {
			return err
		}
		fields := strings.Fields(answer)
		if len(fields) == 0 {
			return nil
		}

		switch fields[0] {
		case "add", "a":
			e, err := r.promptExtension(extension.Entry{})
			if err != nil {
				return err
			}
			r.report(r.wiz.AddExtension(e))
		case "edit", "e":
			i, ok := r.extensionIndex(fields, len(exts))
			if !ok {
				continue
			}
			e, err := r.promptExtension(exts[i])
			if err != nil {
				return err
			}
			r.report(r.wiz.EditExtension(i, e))
		case "delete", "d":
			if i, ok := r.extensionIndex(fields, len(exts)); ok {
				r.report(r.wiz.RemoveExtension(i))
			}
		default:
			fmt.Fprintf(r.out, "Unknown extension command %q\n", fields[0])
		}
	}
}

// extensionIndex converts the 1-based row number of an edit or delete command.
func (r *Runner) extensionIndex(fields []string, count int) (int, bool) {
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > count {
		return 0, r.report(validation.New(validation.InvalidExtensionIndex, "extensions", arg,
			fmt.Sprintf("expected a row number between 1 and %d", count)))
	}
	return n - 1, true
}

func (r *Runner) promptExtension(cur extension.Entry) (extension.Entry, error) {
	id, err := r.prompt.Prompt("OID", cur.ID)
	if err != nil {
		return cur, err
	}
	critical, err := confirm(r.prompt, "Critical", cur.Critical)
	if err != nil {
		return cur, err
	}
	value, err := r.prompt.Prompt("Value", cur.Value)
	if err != nil {
		return cur, err
	}
	return extension.Entry{ID: id, Critical: critical, Value: value}, nil
}

func (r *Runner) command(ctx context.Context) error {
	choices := []string{}
	def := "finish"
	if r.wiz.HasNext() {
		choices = append(choices, "next")
		def = "next"
	}
	if r.wiz.HasPrevious() {
		choices = append(choices, "back")
	}
	choices = append(choices, "finish", "cancel")
	if r.draftPath != "" {
		choices = append(choices, "save")
	}

	answer, err := r.prompt.Prompt("Command ("+strings.Join(choices, ", ")+")", def)
	if err != nil {
		return err
	}

	switch strings.ToLower(answer) {
	case "next", "n":
		r.report(r.wiz.Advance())
	case "back", "b":
		r.report(r.wiz.Retreat())
	case "finish", "f":
		if r.report(r.wiz.Finish(ctx)) {
			fmt.Fprintf(r.out, "%s Request %s\n", r.palette.OK("✓"), r.palette.FormatStatus(r.wiz.Status().String()))
		}
	case "cancel", "c":
		ok, err := confirm(r.prompt, "Discard this request?", false)
		if err != nil {
			return err
		}
		if ok {
			r.report(r.wiz.Cancel())
			fmt.Fprintf(r.out, "Request %s\n", r.palette.FormatStatus(r.wiz.Status().String()))
		}
	case "save", "s":
		r.save()
	default:
		fmt.Fprintf(r.out, "Unknown command %q\n", answer)
	}
	return nil
}

func (r *Runner) save() {
	if r.draftPath == "" {
		fmt.Fprintln(r.out, "No draft file configured")
		return
	}
	data, err := draft.Encode(r.wiz)
	if !r.report(err) {
		return
	}
	if err := os.WriteFile(r.draftPath, data, 0600); !r.report(err) {
		return
	}
	fmt.Fprintf(r.out, "%s Draft saved to %s\n", r.palette.OK("✓"), r.draftPath)
}
