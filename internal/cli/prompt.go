// Package cli drives the certificate request wizard from a terminal.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/remiblancher/certwizard/internal/request"
)

// ErrInterrupted is returned by a Prompter when the user presses Ctrl-C.
var ErrInterrupted = errors.New("interrupted")

// Prompter asks one question and returns the answer. def is offered as
// the editable initial answer.
type Prompter interface {
	Prompt(question, def string) (string, error)
}

// Terminal is a Prompter backed by readline.
type Terminal struct {
	rl *readline.Instance
}

var _ Prompter = (*Terminal)(nil)

// NewTerminal opens a readline session on in and out.
func NewTerminal(in io.ReadCloser, out io.Writer) (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "> ",
		Stdin:        in,
		Stdout:       out,
		HistoryLimit: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

// Prompt implements Prompter.
func (t *Terminal) Prompt(question, def string) (string, error) {
	t.rl.SetPrompt(fmt.Sprintf("%s: ", question))
	line, err := t.rl.ReadlineWithDefault(def)
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Close releases the terminal.
func (t *Terminal) Close() error {
	return t.rl.Close()
}

// confirm asks a yes/no question until it gets an answer.
func confirm(p Prompter, question string, def bool) (bool, error) {
	d := "n"
	if def {
		d = "y"
	}
	for {
		out, err := p.Prompt(question+" [yn]", d)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(out) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

type question struct {
	prompt string
	target *string
}

// promptName asks for the six name attributes, offering the current values.
func promptName(p Prompter, title string, dn request.DistinguishedName) (request.DistinguishedName, error) {
	for _, q := range []question{
		{title + " common name", &dn.CommonName},
		{"Organisation", &dn.Organisation},
		{"Organisation unit", &dn.OrganisationUnit},
		{"Country code", &dn.CountryCode},
		{"State", &dn.State},
		{"Location", &dn.Location},
	} {
		answer, err := p.Prompt(q.prompt, *q.target)
		if err != nil {
			return dn, err
		}
		*q.target = answer
	}
	return dn, nil
}
