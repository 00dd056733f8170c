package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes for terminal output.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

// Palette colors output when it goes to a terminal.
type Palette struct {
	Enabled bool
}

// NewPalette enables colors if w is a terminal.
func NewPalette(w io.Writer) Palette {
	f, ok := w.(*os.File)
	if !ok {
		return Palette{}
	}
	return Palette{Enabled: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
}

func (p Palette) paint(color, s string) string {
	if !p.Enabled {
		return s
	}
	return color + s + ColorReset
}

// Error paints s red.
func (p Palette) Error(s string) string { return p.paint(ColorRed, s) }

// OK paints s green.
func (p Palette) OK(s string) string { return p.paint(ColorGreen, s) }

// Warn paints s yellow.
func (p Palette) Warn(s string) string { return p.paint(ColorYellow, s) }

// Step paints s blue.
func (p Palette) Step(s string) string { return p.paint(ColorBlue, s) }

// FormatStatus returns a colored session status.
func (p Palette) FormatStatus(status string) string {
	switch status {
	case "FINISHED":
		return p.OK(status)
	case "CANCELLED":
		return p.Error(status)
	case "ACTIVE":
		return p.Warn(status)
	default:
		return status
	}
}
