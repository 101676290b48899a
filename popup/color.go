// Copyright © 2024 The ELPS authors

package popup

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ColorMode controls when ANSI color codes are used.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // detect based on terminal and NO_COLOR
	ColorAlways                  // always use colors
	ColorNever                   // never use colors
)

// ParseColorMode parses "auto", "always" or "never".
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: want auto, always or never", s)
	}
}

// palette holds the ANSI escape sequences for popup output.
type palette struct {
	bold   string
	green  string
	yellow string
	dim    string
	reset  string
}

var ansiPalette = palette{
	bold:   "\033[1m",
	green:  "\033[32m",
	yellow: "\033[33m",
	dim:    "\033[2m",
	reset:  "\033[0m",
}

var noPalette = palette{}

// group returns the escape sequence for an editor highlight group.
func (p palette) group(name string) string {
	switch name {
	case "Type":
		return p.green
	case "WarningMsg":
		return p.yellow
	case "Comment":
		return p.dim
	default:
		return p.bold
	}
}

// choosePalette selects the appropriate color palette based on the mode
// and the output writer.
func choosePalette(mode ColorMode, w io.Writer) palette {
	switch mode {
	case ColorAlways:
		return ansiPalette
	case ColorNever:
		return noPalette
	default: // ColorAuto
		if os.Getenv("NO_COLOR") != "" {
			return noPalette
		}
		if !isTerminal(w) {
			return noPalette
		}
		return ansiPalette
	}
}

// isTerminal reports whether w is a file connected to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
