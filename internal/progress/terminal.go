// Package progress renders transient progress on interactive terminals.
package progress

import (
	"os"

	"golang.org/x/term"
)

// TerminalCapabilities describes what the output terminal supports.
type TerminalCapabilities struct {
	IsTTY           bool
	SupportsColor   bool
	SupportsUnicode bool
	Width           int
}

// ProgressSymbols is the glyph set for status lines and the spinner.
type ProgressSymbols struct {
	Checkmark  string
	Failure    string
	Changed    string
	SpinnerSet int
}

var (
	unicodeSymbols = ProgressSymbols{Checkmark: "✓", Failure: "✗", Changed: "●", SpinnerSet: 14}
	asciiSymbols   = ProgressSymbols{Checkmark: "[OK]", Failure: "[FAIL]", Changed: "[CHANGED]", SpinnerSet: 9}
)

// DetectTerminalCapabilities inspects f, which may be nil for writers that
// are not files. NO_COLOR turns off color, and STAGEFILE_ASCII=1 or TERM=dumb
// turns off Unicode glyphs.
func DetectTerminalCapabilities(f *os.File) TerminalCapabilities {
	var caps TerminalCapabilities
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return caps
	}

	caps.IsTTY = true
	caps.SupportsColor = os.Getenv("NO_COLOR") == ""
	caps.SupportsUnicode = os.Getenv("STAGEFILE_ASCII") != "1" && os.Getenv("TERM") != "dumb"
	if w, _, err := term.GetSize(int(f.Fd())); err == nil {
		caps.Width = w
	}
	return caps
}

// SelectSymbols picks Unicode glyphs and the braille spinner (set 14), or
// bracketed ASCII labels and the |/-\ spinner (set 9).
func SelectSymbols(caps TerminalCapabilities) ProgressSymbols {
	if caps.SupportsUnicode {
		return unicodeSymbols
	}
	return asciiSymbols
}
