package progress

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

const spinnerInterval = 100 * time.Millisecond

// Spinner is a spinner that does nothing unless its output is a terminal.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner writing to w. It is inert when caps.IsTTY is
// false, so piped output stays clean.
func NewSpinner(w io.Writer, caps TerminalCapabilities, message string) *Spinner {
	if !caps.IsTTY {
		return &Spinner{}
	}
	if w == nil {
		w = os.Stderr
	}
	symbols := SelectSymbols(caps)
	s := spinner.New(spinner.CharSets[symbols.SpinnerSet], spinnerInterval, spinner.WithWriter(w))
	s.Suffix = " " + message
	return &Spinner{s: s}
}

// Active reports whether the spinner renders anything.
func (p *Spinner) Active() bool { return p.s != nil }

// Start begins animating.
func (p *Spinner) Start() {
	if p.s != nil {
		p.s.Start()
	}
}

// Update replaces the message shown next to the spinner.
func (p *Spinner) Update(message string) {
	if p.s != nil {
		p.s.Lock()
		p.s.Suffix = " " + message
		p.s.Unlock()
	}
}

// Stop clears the spinner line.
func (p *Spinner) Stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
