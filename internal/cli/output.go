package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/ariel-frischer/stagefile/internal/progress"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

// printer writes status lines, choosing glyphs for the terminal it writes to.
type printer struct {
	w       io.Writer
	caps    progress.TerminalCapabilities
	symbols progress.ProgressSymbols

	ok   func(a ...interface{}) string
	warn func(a ...interface{}) string
	fail func(a ...interface{}) string
	dim  func(a ...interface{}) string
}

func newPrinter(w io.Writer) *printer {
	f, _ := w.(*os.File)
	caps := progress.DetectTerminalCapabilities(f)
	return &printer{
		w:       w,
		caps:    caps,
		symbols: progress.SelectSymbols(caps),
		ok:      color.New(color.FgGreen).SprintFunc(),
		warn:    color.New(color.FgYellow).SprintFunc(),
		fail:    color.New(color.FgRed).SprintFunc(),
		dim:     color.New(color.Faint).SprintFunc(),
	}
}

func (p *printer) success(format string, a ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.ok(p.symbols.Checkmark), fmt.Sprintf(format, a...))
}

func (p *printer) failure(format string, a ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.fail(p.symbols.Failure), fmt.Sprintf(format, a...))
}

func (p *printer) changed(format string, a ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.warn(p.symbols.Changed), fmt.Sprintf(format, a...))
}

func (p *printer) detail(format string, a ...interface{}) {
	fmt.Fprintf(p.w, "    %s\n", p.dim(fmt.Sprintf(format, a...)))
}

// report prints one status line for r and a line per reason. It returns
// whether the stage changed.
func (p *printer) report(r stage.Report) bool {
	name := r.Stage.Name()
	if !r.Changed() {
		p.success("%s", name)
		return false
	}

	label := "changed"
	if r.State == stage.StateUnknown {
		label = "not committed"
	}
	p.changed("%s %s", name, p.warn("("+label+")"))
	for _, reason := range r.Reasons {
		p.detail("%s", reason.String())
	}
	return true
}
