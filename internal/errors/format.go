package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// style paints one part of a formatted error.
type style func(a ...interface{}) string

// palette holds the styles used by formatError. color disables itself when
// stdout is not a terminal or NO_COLOR is set.
type palette struct {
	label, category, message, detail, usage, usageText, fix, bullet style
}

var colored = palette{
	label:     color.New(color.FgRed, color.Bold).SprintFunc(),
	category:  color.New(color.FgYellow).SprintFunc(),
	message:   color.New(color.FgRed).SprintFunc(),
	detail:    color.New(color.FgRed).SprintFunc(),
	usage:     color.New(color.FgCyan, color.Bold).SprintFunc(),
	usageText: color.New(color.FgCyan).SprintFunc(),
	fix:       color.New(color.FgGreen, color.Bold).SprintFunc(),
	bullet:    color.New(color.FgGreen).SprintFunc(),
}

var plain = palette{
	label: fmt.Sprint, category: fmt.Sprint, message: fmt.Sprint, detail: fmt.Sprint,
	usage: fmt.Sprint, usageText: fmt.Sprint, fix: fmt.Sprint, bullet: fmt.Sprint,
}

// FormatError renders err for a terminal:
//
//	Error [Category]: message
//	  - detail
//
//	Usage: ...
//
//	To fix this:
//	  • step
func FormatError(err *CLIError) string {
	if err == nil {
		return ""
	}
	return formatError(err, colored)
}

// FormatErrorPlain is FormatError without colors.
func FormatErrorPlain(err *CLIError) string {
	if err == nil {
		return ""
	}
	return formatError(err, plain)
}

func formatError(err *CLIError, p palette) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s [%s]: %s\n", p.label("Error"), p.category(err.Category.String()), p.message(err.Message))
	for _, d := range err.Details {
		fmt.Fprintf(&sb, "  %s %s\n", p.detail("-"), d)
	}

	if err.Usage != "" {
		fmt.Fprintf(&sb, "\n%s%s\n", p.usage("Usage: "), p.usageText(err.Usage))
	}

	if len(err.Remediation) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", p.fix("To fix this:"))
		for _, step := range err.Remediation {
			fmt.Fprintf(&sb, "  %s %s\n", p.bullet("•"), step)
		}
	}

	return sb.String()
}

// FprintError writes the formatted err to w. A nil err writes nothing.
func FprintError(w io.Writer, err *CLIError) {
	if err == nil {
		return
	}
	io.WriteString(w, FormatError(err))
}
