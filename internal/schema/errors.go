package schema

import (
	"fmt"
	"strings"
)

// Violation is a single structural problem found in a stage document.
type Violation struct {
	// Field is the path of the offending field (e.g. "cmd", "outs[1].path").
	// Empty for problems with the document root.
	Field string
	// Message describes what is wrong with the field.
	Message string
	// Line is the source line of the offending node, 0 if unknown.
	Line int
	// Column is the source column of the offending node, 0 if unknown.
	Column int
}

// String formats the violation with its location when known.
func (v Violation) String() string {
	field := v.Field
	if field == "" {
		field = "document"
	}
	if v.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s: %s", v.Line, v.Column, field, v.Message)
	}
	return fmt.Sprintf("%s: %s", field, v.Message)
}

// FormatError reports every structural violation found in a stage document.
// A stage must never be constructed from a document that produced one.
type FormatError struct {
	// File is the stage file the document was read from, if any.
	File string
	// Violations is the complete list of problems, in document order.
	Violations []Violation
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString("stage file format error")
	if e.File != "" {
		fmt.Fprintf(&sb, " in %s", e.File)
	}
	fmt.Fprintf(&sb, ": %d violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n  - ")
		sb.WriteString(v.String())
	}
	return sb.String()
}

// Fields returns the field paths of all violations.
func (e *FormatError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

// ParseError reports a document that is not valid YAML at all.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	loc := e.File
	if loc == "" {
		loc = "stage document"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", loc, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// Unwrap returns the underlying YAML error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// newParseError builds a ParseError from a yaml.v3 error, extracting the
// line and column when the message carries them.
func newParseError(file string, err error) *ParseError {
	msg := err.Error()
	line, column := extractLineColumn(msg)
	return &ParseError{
		File:    file,
		Line:    line,
		Column:  column,
		Message: cleanYAMLError(msg),
		Err:     err,
	}
}

// extractLineColumn pulls line and column numbers out of a yaml.v3 error message.
// Returns 0, 0 if unable to extract.
func extractLineColumn(errMsg string) (line, column int) {
	// yaml.v3 errors look like: "yaml: line 5: could not find expected ':'"
	var l, c int
	if n, _ := fmt.Sscanf(errMsg, "yaml: line %d: column %d:", &l, &c); n == 2 {
		return l, c
	}
	if n, _ := fmt.Sscanf(errMsg, "yaml: line %d:", &l); n == 1 {
		return l, 1
	}
	return 0, 0
}

// cleanYAMLError removes the "yaml: line X:" prefix from error messages.
func cleanYAMLError(errMsg string) string {
	if strings.HasPrefix(errMsg, "yaml:") {
		if idx := strings.LastIndex(errMsg, ": "); idx > 0 {
			return errMsg[idx+2:]
		}
	}
	return errMsg
}
