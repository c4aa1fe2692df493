// Package errors categorizes stagefile failures and attaches the steps a user
// can take to fix them. The category decides the process exit code.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory groups errors by who has to act on them.
type ErrorCategory int

const (
	// Argument errors come from command arguments or stage file content.
	Argument ErrorCategory = iota
	// Configuration errors come from config files, environment or remotes.
	Configuration
	// Prerequisite errors mean a file or tool the command needs is missing.
	Prerequisite
	// Runtime errors happen while stages are checked or executed.
	Runtime
)

var categoryNames = map[ErrorCategory]string{
	Argument:      "Argument Error",
	Configuration: "Configuration Error",
	Prerequisite:  "Prerequisite Error",
	Runtime:       "Runtime Error",
}

func (c ErrorCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Error"
}

// CLIError is an error with a category and remediation steps.
type CLIError struct {
	Category ErrorCategory
	Message  string
	// Details are printed one per line under the message, e.g. every
	// violation found in a stage file.
	Details     []string
	Usage       string
	Remediation []string
	Err         error
}

func (e *CLIError) Error() string { return e.Message }

func (e *CLIError) Unwrap() error { return e.Err }

func newError(category ErrorCategory, message string, remediation []string) *CLIError {
	return &CLIError{Category: category, Message: message, Remediation: remediation}
}

// NewArgumentError returns an Argument error.
func NewArgumentError(message string, remediation ...string) *CLIError {
	return newError(Argument, message, remediation)
}

// NewArgumentErrorWithUsage returns an Argument error that also prints the
// command's usage line.
func NewArgumentErrorWithUsage(message, usage string, remediation ...string) *CLIError {
	e := newError(Argument, message, remediation)
	e.Usage = usage
	return e
}

// NewConfigError returns a Configuration error.
func NewConfigError(message string, remediation ...string) *CLIError {
	return newError(Configuration, message, remediation)
}

// NewPrerequisiteError returns a Prerequisite error.
func NewPrerequisiteError(message string, remediation ...string) *CLIError {
	return newError(Prerequisite, message, remediation)
}

// NewRuntimeError returns a Runtime error.
func NewRuntimeError(message string, remediation ...string) *CLIError {
	return newError(Runtime, message, remediation)
}

// Wrap categorizes err, keeping its message. It returns nil for a nil err.
func Wrap(err error, category ErrorCategory, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := newError(category, err.Error(), remediation)
	e.Err = err
	return e
}

// WrapWithMessage is Wrap with message prepended to err's text.
func WrapWithMessage(err error, category ErrorCategory, message string, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := newError(category, fmt.Sprintf("%s: %v", message, err), remediation)
	e.Err = err
	return e
}

// IsCLIError reports whether err's chain holds a CLIError.
func IsCLIError(err error) bool {
	return AsCLIError(err) != nil
}

// AsCLIError returns the first CLIError in err's chain, or nil.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	return nil
}
