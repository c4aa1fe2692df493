package stage

import (
	"fmt"
	"strings"
)

// MissingInputError is returned by an explicit existence check when
// dependencies required for execution do not exist.
type MissingInputError struct {
	Stage string
	Paths []string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("stage %s: missing dependencies: %s", e.Stage, strings.Join(e.Paths, ", "))
}

// MissingOutputError is returned by Commit when outputs were not produced.
type MissingOutputError struct {
	Stage string
	Paths []string
}

// Error implements the error interface.
func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("stage %s: missing outputs: %s", e.Stage, strings.Join(e.Paths, ", "))
}
