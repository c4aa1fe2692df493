package graph

import (
	"fmt"
	"strings"
)

// OutputConflictError reports two stages writing the same or overlapping outputs.
type OutputConflictError struct {
	Path   string
	First  string
	Second string
	// Overlap is set when one output lies inside the other rather than being equal.
	Overlap bool
	// OtherPath is the second output when Overlap is set.
	OtherPath string
}

// Error implements the error interface.
func (e *OutputConflictError) Error() string {
	if e.Overlap {
		return fmt.Sprintf("output %s of %s overlaps output %s of %s", e.Path, e.First, e.OtherPath, e.Second)
	}
	return fmt.Sprintf("output %s is produced by both %s and %s", e.Path, e.First, e.Second)
}

// CycleError reports a dependency cycle between stages.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}
