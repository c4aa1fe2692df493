package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/config"
	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/graph"
	"github.com/ariel-frischer/stagefile/internal/runner"
	"github.com/ariel-frischer/stagefile/internal/schema"
	"github.com/ariel-frischer/stagefile/internal/scm"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

// reportedError marks a failure whose details were already printed.
type reportedError struct {
	code int
	msg  string
}

func (e *reportedError) Error() string { return e.msg }

// toCLIError converts domain errors into categorized CLI errors with
// remediation. Errors it does not recognize become runtime errors.
func toCLIError(err error) *clierrors.CLIError {
	if err == nil {
		return nil
	}
	if e := clierrors.AsCLIError(err); e != nil {
		return e
	}

	var (
		formatErr   *schema.FormatError
		parseErr    *schema.ParseError
		missingIn   *stage.MissingInputError
		missingOut  *stage.MissingOutputError
		conflictErr *graph.OutputConflictError
		cycleErr    *graph.CycleError
		trackedErr  *scm.TrackedError
		schemeErr   *backend.UnsupportedSchemeError
		hostErr     *backend.HostMismatchError
		commandErr  *runner.CommandError
		configErr   *config.ValidationError
	)

	var e *clierrors.CLIError
	switch {
	case errors.As(err, &formatErr):
		violations := make([]string, 0, len(formatErr.Violations))
		for _, v := range formatErr.Violations {
			violations = append(violations, v.String())
		}
		e = clierrors.StageFormat(formatErr.File, violations)
	case errors.As(err, &parseErr):
		e = clierrors.StageParse(parseErr.File, parseErr.Line, parseErr.Column, parseErr.Message)
	case errors.As(err, &missingIn):
		e = clierrors.MissingInputs(missingIn.Stage, missingIn.Paths)
	case errors.As(err, &missingOut):
		e = clierrors.MissingOutputs(missingOut.Stage, missingOut.Paths)
	case errors.As(err, &conflictErr):
		e = clierrors.OutputConflict(err.Error())
	case errors.As(err, &cycleErr):
		e = clierrors.DependencyCycle(cycleErr.Path)
	case errors.As(err, &trackedErr):
		e = clierrors.TrackedOutputs(trackedErr.Paths)
	case errors.As(err, &schemeErr):
		e = clierrors.UnsupportedScheme(schemeErr.Scheme, schemeErr.Configured)
	case errors.As(err, &hostErr):
		e = clierrors.RemoteHostMismatch(hostErr.Path, hostErr.Configured)
	case errors.As(err, &commandErr):
		if commandErr.TimedOut {
			e = clierrors.TimeoutError(commandErr.Timeout.String(), commandErr.Cmd)
		} else {
			e = clierrors.CommandFailed(commandErr.Stage, commandErr.Cmd, commandErr.ExitCode)
		}
	case errors.As(err, &configErr):
		e = clierrors.ConfigParseError(configErr.FilePath, err)
	case errors.Is(err, fs.ErrNotExist):
		e = clierrors.Wrap(err, clierrors.Prerequisite)
	default:
		return clierrors.Wrap(err, clierrors.Runtime)
	}
	e.Err = err
	return e
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}
	var commandErr *runner.CommandError
	if errors.As(err, &commandErr) && commandErr.TimedOut {
		return ExitTimeout
	}

	switch toCLIError(err).Category {
	case clierrors.Argument:
		return ExitInvalidArguments
	case clierrors.Configuration:
		return ExitConfiguration
	case clierrors.Prerequisite:
		return ExitMissingDependencies
	default:
		return ExitFailure
	}
}

// withUsage turns cobra argument validation failures into argument errors
// that show the command's usage line.
func withUsage(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return clierrors.NewArgumentErrorWithUsage(err.Error(), cmd.UseLine(),
				fmt.Sprintf("Run '%s --help' for details", cmd.CommandPath()))
		}
		return nil
	}
}
