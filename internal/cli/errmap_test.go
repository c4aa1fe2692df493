package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/config"
	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/graph"
	"github.com/ariel-frischer/stagefile/internal/runner"
	"github.com/ariel-frischer/stagefile/internal/schema"
	"github.com/ariel-frischer/stagefile/internal/scm"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

func TestToCLIError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err          error
		wantCategory clierrors.ErrorCategory
		wantCode     int
		wantMessage  string
	}{
		"format error": {
			err: fmt.Errorf("reading stage file: %w", &schema.FormatError{
				File:       "a.stage.yaml",
				Violations: []schema.Violation{{Field: "cmd", Message: "must be a string"}},
			}),
			wantCategory: clierrors.Argument,
			wantCode:     ExitInvalidArguments,
			wantMessage:  "a.stage.yaml",
		},
		"parse error": {
			err:          &schema.ParseError{File: "a.stage.yaml", Line: 2, Column: 5, Message: "bad indent"},
			wantCategory: clierrors.Argument,
			wantCode:     ExitInvalidArguments,
			wantMessage:  "a.stage.yaml:2:5",
		},
		"missing inputs": {
			err:          &stage.MissingInputError{Stage: "s", Paths: []string{"data.csv"}},
			wantCategory: clierrors.Prerequisite,
			wantCode:     ExitMissingDependencies,
			wantMessage:  "data.csv",
		},
		"missing outputs": {
			err:          &stage.MissingOutputError{Stage: "s", Paths: []string{"model.bin"}},
			wantCategory: clierrors.Runtime,
			wantCode:     ExitFailure,
			wantMessage:  "model.bin",
		},
		"joined output conflicts": {
			err: errors.Join(
				&graph.OutputConflictError{Path: "out", First: "a", Second: "b"},
				&graph.CycleError{Path: []string{"a", "b", "a"}},
			),
			wantCategory: clierrors.Argument,
			wantCode:     ExitInvalidArguments,
			wantMessage:  "dependency cycle",
		},
		"cycle": {
			err:          &graph.CycleError{Path: []string{"a", "b", "a"}},
			wantCategory: clierrors.Argument,
			wantCode:     ExitInvalidArguments,
			wantMessage:  "a -> b -> a",
		},
		"tracked outputs": {
			err:          fmt.Errorf("stage s: %w", &scm.TrackedError{Paths: []string{"out.txt"}}),
			wantCategory: clierrors.Prerequisite,
			wantCode:     ExitMissingDependencies,
			wantMessage:  "out.txt",
		},
		"unsupported scheme": {
			err:          &backend.UnsupportedSchemeError{Scheme: "s3", Path: "s3://b/k", Configured: []string{"file"}},
			wantCategory: clierrors.Configuration,
			wantCode:     ExitConfiguration,
			wantMessage:  "s3://",
		},
		"ssh host mismatch": {
			err:          fmt.Errorf("checksumming: %w", &backend.HostMismatchError{Path: "ssh://other/x", Configured: "host:22"}),
			wantCategory: clierrors.Configuration,
			wantCode:     ExitConfiguration,
			wantMessage:  "ssh://other/x",
		},
		"command failed": {
			err:          &runner.CommandError{Stage: "s", Cmd: "false", ExitCode: 1},
			wantCategory: clierrors.Runtime,
			wantCode:     ExitFailure,
			wantMessage:  "exit code 1",
		},
		"command timed out": {
			err:          &runner.CommandError{Stage: "s", Cmd: "sleep 9", TimedOut: true, Timeout: time.Second},
			wantCategory: clierrors.Runtime,
			wantCode:     ExitTimeout,
			wantMessage:  "timed out after 1s",
		},
		"config validation": {
			err:          fmt.Errorf("config validation failed: %w", &config.ValidationError{FilePath: "c.yml", Field: "jobs"}),
			wantCategory: clierrors.Configuration,
			wantCode:     ExitConfiguration,
			wantMessage:  "c.yml",
		},
		"missing file": {
			err:          fmt.Errorf("reading stage file: %w", fs.ErrNotExist),
			wantCategory: clierrors.Prerequisite,
			wantCode:     ExitMissingDependencies,
		},
		"already categorized": {
			err:          clierrors.NewArgumentError("bad flag"),
			wantCategory: clierrors.Argument,
			wantCode:     ExitInvalidArguments,
			wantMessage:  "bad flag",
		},
		"unknown error": {
			err:          errors.New("disk on fire"),
			wantCategory: clierrors.Runtime,
			wantCode:     ExitFailure,
			wantMessage:  "disk on fire",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := toCLIError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Contains(t, got.Message, tt.wantMessage)
			assert.Equal(t, tt.wantCode, ExitCode(tt.err))
			assert.ErrorIs(t, got, tt.err, "the original error stays reachable")
		})
	}

	assert.Nil(t, toCLIError(nil))
	assert.Equal(t, ExitSuccess, ExitCode(nil))
}

func TestExitCode_ReportedError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &reportedError{code: ExitTimeout, msg: "x"})
	assert.Equal(t, ExitTimeout, ExitCode(err))
}

func TestWithUsage(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "checksum <file>"}
	validate := withUsage(cobra.ExactArgs(1))

	require.NoError(t, validate(cmd, []string{"a"}))

	err := validate(cmd, nil)
	cliErr := clierrors.AsCLIError(err)
	require.NotNil(t, cliErr)
	assert.Equal(t, clierrors.Argument, cliErr.Category)
	assert.Equal(t, "checksum <file>", cliErr.Usage)
}
