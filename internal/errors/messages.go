package errors

import (
	"fmt"
	"strings"
)

// Constructors for the failures stagefile commands report.

// StageFileNotFound creates an error for a stage file that does not exist.
func StageFileNotFound(path string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("stage file not found: %s", path),
		"Check the path, or create the stage with: stagefile run -f "+path+" -- <cmd>",
	)
}

// NoStageFiles creates an error when a directory holds no stage files.
func NoStageFiles(dir string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("no *.stage.yaml files found in %s", dir),
		"Pass stage files explicitly: stagefile status a.stage.yaml b.stage.yaml",
		"Create one with: stagefile run -d <dep> -o <out> -- <cmd>",
	)
}

// StageFormat creates an error listing every schema violation of a stage file.
func StageFormat(file string, violations []string) *CLIError {
	e := NewArgumentError(
		fmt.Sprintf("stage file format error in %s: %d violation(s)", file, len(violations)),
		"cmd, wdir and md5 must be strings; deps and outs must be lists of {path, checksum} entries",
		"Print the full document schema with: stagefile schema",
	)
	e.Details = violations
	return e
}

// StageParse creates an error for a stage file that is not valid YAML.
func StageParse(file string, line, column int, message string) *CLIError {
	location := file
	if line > 0 {
		location = fmt.Sprintf("%s:%d:%d", file, line, column)
	}
	return NewArgumentError(
		fmt.Sprintf("cannot parse stage file %s: %s", location, message),
		"Fix the YAML syntax at the reported position",
	)
}

// MissingInputs creates an error for dependencies absent before execution.
func MissingInputs(stage string, paths []string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("stage %s has missing dependencies: %s", stage, strings.Join(paths, ", ")),
		"Create the missing files, or run the stages that produce them first",
		"Check upstream stages with: stagefile status",
	)
}

// MissingOutputs creates an error for outputs a command did not produce.
func MissingOutputs(stage string, paths []string) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("stage %s did not produce outputs: %s", stage, strings.Join(paths, ", ")),
		"Make sure the command writes every declared output relative to wdir",
	)
}

// OutputConflict creates an error for stages sharing an output path.
func OutputConflict(message string) *CLIError {
	return NewArgumentError(
		message,
		"Every output path may be produced by exactly one stage",
		"Rename one of the outputs or merge the stages",
	)
}

// DependencyCycle creates an error for cyclic stage dependencies.
func DependencyCycle(path []string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("dependency cycle detected: %s", strings.Join(path, " -> ")),
		"Remove one of the dependencies in the cycle",
	)
}

// TrackedOutputs creates an error for outputs already tracked by git.
func TrackedOutputs(paths []string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("outputs are tracked by git: %s", strings.Join(paths, ", ")),
		"Stop tracking them with: git rm -r --cached "+strings.Join(paths, " "),
		"Or declare them with -O so they are not cached",
	)
}

// UnsupportedScheme creates an error for paths with no configured storage.
func UnsupportedScheme(scheme string, configured []string) *CLIError {
	return NewConfigError(
		fmt.Sprintf("no storage configured for %s:// paths (configured: %s)", scheme, strings.Join(configured, ", ")),
		"Enable the remote in .stagefile/config.yml, e.g. remotes."+scheme+".enabled: true",
	)
}

// RemoteHostMismatch creates an error for ssh:// paths naming a host other
// than the configured remote.
func RemoteHostMismatch(path, configured string) *CLIError {
	return NewConfigError(
		fmt.Sprintf("%s is not on the configured ssh remote %s", path, configured),
		"Point remotes.ssh.host at the host the path names, or fix the path",
	)
}

// CommandFailed creates an error when a stage command exits non-zero.
func CommandFailed(stage, cmd string, exitCode int) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("stage %s: command %q failed with exit code %d", stage, cmd, exitCode),
		"Inspect the command output above",
		"The stage was not committed; fix the command and run it again",
	)
}

// TimeoutError creates an error when a command times out.
func TimeoutError(duration string, command string) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("command timed out after %s: %s", duration, command),
		"Increase timeout in config: STAGEFILE_TIMEOUT=600",
		"Or edit .stagefile/config.yml and set \"timeout: 600\"",
		"Set timeout to 0 to disable timeout",
	)
}

// ConfigParseError creates an error for invalid config file format.
func ConfigParseError(path string, err error) *CLIError {
	return WrapWithMessage(err, Configuration,
		fmt.Sprintf("failed to load config: %s", path),
		"Check the file for YAML syntax errors",
		"Write a fresh commented config with: stagefile config init",
		"Or migrate a legacy JSON config with: stagefile config migrate",
	)
}

// StagesChanged is returned by status checks that find changed stages.
func StagesChanged(count int) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("%d stage(s) changed", count),
		"Reproduce them with: stagefile repro <file>",
	)
}
