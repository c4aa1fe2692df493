package cli

// Exit codes for the stagefile CLI
// These codes support programmatic composition and CI/CD integration
const (
	// ExitSuccess indicates successful command execution
	ExitSuccess = 0

	// ExitFailure indicates changed stages, invalid stage files or a failed command
	ExitFailure = 1

	// ExitConfiguration indicates the configuration could not be loaded
	ExitConfiguration = 2

	// ExitInvalidArguments indicates invalid command arguments or stage definitions
	ExitInvalidArguments = 3

	// ExitMissingDependencies indicates required files or dependencies are missing
	ExitMissingDependencies = 4

	// ExitTimeout indicates a stage command timed out
	ExitTimeout = 5
)
