// Package health checks that the environment can run and record stages. It
// backs the 'stagefile doctor' command.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/config"
	"github.com/ariel-frischer/stagefile/internal/logging"
	"github.com/ariel-frischer/stagefile/internal/scm"
)

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
}

// HealthReport contains all health check results
type HealthReport struct {
	Checks []CheckResult
	Passed bool
}

func (r *HealthReport) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunHealthChecks runs every check against cfg for a project rooted at dir.
func RunHealthChecks(ctx context.Context, cfg *config.Configuration, dir string, log *logging.Logger) *HealthReport {
	report := &HealthReport{Passed: true}
	report.add(CheckShell(cfg.Shell))
	report.add(CheckCacheDir(cfg.CacheDir))
	report.add(CheckRepository(dir, log))
	report.add(CheckRemotes(ctx, cfg.BackendOptions(), log))
	return report
}

// CheckShell checks that the shell running stage commands is on PATH.
func CheckShell(shell string) CheckResult {
	path, err := exec.LookPath(shell)
	if err != nil {
		return CheckResult{
			Name:    "Shell",
			Passed:  false,
			Message: fmt.Sprintf("%s not found in PATH", shell),
		}
	}
	return CheckResult{Name: "Shell", Passed: true, Message: path}
}

// CheckCacheDir checks that the output cache can be created and written.
func CheckCacheDir(dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: "Cache", Passed: false, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{Name: "Cache", Passed: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Name: "Cache", Passed: true, Message: dir}
}

// CheckRepository reports whether dir is inside a git repository. Outside a
// repository the check still passes; the tracked-output guard is just off.
func CheckRepository(dir string, log *logging.Logger) CheckResult {
	repo, err := scm.Open(dir, log)
	if errors.Is(err, scm.ErrNotRepository) {
		return CheckResult{Name: "Git", Passed: true, Message: "not a git repository, tracked outputs are not checked"}
	}
	if err != nil {
		return CheckResult{Name: "Git", Passed: false, Message: err.Error()}
	}
	return CheckResult{Name: "Git", Passed: true, Message: repo.Root()}
}

// CheckRemotes connects every enabled remote and closes it again.
func CheckRemotes(ctx context.Context, opts backend.Options, log *logging.Logger) CheckResult {
	b, err := backend.Setup(ctx, opts, log)
	if err != nil {
		return CheckResult{Name: "Remotes", Passed: false, Message: err.Error()}
	}
	defer b.Close()

	var schemes []string
	for _, s := range b.Registry.Schemes() {
		if s != "file" {
			schemes = append(schemes, s+"://")
		}
	}
	if len(schemes) == 0 {
		return CheckResult{Name: "Remotes", Passed: true, Message: "none enabled"}
	}
	return CheckResult{Name: "Remotes", Passed: true, Message: strings.Join(schemes, ", ")}
}
