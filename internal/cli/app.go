package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/config"
	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/history"
	"github.com/ariel-frischer/stagefile/internal/logging"
	"github.com/ariel-frischer/stagefile/internal/runner"
	"github.com/ariel-frischer/stagefile/internal/schema"
	"github.com/ariel-frischer/stagefile/internal/scm"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg      *config.Configuration
	log      *logging.Logger
	backends *backend.Backends
	cache    *backend.LocalCache
	detector *stage.Detector
	// history is nil when disabled.
	history *history.Writer

	mu    sync.Mutex
	repos map[string]*scm.Repo
}

// loadConfig loads configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectConfigPath: configPath,
		WarningWriter:     cmd.ErrOrStderr(),
	})
	if err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		label := configPath
		if label == "" {
			label = config.ProjectConfigPath()
		}
		return nil, clierrors.ConfigParseError(label, err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("strict") {
		cfg.StrictSchema, _ = cmd.Flags().GetBool("strict")
	}
	return cfg, nil
}

// newApp loads configuration and connects the configured storages.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logging.NewWithWriter(cfg.Logging(), cmd.ErrOrStderr())

	backends, err := backend.Setup(cmd.Context(), cfg.BackendOptions(), log)
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Configuration,
			"cannot connect to remote storage",
			"Check the remotes section of .stagefile/config.yml",
			"Disable unused remotes with remotes.<name>.enabled: false")
	}

	cache := backend.NewLocalCache(cfg.CacheDir, backends.Local, log)

	a := &app{
		cfg:      cfg,
		log:      log,
		backends: backends,
		cache:    cache,
		detector: stage.NewDetector(backends.Registry, cache, log),
		repos:    make(map[string]*scm.Repo),
	}
	if cfg.History.Enabled {
		a.history = history.NewWriter(stateDir(cmd), cfg.History.MaxEntries)
		a.history.Log = log
	}
	return a, nil
}

// stateDir is the directory holding the project config, where history is kept.
func stateDir(cmd *cobra.Command) string {
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		return filepath.Dir(configPath)
	}
	return config.ProjectConfigDir()
}

// record logs one stage execution to the history.
func (a *app) record(command string, s *stage.Stage, outcome string, err error, elapsed time.Duration) {
	if a.history == nil {
		return
	}
	if err != nil {
		outcome = history.OutcomeFailed
	}
	md5 := ""
	if err == nil {
		md5 = s.MD5
	}
	a.history.LogStage(command, s.Name(), outcome, ExitCode(err), elapsed, md5)
}

// Close releases remote sessions.
func (a *app) Close() error {
	return a.backends.Close()
}

func (a *app) schemaOptions() []schema.Option {
	return schemaOpts(a.cfg.StrictSchema)
}

func schemaOpts(strict bool) []schema.Option {
	return []schema.Option{schema.WithStrictMode(strict)}
}

// repoFor returns the git repository containing dir, or nil outside one.
func (a *app) repoFor(dir string) (*scm.Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if repo, ok := a.repos[abs]; ok {
		return repo, nil
	}
	repo, err := scm.Open(abs, a.log)
	if errors.Is(err, scm.ErrNotRepository) {
		repo, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.repos[abs] = repo
	return repo, nil
}

// runner returns a runner for s, guarded by the repository s lives in.
func (a *app) runner(s *stage.Stage, stdout, stderr io.Writer) (*runner.Runner, error) {
	r := runner.New(a.detector, nil, a.log)
	r.Shell = a.cfg.Shell
	r.Timeout = time.Duration(a.cfg.Timeout) * time.Second
	r.Stdout = stdout
	r.Stderr = stderr

	repo, err := a.repoFor(s.Dir())
	if err != nil {
		return nil, err
	}
	if repo != nil {
		r.SCM = repo
	}
	return r, nil
}

// stageFiles returns args, or the stage files in the current directory
// when no arguments were given.
func stageFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	matches, err := filepath.Glob("*" + stage.FileSuffix)
	if err != nil {
		return nil, fmt.Errorf("listing stage files: %w", err)
	}
	if len(matches) == 0 {
		cwd, _ := os.Getwd()
		return nil, clierrors.NoStageFiles(cwd)
	}
	sort.Strings(matches)
	return matches, nil
}

// loadStage loads one stage file, reporting a missing file as such.
func loadStage(path string, opts ...schema.Option) (*stage.Stage, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, clierrors.StageFileNotFound(path)
	}
	return stage.Load(path, opts...)
}

// loadStages loads every path and stops at the first error.
func loadStages(paths []string, opts ...schema.Option) ([]*stage.Stage, error) {
	stages := make([]*stage.Stage, 0, len(paths))
	for _, p := range paths {
		s, err := loadStage(p, opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
