// Package debug composes debug launch configurations for selected tests and
// hands them to a debug service.
package debug

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/gtest"
	"github.com/perfgo/cmaketest/history"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
)

// Settings are the user configurable parts of a debug session.
type Settings struct {
	Env          map[string]string
	ExtraFlags   []string
	DebuggerPath string
	EnvFile      string
	// LaunchFile is an existing launch.json to borrow debugger settings from
	LaunchFile string
}

// Builder makes sure targets are built before they are debugged.
type Builder interface {
	EnsureBuilt(ctx context.Context, project cmake.Project, targets []string) error
}

// Provider yields a value if its source has one.
type Provider func() (string, bool)

// FirstOf returns the value of the first provider that has a non-empty one.
func FirstOf(providers ...Provider) (string, bool) {
	for _, p := range providers {
		if v, ok := p(); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Value provides a fixed value, absent when empty.
func Value(v string) Provider {
	return func() (string, bool) {
		return v, v != ""
	}
}

type Composer struct {
	logger   zerolog.Logger
	service  cmake.Service
	builder  Builder
	launcher Launcher
	recorder history.Recorder
	settings Settings
}

// Option configures a Composer.
type Option func(*Composer)

func WithSettings(s Settings) Option {
	return func(c *Composer) {
		c.settings = s
	}
}

// WithRecorder records every debug launch in the history.
func WithRecorder(r history.Recorder) Option {
	return func(c *Composer) {
		c.recorder = r
	}
}

func NewComposer(logger zerolog.Logger, service cmake.Service, builder Builder, launcher Launcher, opts ...Option) *Composer {
	c := &Composer{
		logger:   logger,
		service:  service,
		builder:  builder,
		launcher: launcher,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the executable if needed and returns the launch
// configuration debugging the named tests.
func (c *Composer) Compose(ctx context.Context, root, executable string, names []string) (model.DebugLaunchConfig, error) {
	project, err := c.service.Project(ctx, root)
	if err != nil {
		return model.DebugLaunchConfig{}, fmt.Errorf("failed to find build project: %w", err)
	}

	if err := c.builder.EnsureBuilt(ctx, project, []string{executable}); err != nil {
		return model.DebugLaunchConfig{}, err
	}

	cm, err := project.CodeModel(ctx)
	if err != nil {
		return model.DebugLaunchConfig{}, fmt.Errorf("failed to get code model: %w", err)
	}
	artifact, err := codemodel.ArtifactPath(cm, executable)
	if err != nil {
		return model.DebugLaunchConfig{}, fmt.Errorf("failed to resolve artifact: %w", err)
	}

	cwd, ok := project.BuildDirectory()
	if !ok {
		cwd = filepath.Dir(artifact)
	}

	args := append([]string{gtest.FilterArg(gtest.BuildFilter(names))}, c.settings.ExtraFlags...)

	cfg := model.DebugLaunchConfig{
		Type:        model.LaunchType,
		Name:        launchName(executable, names),
		Request:     "launch",
		Program:     artifact,
		Args:        args,
		Cwd:         cwd,
		Environment: environment(c.settings.Env),
	}

	matched := c.matchLaunch(project.Root(), artifact)
	cfg.MIDebuggerPath, _ = FirstOf(
		Value(c.settings.DebuggerPath),
		func() (string, bool) { return matched().MIDebuggerPath, true },
	)
	cfg.EnvFile, _ = FirstOf(
		Value(c.settings.EnvFile),
		func() (string, bool) { return matched().EnvFile, true },
	)

	return cfg, nil
}

// Debug composes a launch configuration and starts a debug session with it.
func (c *Composer) Debug(ctx context.Context, root, executable string, names []string) error {
	cfg, err := c.Compose(ctx, root, executable, names)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("executable", executable).
		Str("program", cfg.Program).
		Strs("args", cfg.Args).
		Msg("Starting debug session")

	start := time.Now()
	if err := c.launcher.Launch(ctx, cfg); err != nil {
		return fmt.Errorf("failed to start debug session: %w", err)
	}

	if c.recorder != nil {
		h := &model.History{
			ID:          uuid.NewString(),
			Type:        model.HistoryTypeDebug,
			Timestamp:   start,
			ProjectRoot: root,
			Executable:  executable,
			Tests:       names,
			Filter:      gtest.BuildFilter(names),
			Duration:    time.Since(start),
		}
		if err := c.recorder.Record(h, ""); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record history")
		}
	}
	return nil
}

// matchLaunch returns a lazy lookup of the launch file entry for artifact.
// The file is read at most once and only if a setting is missing.
func (c *Composer) matchLaunch(workspace, artifact string) func() LaunchEntry {
	var (
		loaded bool
		entry  LaunchEntry
	)
	return func() LaunchEntry {
		if loaded {
			return entry
		}
		loaded = true
		if c.settings.LaunchFile == "" {
			return entry
		}

		entries, err := ReadLaunchFile(c.settings.LaunchFile)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", c.settings.LaunchFile).Msg("Ignoring launch file")
			return entry
		}
		if e, ok := MatchLaunch(entries, workspace, artifact); ok {
			c.logger.Debug().Str("name", e.Name).Msg("Borrowing debugger settings from launch configuration")
			entry = e
		}
		return entry
	}
}

func launchName(executable string, names []string) string {
	if len(names) == 0 {
		return "Debug " + executable
	}
	return fmt.Sprintf("Debug %s (%s)", executable, strings.Join(names, ", "))
}

func environment(env map[string]string) []model.EnvVar {
	vars := make([]model.EnvVar, 0, len(env))
	for k, v := range env {
		vars = append(vars, model.EnvVar{Name: k, Value: v})
	}
	sort.Slice(vars, func(i, j int) bool {
		return vars[i].Name < vars[j].Name
	})
	return vars
}
