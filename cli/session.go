package cli

// This file contains the wiring of settings, build service, state storage
// and result store shared by all commands.

import (
	"fmt"
	"io"
	"os"

	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/config"
	"github.com/perfgo/cmaketest/discovery"
	"github.com/perfgo/cmaketest/history"
	"github.com/perfgo/cmaketest/kvstore"
	"github.com/perfgo/cmaketest/results"
	"github.com/perfgo/cmaketest/scanner"
	"github.com/perfgo/cmaketest/staleness"
	"github.com/urfave/cli/v2"
)

type session struct {
	cfg      config.Config
	service  cmake.Service
	store    *results.Store
	recorder *history.DirRecorder
	tracker  *staleness.Tracker

	closers []func() error
}

// loadConfig reads the settings of the working directory and applies the
// global flags on top.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.Read(cwd)
	if err != nil {
		return config.Config{}, err
	}

	if ctx.IsSet("project-root") {
		cfg.ProjectRoot = ctx.String("project-root")
		cfg.ScanRoot = ""
	}
	if ctx.IsSet("build-dir") {
		cfg.Build.Dir = ctx.String("build-dir")
	}
	if ctx.IsSet("jobs") {
		cfg.Build.Jobs = ctx.Int("jobs")
	}
	if ctx.IsSet("code-model") {
		cfg.Build.CodeModel = ctx.String("code-model")
	}
	if err := cfg.Resolve(cwd); err != nil {
		return config.Config{}, fmt.Errorf("invalid settings: %w", err)
	}

	a.logger.Debug().
		Str("project_root", cfg.ProjectRoot).
		Str("scan_root", cfg.ScanRoot).
		Str("build_dir", cfg.BuildDir()).
		Msg("Loaded settings")
	return cfg, nil
}

// openSession prepares everything a command needs. Callers must Close it.
func (a *App) openSession(ctx *cli.Context) (*session, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		store:    results.New(),
		recorder: history.NewDirRecorder(a.logger),
	}
	s.closers = append(s.closers, func() error {
		s.store.Close()
		return nil
	})

	if cfg.Build.CodeModel != "" {
		p, err := cmake.LoadStaticProject(cfg.ProjectRoot, cfg.BuildDir(), cfg.Build.CodeModel)
		if err != nil {
			return nil, err
		}
		s.service = cmake.NewStatic(p)
	} else {
		s.service = cmake.NewFileAPI(a.logger,
			cmake.WithCMake(cfg.Build.CMake),
			cmake.WithBuildDir(cfg.BuildDir()),
			cmake.WithJobs(cfg.Build.Jobs),
			cmake.WithConfigureArgs(cfg.Build.ConfigureArgs...),
		)
	}
	return s, nil
}

// openTracker opens the staleness state, needed only by commands that build.
func (a *App) openTracker(s *session) (*staleness.Tracker, error) {
	if s.tracker != nil {
		return s.tracker, nil
	}

	path := s.cfg.StateFile
	if path == "" {
		var err error
		path, err = kvstore.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to locate state database: %w", err)
		}
	}

	db, err := kvstore.OpenBolt(path)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)
	s.tracker = staleness.New(a.logger, db)
	return s.tracker, nil
}

// logSink returns where run logs go: the configured log file, else out.
func (a *App) logSink(s *session) (io.Writer, bool, error) {
	if s.cfg.LogFile == "" {
		return a.out, false, nil
	}
	f, err := os.OpenFile(s.cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open log file: %w", err)
	}
	s.closers = append(s.closers, f.Close)
	return f, true, nil
}

func (s *session) discovery(a *App) *discovery.Discovery {
	return discovery.New(a.logger, scanner.New(), s.service, s.cfg.ProjectRoot, s.cfg.ScanRoot, s.cfg.ScanGlob)
}

func (a *App) closeSession(s *session) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			a.logger.Debug().Err(err).Msg("Failed to close session resource")
		}
	}
}
