package cli

// This file contains the run and debug commands.

import (
	"fmt"
	"io"

	"github.com/perfgo/cmaketest/config"
	"github.com/perfgo/cmaketest/debug"
	"github.com/perfgo/cmaketest/model"
	"github.com/perfgo/cmaketest/results"
	"github.com/perfgo/cmaketest/runner"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	tracker, err := a.openTracker(s)
	if err != nil {
		return err
	}
	sink, toFile, err := a.logSink(s)
	if err != nil {
		return err
	}

	executable, names, err := a.selection(ctx, s)
	if err != nil {
		return err
	}

	settings := runner.Settings{
		DefaultFilter: s.cfg.Test.DefaultFilter,
		Env:           s.cfg.Environ(),
		ExtraFlags:    append(append([]string(nil), s.cfg.Test.ExtraFlags...), ctx.StringSlice("flag")...),
	}
	if ctx.IsSet("filter") {
		settings.DefaultFilter = ctx.String("filter")
	}

	// With a log file, show the output while it is produced
	var stream io.Writer
	if toFile {
		stream = a.out
	}

	o := runner.New(a.logger, s.service, tracker, s.store,
		runner.WithSpawner(runner.NewExecSpawner(a.logger, stream)),
		runner.WithLogSink(sink),
		runner.WithRecorder(s.recorder),
		runner.WithSettings(settings),
	)
	if err := o.Run(ctx.Context, s.cfg.ProjectRoot, executable, names); err != nil {
		return err
	}

	if len(names) == 0 {
		names = s.store.Names(executable)
	}
	failed := a.printResults(s.store, executable, names)
	if failed > 0 {
		return fmt.Errorf("%d of %d tests failed", failed, len(names))
	}
	return nil
}

func (a *App) debug(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	tracker, err := a.openTracker(s)
	if err != nil {
		return err
	}

	executable, names, err := a.selection(ctx, s)
	if err != nil {
		return err
	}

	launcher, err := a.launcher(ctx, s.cfg)
	if err != nil {
		return err
	}

	c := debug.NewComposer(a.logger, s.service, tracker, launcher,
		debug.WithRecorder(s.recorder),
		debug.WithSettings(debug.Settings{
			Env:          s.cfg.Environ(),
			ExtraFlags:   s.cfg.Test.ExtraFlags,
			DebuggerPath: s.cfg.Debugger.Path,
			EnvFile:      s.cfg.Debugger.EnvFile,
			LaunchFile:   s.cfg.Debugger.LaunchFile,
		}),
	)
	return c.Debug(ctx.Context, s.cfg.ProjectRoot, executable, names)
}

// launcher picks the debug launcher from the flags, then the settings.
func (a *App) launcher(ctx *cli.Context, cfg config.Config) (debug.Launcher, error) {
	switch {
	case ctx.Bool("print"):
		return debug.PrintLauncher{Out: a.out}, nil
	case ctx.IsSet("dap"):
		return debug.NewDAPLauncher(a.logger, ctx.String("dap")), nil
	case cfg.Debugger.Launcher == config.LauncherDAP:
		return debug.NewDAPLauncher(a.logger, cfg.Debugger.Address), nil
	case cfg.Debugger.Launcher == config.LauncherPrint:
		return debug.PrintLauncher{Out: a.out}, nil
	}
	return nil, fmt.Errorf("unknown debug launcher %q", cfg.Debugger.Launcher)
}

// printResults prints one line per test and returns the number of failures.
func (a *App) printResults(store *results.Store, executable string, names []string) int {
	failed := 0
	fmt.Fprintf(a.out, "\n=== %s ===\n\n", executable)
	for _, name := range names {
		status := store.Status(executable, name)
		if status == model.StatusFailed {
			failed++
		}
		fmt.Fprintf(a.out, "%s  %s\n", statusSymbol(status), name)
	}
	fmt.Fprintln(a.out)
	return failed
}

func statusSymbol(status model.TestStatus) string {
	switch status {
	case model.StatusPassed:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusRunning:
		return "…"
	case model.StatusIgnored:
		return "○"
	default:
		return "-"
	}
}
