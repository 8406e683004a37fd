package cli

// This file contains the status command showing the latest known outcome of
// every test, rebuilt from the run history.

import (
	"fmt"
	"sort"

	"github.com/maruel/natural"
	"github.com/perfgo/cmaketest/history"
	"github.com/urfave/cli/v2"
)

func (a *App) status(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	entries, err := history.LoadEntries(a.logger, s.cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	history.Replay(a.logger, s.store, entries)

	only := ctx.Args().First()

	// discovered tests that never ran are shown too
	tests := make(map[string][]string)
	if r, err := s.discovery(a).Discover(ctx.Context); err == nil {
		for _, e := range r.Executables {
			for _, t := range e.Tests() {
				tests[e.Name] = append(tests[e.Name], t.FullName)
			}
		}
	} else {
		a.logger.Debug().Err(err).Msg("Discovery failed, showing recorded results only")
	}
	for _, exe := range s.store.Executables() {
		known := make(map[string]struct{}, len(tests[exe]))
		for _, name := range tests[exe] {
			known[name] = struct{}{}
		}
		for _, name := range s.store.Names(exe) {
			if _, ok := known[name]; !ok {
				tests[exe] = append(tests[exe], name)
			}
		}
	}

	var executables []string
	for exe := range tests {
		if only == "" || exe == only {
			executables = append(executables, exe)
		}
	}
	if len(executables) == 0 {
		fmt.Fprintln(a.out, "No tests found")
		return nil
	}
	sort.Slice(executables, func(i, j int) bool {
		return natural.Less(executables[i], executables[j])
	})

	for _, exe := range executables {
		a.printResults(s.store, exe, tests[exe])
	}
	return nil
}
