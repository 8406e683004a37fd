package cli

// This file contains the discover and targets commands.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/discovery"
	"github.com/urfave/cli/v2"
)

func (a *App) discover(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	d := s.discovery(a)
	asJSON := ctx.Bool("json")

	if !ctx.Bool("watch") {
		r, err := d.Discover(ctx.Context)
		if err != nil {
			return err
		}
		return a.printDiscovery(r, asJSON)
	}

	watchCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info().Str("root", s.cfg.ScanRoot).Msg("Watching for changes, press Ctrl+C to stop")
	return d.Watch(watchCtx, ctx.Duration("debounce"), func(r *discovery.Result) {
		if err := a.printDiscovery(r, asJSON); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to print discovery result")
		}
	})
}

func (a *App) printDiscovery(r *discovery.Result, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal discovery result: %w", err)
		}
		fmt.Fprintln(a.out, string(data))
		return nil
	}

	fmt.Fprintf(a.out, "\n=== Tests (%d in %d executables) ===\n\n", r.Count(), len(r.Executables))
	for _, e := range r.Executables {
		fmt.Fprintf(a.out, "%s\n", e.Name)
		for _, suite := range e.Suites {
			fmt.Fprintf(a.out, "  %s\n", suite.Name)
			for _, t := range suite.Tests {
				fmt.Fprintf(a.out, "    %-40s %s  %s:%d\n", t.Name, t.Kind.Macro(), t.File, t.Line)
			}
		}
		fmt.Fprintln(a.out)
	}

	if len(r.Unmapped) > 0 {
		fmt.Fprintf(a.out, "Not compiled by any executable target:\n")
		for _, f := range r.Unmapped {
			fmt.Fprintf(a.out, "  %s (%d tests)\n", f.Path, len(f.Tests))
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *App) targets(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	cm, err := a.codeModel(ctx.Context, s)
	if err != nil {
		return err
	}

	executables := cm.Executables()
	if len(executables) == 0 {
		fmt.Fprintln(a.out, "No executable targets found")
		return nil
	}

	fmt.Fprintf(a.out, "\n=== Executable targets (%d) ===\n\n", len(executables))
	for _, t := range executables {
		artifact, err := codemodel.ArtifactPath(cm, t.Name)
		if err != nil {
			artifact = "(no artifact)"
		}
		fmt.Fprintf(a.out, "%s\n", t.Name)
		fmt.Fprintf(a.out, "   Artifact: %s\n", artifact)
		fmt.Fprintf(a.out, "   Sources:  %d\n", len(t.Sources()))
	}
	return nil
}

// codeModel returns the code model of the session's project.
func (a *App) codeModel(ctx context.Context, s *session) (*codemodel.CodeModel, error) {
	project, err := s.service.Project(ctx, s.cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to find build project: %w", err)
	}
	cm, err := project.CodeModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get code model (has the project been configured?): %w", err)
	}
	return cm, nil
}
