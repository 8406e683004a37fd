package cli

// This file contains the view command for displaying a run from history.

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"
	"github.com/perfgo/cmaketest/history"
	"github.com/perfgo/cmaketest/model"
	"github.com/urfave/cli/v2"
)

func (a *App) view(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	entries, err := history.LoadEntries(a.logger, s.cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entry, err := findEntry(entries, viewArg(ctx.Args().Slice()))
	if err != nil {
		return err
	}
	return a.displayHistoryEntry(entry)
}

// viewArg returns the ID or index to view, defaulting to the newest entry.
func viewArg(in []string) string {
	if len(in) == 0 || in[0] == "--" {
		return "0"
	}
	return in[0]
}

// findEntry looks up an entry by index (0 is the newest, -1 the one before
// and so on) or by hex ID prefix. entries must be sorted newest first.
func findEntry(entries []history.Entry, arg string) (*history.Entry, error) {
	if len(entries) == 0 {
		return nil, errors.New("no history entries found")
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d history entries)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].History.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no history entry found matching ID: %s", arg)
}

func (a *App) displayHistoryEntry(entry *history.Entry) error {
	h := entry.History

	kind := "Test Run"
	if h.Type == model.HistoryTypeDebug {
		kind = "Debug Launch"
	}
	fmt.Fprintf(a.out, "=== %s: %s ===\n", kind, shortID(h.ID))
	fmt.Fprintf(a.out, "Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "Duration: %s\n", h.Duration)
	fmt.Fprintf(a.out, "Exit Code: %d\n", h.ExitCode)
	fmt.Fprintf(a.out, "Executable: %s\n", h.Executable)
	if h.Filter != "" {
		fmt.Fprintf(a.out, "Filter: %s\n", h.Filter)
	}
	if h.Command != "" {
		fmt.Fprintf(a.out, "Command: %s\n", h.Command)
	}
	if h.Git != nil && h.Git.Commit != "" {
		fmt.Fprintf(a.out, "Git Commit: %s", shortID(h.Git.Commit))
		if h.Git.Branch != "" {
			fmt.Fprintf(a.out, " (%s)", h.Git.Branch)
		}
		fmt.Fprintln(a.out)
	}
	fmt.Fprintln(a.out)

	if len(h.Results) > 0 {
		names := make([]string, 0, len(h.Results))
		for name := range h.Results {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return natural.Less(names[i], names[j])
		})
		for _, name := range names {
			fmt.Fprintf(a.out, "%s  %s\n", statusSymbol(h.Results[name]), name)
		}
		fmt.Fprintln(a.out)
	}

	if h.OutputFile == "" {
		fmt.Fprintf(a.out, "No output recorded\nHistory directory: %s\n", entry.FullPath)
		return nil
	}
	output, err := entry.Output()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Output:\n%s", output)
	if !strings.HasSuffix(output, "\n") {
		fmt.Fprintln(a.out)
	}
	return nil
}
