package cli

// This file contains the list command for displaying previous runs and
// debug launches.

import (
	"fmt"
	"sort"
	"time"

	"github.com/perfgo/cmaketest/history"
	"github.com/perfgo/cmaketest/model"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	filterExe := ctx.String("executable")
	limit := ctx.Int("limit")

	entries, err := history.LoadEntries(a.logger, s.cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	var filtered []history.Entry
	for _, entry := range entries {
		if filterExe == "" || entry.History.Executable == filterExe {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterExe != "" {
			fmt.Fprintf(a.out, "No history entries found for executable: %s\n", filterExe)
		} else {
			fmt.Fprintln(a.out, "No history entries found")
		}
		return nil
	}

	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Fprintf(a.out, "\n=== History (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		h := entry.History
		timestamp := h.Timestamp.Format("2006-01-02 15:04:05")
		duration := h.Duration.Round(time.Millisecond)

		status := "✓"
		if h.ExitCode != 0 {
			status = "✗"
		}

		fmt.Fprintf(a.out, "%s  %s  %-5s [%s]  exit=%d  id=%s\n",
			status, timestamp, h.Type, duration, h.ExitCode, shortID(h.ID))
		fmt.Fprintf(a.out, "   Executable: %s\n", h.Executable)
		if h.Filter != "" {
			fmt.Fprintf(a.out, "   Filter: %s\n", h.Filter)
		}
		if len(h.Results) > 0 {
			fmt.Fprintf(a.out, "   Results: %s\n", summarize(h.Results))
		}
		if h.Git != nil && h.Git.Commit != "" {
			fmt.Fprintf(a.out, "   Commit: %s", shortID(h.Git.Commit))
			if h.Git.Branch != "" {
				fmt.Fprintf(a.out, " (%s)", h.Git.Branch)
			}
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "   %s\n", entry.FullPath)
		fmt.Fprintln(a.out)
	}

	fmt.Fprintf(a.out, "View a run: %s view <ID>\n", AppName)
	return nil
}

// summarize counts results per status, e.g. "3 passed, 1 failed".
func summarize(results map[string]model.TestStatus) string {
	counts := make(map[model.TestStatus]int)
	for _, status := range results {
		counts[status]++
	}

	order := []model.TestStatus{
		model.StatusPassed,
		model.StatusFailed,
		model.StatusIgnored,
		model.StatusNotRun,
	}
	var out string
	for _, status := range order {
		if counts[status] == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", counts[status], statusWord(status))
		delete(counts, status)
	}

	// anything else, in a stable order
	var rest []string
	for status := range counts {
		rest = append(rest, string(status))
	}
	sort.Strings(rest)
	for _, status := range rest {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", counts[model.TestStatus(status)], status)
	}
	return out
}

func statusWord(status model.TestStatus) string {
	switch status {
	case model.StatusPassed:
		return "passed"
	case model.StatusFailed:
		return "failed"
	case model.StatusIgnored:
		return "skipped"
	case model.StatusNotRun:
		return "not run"
	}
	return string(status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
