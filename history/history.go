package history

// This file contains shared history utilities for recording, loading and
// replaying test run history.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/perfgo/cmaketest/model"
	"github.com/perfgo/cmaketest/results"
	"github.com/rs/zerolog"
)

const (
	// DirName is created at the project root to hold run records
	DirName = ".cmaketest"

	metadataFile = "run.json"
	outputFile   = "output.txt"
)

type Entry struct {
	History  model.History
	FullPath string
}

// Recorder persists a finished run together with its combined output.
type Recorder interface {
	Record(h *model.History, output string) error
}

// Root returns the history directory of a project.
func Root(projectRoot string) string {
	return filepath.Join(projectRoot, DirName, "history")
}

// GitInfo returns the commit and branch checked out in dir.
func GitInfo(dir string) (commit, branch string, err error) {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get git commit: %w", err)
	}
	commit = strings.TrimSpace(string(output))

	cmd = exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD")
	output, err = cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get git branch: %w", err)
	}
	branch = strings.TrimSpace(string(output))

	return commit, branch, nil
}

// DirRecorder writes each run to <root>/.cmaketest/history/<timestamp>-<id>/.
type DirRecorder struct {
	logger zerolog.Logger
}

func NewDirRecorder(logger zerolog.Logger) *DirRecorder {
	return &DirRecorder{logger: logger}
}

func (r *DirRecorder) Record(h *model.History, output string) error {
	timestamp := h.Timestamp.Format("20060102-150405")
	shortID := h.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	runDir := filepath.Join(Root(h.ProjectRoot), fmt.Sprintf("%s-%s", timestamp, shortID))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if output != "" {
		if err := os.WriteFile(filepath.Join(runDir, outputFile), []byte(output), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		h.OutputFile = outputFile
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write history metadata: %w", err)
	}

	r.logger.Debug().Str("dir", runDir).Str("id", h.ID).Msg("Recorded run")
	return nil
}

// LoadEntries loads all history entries of a project, newest first. A
// project without history yields no entries.
func LoadEntries(logger zerolog.Logger, projectRoot string) ([]Entry, error) {
	root := Root(projectRoot)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		historyPath := filepath.Join(path, metadataFile)
		if _, err := os.Stat(historyPath); err != nil {
			return nil
		}
		h, err := parseHistoryJSON(historyPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", historyPath).Msg("Failed to parse run.json")
			return nil
		}
		entries = append(entries, Entry{History: h, FullPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})
	return entries, nil
}

// Output returns the combined output stored with an entry.
func (e Entry) Output() (string, error) {
	if e.History.OutputFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(e.FullPath, e.History.OutputFile))
	if err != nil {
		return "", fmt.Errorf("failed to read output: %w", err)
	}
	return string(data), nil
}

// Replay applies run entries to a result store, oldest first, so the store
// ends up with the latest known outcome of every test.
func Replay(logger zerolog.Logger, store *results.Store, entries []Entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.History.Type != model.HistoryTypeRun || len(e.History.Results) == 0 {
			continue
		}

		output, err := e.Output()
		if err != nil {
			logger.Warn().Err(err).Str("path", e.FullPath).Msg("Failed to load run output")
		}

		names := make([]string, 0, len(e.History.Results))
		for name := range e.History.Results {
			names = append(names, name)
		}
		store.SetStatusBulk(e.History.Executable, e.History.Results)
		store.SetOutputBulk(e.History.Executable, names, output)
	}
}

// parseHistoryJSON parses a run.json file.
func parseHistoryJSON(historyPath string) (model.History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		return model.History{}, err
	}

	var h model.History
	if err := json.Unmarshal(data, &h); err != nil {
		return model.History{}, err
	}

	return h, nil
}
