package model

import "time"

// HistoryType represents the type of history entry
type HistoryType string

const (
	HistoryTypeRun   HistoryType = "run"
	HistoryTypeDebug HistoryType = "debug"
)

// History represents a single cmaketest invocation against one executable
// target (a test run or a debug launch).
type History struct {
	// Unique ID for this execution
	ID string `json:"id"`
	// Type of execution (run or debug)
	Type HistoryType `json:"type"`
	// Timestamp when the execution started
	Timestamp time.Time `json:"timestamp"`
	// Project root the target belongs to
	ProjectRoot string `json:"project_root"`
	// Executable target name
	Executable string `json:"executable"`
	// Full test names that were selected (empty means all)
	Tests []string `json:"tests,omitempty"`
	// Filter expression passed to the test binary
	Filter string `json:"filter"`
	// Command line of the spawned binary, shell quoted
	Command string `json:"command,omitempty"`
	// Exit code of the test binary, -1 if it could not be started
	ExitCode int `json:"exit_code"`
	// Duration of execution
	Duration time.Duration `json:"duration"`
	// Git information
	Git *Git `json:"git,omitempty"`
	// Per-test outcome derived from the binary output
	Results map[string]TestStatus `json:"results,omitempty"`
	// Combined output file name (relative to run dir)
	OutputFile string `json:"output_file,omitempty"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}
