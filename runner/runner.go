// Package runner builds, executes and evaluates selected tests of one
// executable target and publishes the outcome to the result store.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/uuid"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/gtest"
	"github.com/perfgo/cmaketest/history"
	"github.com/perfgo/cmaketest/model"
	"github.com/perfgo/cmaketest/results"
	"github.com/perfgo/cmaketest/staleness"
	"github.com/rs/zerolog"
)

// Settings are the user configurable parts of a run.
type Settings struct {
	DefaultFilter string
	Env           map[string]string
	ExtraFlags    []string
}

// Builder makes sure targets are built before they run.
type Builder interface {
	EnsureBuilt(ctx context.Context, project cmake.Project, targets []string) error
}

var _ Builder = (*staleness.Tracker)(nil)

type Orchestrator struct {
	logger   zerolog.Logger
	service  cmake.Service
	builder  Builder
	store    *results.Store
	spawner  Spawner
	parser   gtest.OutcomeParser
	sink     io.Writer
	recorder history.Recorder
	settings Settings
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpawner replaces the process spawner.
func WithSpawner(s Spawner) Option {
	return func(o *Orchestrator) {
		o.spawner = s
	}
}

// WithParser replaces the output marker parser.
func WithParser(p gtest.OutcomeParser) Option {
	return func(o *Orchestrator) {
		o.parser = p
	}
}

// WithLogSink sets the writer receiving a header and the output of every run.
func WithLogSink(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.sink = w
	}
}

// WithRecorder records every run in the history.
func WithRecorder(r history.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

func WithSettings(s Settings) Option {
	return func(o *Orchestrator) {
		o.settings = s
	}
}

// New creates an orchestrator. Without options it spawns processes with
// os/exec, parses the textual report markers and discards the log.
func New(logger zerolog.Logger, service cmake.Service, builder Builder, store *results.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:  logger,
		service: service,
		builder: builder,
		store:   store,
		parser:  gtest.MarkerParser{},
		sink:    io.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.spawner == nil {
		o.spawner = NewExecSpawner(logger, nil)
	}
	return o
}

// Run executes the named tests of executable, or all of its tests when
// names is empty. Build and artifact failures are returned and leave the
// result store as it was. The test binary's exit code is not an error;
// outcomes come only from the report markers in its output.
func (o *Orchestrator) Run(ctx context.Context, root, executable string, names []string) error {
	project, err := o.service.Project(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to find build project: %w", err)
	}

	snapshot := o.store.Snapshot(executable, names)
	if len(names) > 0 {
		o.store.SetStatusBulk(executable, statusesOf(names, model.StatusRunning))
	}

	artifact, err := o.prepare(ctx, project, executable)
	if err != nil {
		if len(names) > 0 {
			o.store.Restore(snapshot)
		}
		return err
	}

	filter := gtest.WithDefault(gtest.BuildFilter(names), o.settings.DefaultFilter)
	args := append([]string{gtest.FilterArg(filter)}, o.settings.ExtraFlags...)

	dir, ok := project.BuildDirectory()
	if !ok {
		dir = filepath.Dir(artifact)
	}

	proc := Process{
		Path: artifact,
		Args: args,
		Env:  MergeEnv(os.Environ(), o.settings.Env),
		Dir:  dir,
	}
	command := quoteCommand(artifact, args)

	o.logger.Info().
		Str("executable", executable).
		Str("filter", filter).
		Msg("Running tests")

	start := o.now()
	res, spawnErr := o.spawner.Spawn(ctx, proc)
	output := res.Output
	if spawnErr != nil {
		o.logger.Warn().Err(spawnErr).Str("binary", artifact).Msg("Failed to run test binary")
		output += spawnErr.Error() + "\n"
	}

	statuses := o.parser.Parse(output, names)
	reported := make([]string, 0, len(statuses))
	for name := range statuses {
		reported = append(reported, name)
	}
	sort.Strings(reported)

	if len(statuses) > 0 {
		o.store.SetStatusBulk(executable, statuses)
		o.store.SetOutputBulk(executable, reported, output)
	}

	o.writeLog(start, executable, names, command, output)
	o.record(&model.History{
		Type:        model.HistoryTypeRun,
		Timestamp:   start,
		ProjectRoot: project.Root(),
		Executable:  executable,
		Tests:       names,
		Filter:      filter,
		Command:     command,
		ExitCode:    res.ExitCode,
		Duration:    o.now().Sub(start),
		Results:     statuses,
	}, output)

	return nil
}

// prepare builds the executable if needed and resolves its artifact.
func (o *Orchestrator) prepare(ctx context.Context, project cmake.Project, executable string) (string, error) {
	if err := o.builder.EnsureBuilt(ctx, project, []string{executable}); err != nil {
		return "", err
	}

	cm, err := project.CodeModel(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get code model: %w", err)
	}
	artifact, err := codemodel.ArtifactPath(cm, executable)
	if err != nil {
		return "", fmt.Errorf("failed to resolve artifact: %w", err)
	}
	return artifact, nil
}

func (o *Orchestrator) writeLog(start time.Time, executable string, names []string, command, output string) {
	selected := "(all)"
	if len(names) > 0 {
		selected = strings.Join(names, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "==== %s %s: %s\n", start.Format(time.RFC3339), executable, selected)
	fmt.Fprintf(&b, "$ %s\n", command)
	b.WriteString(output)
	if output != "" && !strings.HasSuffix(output, "\n") {
		b.WriteString("\n")
	}

	if _, err := io.WriteString(o.sink, b.String()); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to write run log")
	}
}

func (o *Orchestrator) record(h *model.History, output string) {
	if o.recorder == nil {
		return
	}

	h.ID = uuid.NewString()
	if commit, branch, err := history.GitInfo(h.ProjectRoot); err == nil {
		h.Git = &model.Git{Commit: commit, Branch: branch}
	}

	// Record the history (non-fatal if it fails)
	if err := o.recorder.Record(h, output); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to record history")
	}
}

func quoteCommand(binary string, args []string) string {
	parts := []string{shellescape.Quote(binary)}
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

func statusesOf(names []string, status model.TestStatus) map[string]model.TestStatus {
	statuses := make(map[string]model.TestStatus, len(names))
	for _, name := range names {
		statuses[name] = status
	}
	return statuses
}

// MergeEnv overlays overrides onto a KEY=value environment. The result is
// sorted by key.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
