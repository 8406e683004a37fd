// Package staleness decides whether a project needs to be configured and/or
// built before its test binaries can be run.
package staleness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/djherbis/times"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/kvstore"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
)

// StatFunc returns the modification time of a file.
type StatFunc func(path string) (time.Time, error)

// ModTime returns the content modification time of path.
func ModTime(path string) (time.Time, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return ts.ModTime(), nil
}

// Key returns the storage key of the record for a project root.
func Key(root string) string {
	return "staleness:" + model.NormalizePath(root)
}

// Tracker persists build fingerprints per project root.
type Tracker struct {
	logger zerolog.Logger
	store  kvstore.Store
	stat   StatFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStat replaces the modification time lookup.
func WithStat(stat StatFunc) Option {
	return func(t *Tracker) {
		t.stat = stat
	}
}

// New creates a tracker storing its records in store.
func New(logger zerolog.Logger, store kvstore.Store, opts ...Option) *Tracker {
	t := &Tracker{
		logger: logger,
		store:  store,
		stat:   ModTime,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) lock(root string) func() {
	key := Key(root)
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Record returns the stored record of a project root, or an empty record
// when none exists yet.
func (t *Tracker) Record(root string) (*model.StalenessRecord, error) {
	rec := model.NewStalenessRecord()
	if _, err := t.store.Get(Key(root), rec); err != nil {
		return nil, fmt.Errorf("failed to load build state of %s: %w", root, err)
	}
	if rec.LastSourceMtimes == nil {
		rec.LastSourceMtimes = make(map[string]time.Time)
	}
	return rec, nil
}

func (t *Tracker) save(root string, rec *model.StalenessRecord) error {
	if err := t.store.Update(Key(root), rec); err != nil {
		return fmt.Errorf("failed to store build state of %s: %w", root, err)
	}
	return nil
}

// EnsureBuilt configures the project when its build description changed and
// builds targets when a configure happened or any of their sources changed.
// Each stage's fingerprints are stored only after that stage succeeded, so
// a failed stage is retried by the next call.
func (t *Tracker) EnsureBuilt(ctx context.Context, project cmake.Project, targets []string) error {
	root := project.Root()
	unlock := t.lock(root)
	defer unlock()

	rec, err := t.Record(root)
	if err != nil {
		return err
	}

	configure := func(mtime time.Time) error {
		if err := project.Configure(ctx); err != nil {
			return fmt.Errorf("failed to configure: %w", err)
		}
		if mtime.After(rec.LastCmakeMtime) {
			rec.LastCmakeMtime = mtime
		}
		rec.BuildPending = true
		return t.save(root, rec)
	}

	descPath := filepath.Join(root, cmake.BuildDescriptionFile)
	descMtime, statErr := t.stat(descPath)
	configured := false
	if statErr == nil && descMtime.After(rec.LastCmakeMtime) {
		t.logger.Info().
			Str("root", root).
			Time("mtime", descMtime).
			Msg("Build description changed, configuring")

		if err := configure(descMtime); err != nil {
			return err
		}
		configured = true
	}

	cm, err := project.CodeModel(ctx)
	if err != nil && !configured && errors.Is(err, codemodel.ErrUnavailable) {
		// build tree removed or never generated
		t.logger.Info().
			Str("root", root).
			Err(err).
			Msg("No code model in build tree, configuring")

		if err := configure(descMtime); err != nil {
			return err
		}
		cm, err = project.CodeModel(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to get code model: %w", err)
	}

	sources := codemodel.SourcesOf(cm, targets)
	current := make(map[string]time.Time, len(sources))
	var changed []string
	for _, src := range sources {
		mtime, err := t.stat(src)
		if err != nil {
			// unreadable or removed; let the build report it
			changed = append(changed, src)
			continue
		}
		current[src] = mtime
		last, ok := rec.LastSourceMtimes[src]
		if !ok || mtime.After(last) {
			changed = append(changed, src)
		}
	}

	if !rec.BuildPending && len(changed) == 0 {
		t.logger.Debug().
			Str("root", root).
			Strs("targets", targets).
			Int("sources", len(sources)).
			Msg("Targets are up to date")
		return nil
	}

	t.logger.Info().
		Str("root", root).
		Strs("targets", targets).
		Int("changed", len(changed)).
		Bool("configured", rec.BuildPending).
		Msg("Building targets")

	if err := project.Build(ctx, targets); err != nil {
		return fmt.Errorf("failed to build %v: %w", targets, err)
	}

	for src, mtime := range current {
		rec.LastSourceMtimes[src] = mtime
	}
	rec.BuildPending = false
	return t.save(root, rec)
}
