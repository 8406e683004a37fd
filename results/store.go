// Package results keeps the latest status and output of every test, keyed
// by executable target and full test name, and notifies observers of changes.
package results

import (
	"sort"
	"sync"
	"time"

	"github.com/perfgo/cmaketest/model"
)

// Key identifies a test across rebuilds and rescans
type Key struct {
	Executable string
	FullName   string
}

// Change describes one mutation call. Bulk calls produce a single Change
// listing every affected name.
type Change struct {
	Executable string
	Names      []string
}

// Observer is notified after every mutation
type Observer func(Change)

// Store holds test results for the lifetime of a session. Create it with
// New at startup and Close it at shutdown.
type Store struct {
	mu        sync.RWMutex
	results   map[Key]model.TestResult
	observers map[int]Observer
	nextID    int
	closed    bool
	now       func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		results:   make(map[Key]model.TestResult),
		observers: make(map[int]Observer),
		now:       time.Now,
	}
}

// Subscribe registers an observer and returns a function removing it.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Close drops all observers and results. Mutations after Close are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.observers = make(map[int]Observer)
	s.results = make(map[Key]model.TestResult)
	s.mu.Unlock()
}

// Status returns the status of a test, StatusNotRun when it is unknown.
func (s *Store) Status(executable, fullName string) model.TestStatus {
	r, ok := s.Result(executable, fullName)
	if !ok {
		return model.StatusNotRun
	}
	return r.Status
}

// Output returns the output of the latest run of a test.
func (s *Store) Output(executable, fullName string) string {
	r, _ := s.Result(executable, fullName)
	return r.Output
}

// Result returns the full result of a test.
func (s *Store) Result(executable, fullName string) (model.TestResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[Key{executable, fullName}]
	if !ok {
		return model.TestResult{Status: model.StatusNotRun}, false
	}
	return r, true
}

// SetStatus sets the status of one test.
func (s *Store) SetStatus(executable, fullName string, status model.TestStatus) {
	s.SetStatusBulk(executable, map[string]model.TestStatus{fullName: status})
}

// SetStatusBulk sets the status of several tests of one executable and
// notifies observers once.
func (s *Store) SetStatusBulk(executable string, statuses map[string]model.TestStatus) {
	names := make([]string, 0, len(statuses))
	s.mutate(func() {
		now := s.now()
		for name, status := range statuses {
			k := Key{executable, name}
			r := s.results[k]
			r.Status = status
			if status != model.StatusRunning && status != model.StatusNotRun {
				t := now
				r.LastRunTime = &t
			}
			s.results[k] = r
			names = append(names, name)
		}
	}, executable, &names)
}

// SetOutput replaces the output of one test.
func (s *Store) SetOutput(executable, fullName, output string) {
	s.SetOutputBulk(executable, []string{fullName}, output)
}

// SetOutputBulk replaces the output of several tests with the same text and
// notifies observers once.
func (s *Store) SetOutputBulk(executable string, fullNames []string, output string) {
	names := append([]string(nil), fullNames...)
	s.mutate(func() {
		for _, name := range names {
			k := Key{executable, name}
			r, ok := s.results[k]
			if !ok {
				r.Status = model.StatusNotRun
			}
			r.Output = output
			s.results[k] = r
		}
	}, executable, &names)
}

// Snapshot is a copy of the results of some tests, taken to undo a change.
type Snapshot struct {
	executable string
	results    map[string]model.TestResult
	known      map[string]bool
}

// Snapshot copies the current results of the named tests.
func (s *Store) Snapshot(executable string, fullNames []string) Snapshot {
	snap := Snapshot{
		executable: executable,
		results:    make(map[string]model.TestResult, len(fullNames)),
		known:      make(map[string]bool, len(fullNames)),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range fullNames {
		r, ok := s.results[Key{executable, name}]
		snap.results[name] = r
		snap.known[name] = ok
	}
	return snap
}

// Restore puts back the results captured by Snapshot, forgetting tests that
// were unknown at that time. Observers are notified once.
func (s *Store) Restore(snap Snapshot) {
	names := make([]string, 0, len(snap.results))
	s.mutate(func() {
		for name, r := range snap.results {
			k := Key{snap.executable, name}
			if snap.known[name] {
				s.results[k] = r
			} else {
				delete(s.results, k)
			}
			names = append(names, name)
		}
	}, snap.executable, &names)
}

// Names returns the names of all known tests of an executable, sorted.
func (s *Store) Names(executable string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for k := range s.results {
		if k.Executable == executable {
			names = append(names, k.FullName)
		}
	}
	sort.Strings(names)
	return names
}

// Executables returns the executables with at least one result, sorted.
func (s *Store) Executables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for k := range s.results {
		if _, ok := seen[k.Executable]; ok {
			continue
		}
		seen[k.Executable] = struct{}{}
		out = append(out, k.Executable)
	}
	sort.Strings(out)
	return out
}

// mutate applies fn under the write lock and then notifies observers
// outside of it, so observers may read the store.
func (s *Store) mutate(fn func(), executable string, names *[]string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	observers := make([]Observer, 0, len(s.observers))
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	sort.Strings(*names)
	change := Change{Executable: executable, Names: *names}
	for _, o := range observers {
		o(change)
	}
}
