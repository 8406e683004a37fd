// Package discovery joins the tests found in the source tree with the
// executable targets that compile them.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/maruel/natural"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/model"
	"github.com/perfgo/cmaketest/scanner"
	"github.com/rs/zerolog"
)

// Test is a scanned test together with where it lives.
type Test struct {
	model.ScannedTest
	File       string `json:"file"`
	Executable string `json:"executable"`
}

type Suite struct {
	Name  string `json:"name"`
	Tests []Test `json:"tests"`
}

type Executable struct {
	Name   string  `json:"name"`
	Suites []Suite `json:"suites"`
}

// Result is one discovery pass. Files no executable target compiles are
// kept apart in Unmapped.
type Result struct {
	Executables []Executable        `json:"executables"`
	Unmapped    []model.ScannedFile `json:"unmapped,omitempty"`
}

// Executable returns the named executable of the result.
func (r *Result) Executable(name string) (Executable, bool) {
	for _, e := range r.Executables {
		if e.Name == name {
			return e, true
		}
	}
	return Executable{}, false
}

// Tests returns every test of an executable in display order.
func (e Executable) Tests() []Test {
	var tests []Test
	for _, s := range e.Suites {
		tests = append(tests, s.Tests...)
	}
	return tests
}

// Count returns the number of discovered tests.
func (r *Result) Count() int {
	n := 0
	for _, e := range r.Executables {
		n += len(e.Tests())
	}
	return n
}

// Group assigns scanned files to executables and orders executables,
// suites and tests naturally ("Test2" before "Test10"). A nil code model
// leaves every file unmapped.
func Group(files []model.ScannedFile, cm *codemodel.CodeModel) *Result {
	r := &Result{}
	var owners map[string]string
	if cm != nil {
		owners = codemodel.SourceToExecutable(cm)
	}

	bySuite := make(map[string]map[string][]Test)
	for _, f := range files {
		exe, ok := owners[model.NormalizePath(f.Path)]
		if !ok {
			r.Unmapped = append(r.Unmapped, f)
			continue
		}
		suites, ok := bySuite[exe]
		if !ok {
			suites = make(map[string][]Test)
			bySuite[exe] = suites
		}
		for _, t := range f.Tests {
			suites[t.Suite] = append(suites[t.Suite], Test{ScannedTest: t, File: f.Path, Executable: exe})
		}
	}

	for exe, suites := range bySuite {
		e := Executable{Name: exe}
		for name, tests := range suites {
			sort.SliceStable(tests, func(i, j int) bool {
				return natural.Less(tests[i].Name, tests[j].Name)
			})
			e.Suites = append(e.Suites, Suite{Name: name, Tests: tests})
		}
		sort.Slice(e.Suites, func(i, j int) bool {
			return natural.Less(e.Suites[i].Name, e.Suites[j].Name)
		})
		r.Executables = append(r.Executables, e)
	}
	sort.Slice(r.Executables, func(i, j int) bool {
		return natural.Less(r.Executables[i].Name, r.Executables[j].Name)
	})
	return r
}

type Discovery struct {
	logger     zerolog.Logger
	discoverer scanner.Discoverer
	service    cmake.Service
	root       string
	scanRoot   string
	glob       string
}

// New creates a discovery over the project at root scanning scanRoot with
// glob. An empty scanRoot scans the project root.
func New(logger zerolog.Logger, d scanner.Discoverer, service cmake.Service, root, scanRoot, glob string) *Discovery {
	if scanRoot == "" {
		scanRoot = root
	}
	return &Discovery{
		logger:     logger,
		discoverer: d,
		service:    service,
		root:       root,
		scanRoot:   scanRoot,
		glob:       glob,
	}
}

// Discover scans the source tree and maps the result onto the current code
// model. A project that has not been configured yet yields only unmapped
// files.
func (d *Discovery) Discover(ctx context.Context) (*Result, error) {
	project, err := d.service.Project(ctx, d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to find build project: %w", err)
	}

	var exclude []string
	if dir, ok := project.BuildDirectory(); ok {
		exclude = append(exclude, dir)
	}
	files, err := scanner.ScanDir(d.logger, d.discoverer, d.scanRoot, d.glob, exclude...)
	if err != nil {
		return nil, err
	}

	cm, err := project.CodeModel(ctx)
	if errors.Is(err, codemodel.ErrUnavailable) {
		d.logger.Warn().Err(err).Str("root", d.root).Msg("Code model not available, tests cannot be mapped to executables")
		cm = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get code model: %w", err)
	}

	r := Group(files, cm)
	d.logger.Debug().
		Int("executables", len(r.Executables)).
		Int("tests", r.Count()).
		Int("unmapped_files", len(r.Unmapped)).
		Msg("Discovered tests")
	return r, nil
}
