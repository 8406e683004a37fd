package cmake

// This file contains a build service backed by a code model given up front,
// for trees whose build is driven by something else (an IDE, a CI job).

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/model"
)

// StaticProject is a Project with a fixed code model. Configure and Build
// call the optional hooks and count invocations.
type StaticProject struct {
	RootDir  string
	BuildDir string
	Model    *codemodel.CodeModel
	OnConfig func(ctx context.Context) error
	OnBuild  func(ctx context.Context, targets []string) error

	mu         sync.Mutex
	configures int
	builds     [][]string
}

func (p *StaticProject) Root() string {
	return p.RootDir
}

func (p *StaticProject) Configure(ctx context.Context) error {
	p.mu.Lock()
	p.configures++
	p.mu.Unlock()
	if p.OnConfig != nil {
		return p.OnConfig(ctx)
	}
	return nil
}

func (p *StaticProject) Build(ctx context.Context, targets []string) error {
	p.mu.Lock()
	p.builds = append(p.builds, append([]string(nil), targets...))
	p.mu.Unlock()
	if p.OnBuild != nil {
		return p.OnBuild(ctx, targets)
	}
	return nil
}

func (p *StaticProject) BuildDirectory() (string, bool) {
	return p.BuildDir, p.BuildDir != ""
}

func (p *StaticProject) CodeModel(ctx context.Context) (*codemodel.CodeModel, error) {
	if err := codemodel.Validate(p.Model); err != nil {
		return nil, err
	}
	return p.Model, nil
}

// Configures returns how many times Configure was called.
func (p *StaticProject) Configures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configures
}

// Builds returns the target lists of every Build call.
func (p *StaticProject) Builds() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.builds...)
}

// Static serves a fixed set of projects keyed by root.
type Static struct {
	projects map[string]*StaticProject
}

// NewStatic creates a service serving the given projects.
func NewStatic(projects ...*StaticProject) *Static {
	s := &Static{projects: make(map[string]*StaticProject)}
	for _, p := range projects {
		s.projects[model.NormalizePath(p.RootDir)] = p
	}
	return s
}

// Project implements Service.
func (s *Static) Project(ctx context.Context, root string) (Project, error) {
	p, ok := s.projects[model.NormalizePath(root)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProject, root)
	}
	return p, nil
}

// LoadStaticProject reads a code model document from path. Configure and
// Build are no-ops; the caller is expected to keep the tree built.
func LoadStaticProject(root, buildDir, path string) (*StaticProject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read code model: %w", err)
	}

	var cm codemodel.CodeModel
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("%w: %v", codemodel.ErrUnavailable, err)
	}
	if err := codemodel.Validate(&cm); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if buildDir != "" && !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(abs, buildDir)
	}

	return &StaticProject{
		RootDir:  abs,
		BuildDir: buildDir,
		Model:    &cm,
	}, nil
}
