package cmake

// This file contains the cmake command line adapter. The code model is read
// from the replies of the cmake File API (codemodel-v2).

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	apiDir         = ".cmake/api/v1"
	codemodelQuery = "codemodel-v2"
)

// FileAPI implements Service with the cmake executable.
type FileAPI struct {
	logger        zerolog.Logger
	cmake         string
	buildDir      string
	jobs          int
	configureArgs []string
}

// Option configures a FileAPI service.
type Option func(*FileAPI)

// WithCMake sets the cmake executable to use.
func WithCMake(path string) Option {
	return func(f *FileAPI) {
		f.cmake = path
	}
}

// WithBuildDir sets the build directory, relative to the project root unless absolute.
func WithBuildDir(dir string) Option {
	return func(f *FileAPI) {
		f.buildDir = dir
	}
}

// WithJobs sets the number of parallel build jobs. Zero leaves the choice to the generator.
func WithJobs(n int) Option {
	return func(f *FileAPI) {
		f.jobs = n
	}
}

// WithConfigureArgs adds extra arguments to the configure step.
func WithConfigureArgs(args ...string) Option {
	return func(f *FileAPI) {
		f.configureArgs = append(f.configureArgs, args...)
	}
}

// NewFileAPI creates a cmake backed build service.
func NewFileAPI(logger zerolog.Logger, opts ...Option) *FileAPI {
	f := &FileAPI{
		logger:   logger,
		cmake:    "cmake",
		buildDir: "build",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Project implements Service.
func (f *FileAPI) Project(ctx context.Context, root string) (Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoProject, abs)
	}

	buildDir := f.buildDir
	if !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(abs, buildDir)
	}

	_, descErr := os.Stat(filepath.Join(abs, BuildDescriptionFile))
	_, buildErr := os.Stat(buildDir)
	if descErr != nil && buildErr != nil {
		return nil, fmt.Errorf("%w: neither %s nor a build directory found in %s", ErrNoProject, BuildDescriptionFile, abs)
	}

	return &fileAPIProject{
		service:  f,
		root:     abs,
		buildDir: buildDir,
	}, nil
}

type fileAPIProject struct {
	service  *FileAPI
	root     string
	buildDir string
}

func (p *fileAPIProject) Root() string {
	return p.root
}

func (p *fileAPIProject) BuildDirectory() (string, bool) {
	if info, err := os.Stat(p.buildDir); err == nil && info.IsDir() {
		return p.buildDir, true
	}
	return "", false
}

func (p *fileAPIProject) Configure(ctx context.Context) error {
	queryDir := filepath.Join(p.buildDir, filepath.FromSlash(apiDir), "query")
	if err := os.MkdirAll(queryDir, 0755); err != nil {
		return fmt.Errorf("failed to create file API query directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(queryDir, codemodelQuery), nil, 0644); err != nil {
		return fmt.Errorf("failed to write file API query: %w", err)
	}

	args := []string{"-S", p.root, "-B", p.buildDir}
	args = append(args, p.service.configureArgs...)

	return p.run(ctx, "configure", args)
}

func (p *fileAPIProject) Build(ctx context.Context, targets []string) error {
	args := []string{"--build", p.buildDir}
	if len(targets) > 0 {
		args = append(args, "--target")
		args = append(args, targets...)
	}
	if p.service.jobs > 0 {
		args = append(args, "--parallel", strconv.Itoa(p.service.jobs))
	}
	return p.run(ctx, "build", args)
}

func (p *fileAPIProject) run(ctx context.Context, stage string, args []string) error {
	cmd := exec.CommandContext(ctx, p.service.cmake, args...)
	cmd.Dir = p.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.service.logger.Debug().
		Str("command", cmd.String()).
		Msgf("Executing cmake %s", stage)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to %s %s: %w (stderr: %s)", stage, p.root, err, stderr.String())
	}

	p.service.logger.Info().Str("root", p.root).Msgf("cmake %s finished", stage)
	return nil
}

func (p *fileAPIProject) CodeModel(ctx context.Context) (*codemodel.CodeModel, error) {
	replyDir := filepath.Join(p.buildDir, filepath.FromSlash(apiDir), "reply")

	indexes, err := filepath.Glob(filepath.Join(replyDir, "index-*.json"))
	if err != nil || len(indexes) == 0 {
		return nil, fmt.Errorf("%w: no file API reply in %s", codemodel.ErrUnavailable, replyDir)
	}
	// index names embed a timestamp, the last one is the newest
	sort.Strings(indexes)
	index, err := os.ReadFile(indexes[len(indexes)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codemodel.ErrUnavailable, err)
	}

	jsonFile := gjson.GetBytes(index, "reply.codemodel-v2.jsonFile").String()
	if jsonFile == "" {
		return nil, fmt.Errorf("%w: index has no codemodel-v2 reply", codemodel.ErrUnavailable)
	}

	var reply codemodelReply
	if err := readJSON(filepath.Join(replyDir, jsonFile), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", codemodel.ErrUnavailable, err)
	}

	cm, err := reply.convert(replyDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codemodel.ErrUnavailable, err)
	}
	if err := codemodel.Validate(cm); err != nil {
		return nil, err
	}
	return cm, nil
}

type codemodelReply struct {
	Paths struct {
		Source string `json:"source"`
		Build  string `json:"build"`
	} `json:"paths"`
	Configurations []struct {
		Name     string `json:"name"`
		Projects []struct {
			Name string `json:"name"`
		} `json:"projects"`
		Targets []struct {
			Name         string `json:"name"`
			JSONFile     string `json:"jsonFile"`
			ProjectIndex int    `json:"projectIndex"`
		} `json:"targets"`
	} `json:"configurations"`
}

type targetReply struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Artifacts []struct {
		Path string `json:"path"`
	} `json:"artifacts"`
	Sources []struct {
		Path string `json:"path"`
	} `json:"sources"`
}

func (r *codemodelReply) convert(replyDir string) (*codemodel.CodeModel, error) {
	cm := &codemodel.CodeModel{Version: codemodel.SchemaVersion}

	for _, cfg := range r.Configurations {
		conf := codemodel.Configuration{Name: cfg.Name}
		for _, proj := range cfg.Projects {
			conf.Projects = append(conf.Projects, codemodel.Project{
				Name:            proj.Name,
				SourceDirectory: model.NormalizePath(r.Paths.Source),
			})
		}

		for _, ref := range cfg.Targets {
			if ref.ProjectIndex < 0 || ref.ProjectIndex >= len(conf.Projects) {
				return nil, fmt.Errorf("target %s references unknown project %d", ref.Name, ref.ProjectIndex)
			}

			var tr targetReply
			if err := readJSON(filepath.Join(replyDir, ref.JSONFile), &tr); err != nil {
				return nil, err
			}

			target := codemodel.Target{
				Name: tr.Name,
				Type: tr.Type,
			}
			var sources []string
			for _, s := range tr.Sources {
				sources = append(sources, s.Path)
			}
			target.FileGroups = []codemodel.FileGroup{{Sources: sources}}
			for _, a := range tr.Artifacts {
				path := a.Path
				if !filepath.IsAbs(path) {
					path = filepath.Join(r.Paths.Build, path)
				}
				target.Artifacts = append(target.Artifacts, path)
			}

			p := &conf.Projects[ref.ProjectIndex]
			p.Targets = append(p.Targets, target)
		}

		cm.Configurations = append(cm.Configurations, conf)
	}

	return cm, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
