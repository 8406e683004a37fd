package config

// This file contains the settings file loader. Settings live in
// .cmaketest.yaml next to where the tool is invoked; command line flags
// override individual values afterwards.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/perfgo/cmaketest/scanner"
	"gopkg.in/yaml.v3"
)

const FileName = ".cmaketest.yaml"

const (
	LauncherDAP   = "dap"
	LauncherPrint = "print"
)

type Config struct {
	// ProjectRoot overrides the directory holding the top level CMakeLists.txt
	ProjectRoot string `yaml:"project_root"`
	// ScanRoot is where sources are scanned for tests, defaults to ProjectRoot
	ScanRoot string `yaml:"scan_root"`
	ScanGlob string `yaml:"scan_glob"`

	Build Build `yaml:"build"`
	Test  Test  `yaml:"test"`

	Debugger Debugger `yaml:"debugger"`

	// LogFile receives the output of every run, stderr when empty
	LogFile string `yaml:"log_file"`
	// StateFile holds the staleness records, the user cache dir when empty
	StateFile string `yaml:"state_file"`
}

type Build struct {
	CMake         string   `yaml:"cmake"`
	Dir           string   `yaml:"dir"`
	Jobs          int      `yaml:"jobs" validate:"gte=0"`
	ConfigureArgs []string `yaml:"configure_args"`
	// CodeModel points to a JSON code model used instead of running cmake
	CodeModel string `yaml:"code_model"`
}

type Test struct {
	DefaultFilter string            `yaml:"default_filter"`
	Env           map[string]string `yaml:"env" validate:"dive,keys,required,endkeys"`
	ExtraFlags    []string          `yaml:"extra_flags"`
}

type Debugger struct {
	Path       string `yaml:"path"`
	EnvFile    string `yaml:"env_file"`
	LaunchFile string `yaml:"launch_file"`
	Launcher   string `yaml:"launcher" validate:"oneof=dap print"`
	Address    string `yaml:"address" validate:"omitempty,hostname_port"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		ScanGlob: scanner.DefaultGlob,
		Build: Build{
			CMake: "cmake",
			Dir:   "build",
		},
		Debugger: Debugger{
			LaunchFile: filepath.Join(".vscode", "launch.json"),
			Launcher:   LauncherPrint,
		},
	}
}

var validate = validator.New()

// Read parses the settings file in dir on top of the defaults without
// resolving paths, so callers can override fields first. A missing file is
// not an error.
func Read(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the settings file in dir and resolves it against dir.
func Load(dir string) (Config, error) {
	cfg, err := Read(dir)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Resolve(dir); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", filepath.Join(dir, FileName), err)
	}
	return cfg, nil
}

// Resolve makes relative paths absolute against dir, fills the derived
// defaults and validates the result.
func (c *Config) Resolve(dir string) error {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	if c.ProjectRoot == "" {
		c.ProjectRoot = dir
	}
	c.ProjectRoot = abs(c.ProjectRoot)
	if c.ScanRoot == "" {
		c.ScanRoot = c.ProjectRoot
	}
	c.ScanRoot = abs(c.ScanRoot)

	c.Build.CodeModel = abs(c.Build.CodeModel)
	c.LogFile = abs(c.LogFile)
	c.StateFile = abs(c.StateFile)
	c.Debugger.EnvFile = abs(c.Debugger.EnvFile)
	if c.Debugger.LaunchFile != "" && !filepath.IsAbs(c.Debugger.LaunchFile) {
		c.Debugger.LaunchFile = filepath.Join(c.ProjectRoot, c.Debugger.LaunchFile)
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("failed to validate settings: %w", err)
	}
	if c.Debugger.Launcher == LauncherDAP && c.Debugger.Address == "" {
		return fmt.Errorf("debugger address is required for the %s launcher", LauncherDAP)
	}
	return nil
}

// BuildDir returns the absolute build directory.
func (c *Config) BuildDir() string {
	if filepath.IsAbs(c.Build.Dir) {
		return c.Build.Dir
	}
	return filepath.Join(c.ProjectRoot, c.Build.Dir)
}

// Environ returns the configured environment as a map, never nil.
func (c *Config) Environ() map[string]string {
	env := make(map[string]string, len(c.Test.Env))
	for k, v := range c.Test.Env {
		env[k] = v
	}
	return env
}
