// Package codemodel describes the build system's code model as a versioned
// data contract and validates it where it enters the program.
package codemodel

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/perfgo/cmaketest/model"
)

// SchemaVersion is the version of the contract produced by build service adapters
const SchemaVersion = 1

// TargetTypeExecutable is the only target type that yields runnable tests
const TargetTypeExecutable = "EXECUTABLE"

var (
	// ErrUnavailable is returned when the build service has no usable code model.
	ErrUnavailable = errors.New("code model unavailable")
	// ErrUnknownTarget is returned when a target name is not part of the code model.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrNoArtifact is returned when a target has not produced a binary.
	ErrNoArtifact = errors.New("target has no artifact")
)

// CodeModel is the subset of a build description needed to map sources to
// executables. Only the first configuration is used.
type CodeModel struct {
	Version        int             `json:"version" validate:"eq=1"`
	Configurations []Configuration `json:"configurations" validate:"required,min=1,dive"`
}

// Configuration is one build configuration (Debug, Release, ...)
type Configuration struct {
	Name     string    `json:"name"`
	Projects []Project `json:"projects" validate:"dive"`
}

// Project groups the targets declared by one project() call
type Project struct {
	Name            string   `json:"name"`
	SourceDirectory string   `json:"sourceDirectory"`
	Targets         []Target `json:"targets" validate:"dive"`
}

// Target is a single build target
type Target struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required"`
	// Directory relative source paths are resolved against
	SourceDirectory string      `json:"sourceDirectory"`
	FileGroups      []FileGroup `json:"fileGroups"`
	// Absolute paths of produced binaries
	Artifacts []string `json:"artifacts"`
}

// FileGroup is a set of sources compiled with the same flags
type FileGroup struct {
	Sources []string `json:"sources"`
}

var validate = validator.New()

// Validate checks the structural contract of cm. Any violation is reported
// as ErrUnavailable so callers have one case to handle.
func Validate(cm *CodeModel) error {
	if cm == nil {
		return ErrUnavailable
	}
	if err := validate.Struct(cm); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Executables returns the executable targets of the first configuration.
func (cm *CodeModel) Executables() []Target {
	if cm == nil || len(cm.Configurations) == 0 {
		return nil
	}
	var targets []Target
	for _, p := range cm.Configurations[0].Projects {
		for _, t := range p.Targets {
			if t.Type != TargetTypeExecutable {
				continue
			}
			if t.SourceDirectory == "" {
				t.SourceDirectory = p.SourceDirectory
			}
			targets = append(targets, t)
		}
	}
	return targets
}

// Target looks up an executable target by name.
func (cm *CodeModel) Target(name string) (Target, bool) {
	for _, t := range cm.Executables() {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Sources returns the normalized absolute source paths of the target.
func (t Target) Sources() []string {
	var sources []string
	for _, g := range t.FileGroups {
		for _, src := range g.Sources {
			sources = append(sources, resolve(t.SourceDirectory, src))
		}
	}
	return sources
}

func resolve(dir, src string) string {
	src = model.NormalizePath(src)
	if isAbs(src) || dir == "" {
		return src
	}
	return model.NormalizePath(path.Join(model.NormalizePath(dir), src))
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || (len(p) >= 3 && p[1] == ':' && p[2] == '/')
}
