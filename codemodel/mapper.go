package codemodel

// This file maps source files to the executable targets compiling them.

import (
	"fmt"
	"sort"

	"github.com/perfgo/cmaketest/model"
)

// SourceToExecutable maps each normalized source path to the executable
// target compiling it. When several targets compile the same file the first
// one in code model order wins.
func SourceToExecutable(cm *CodeModel) map[string]string {
	out := make(map[string]string)
	for _, t := range cm.Executables() {
		for _, src := range t.Sources() {
			if _, ok := out[src]; !ok {
				out[src] = t.Name
			}
		}
	}
	return out
}

// ExecutableToSources maps each executable target to its set of normalized
// source paths.
func ExecutableToSources(cm *CodeModel) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, t := range cm.Executables() {
		set, ok := out[t.Name]
		if !ok {
			set = make(map[string]struct{})
			out[t.Name] = set
		}
		for _, src := range t.Sources() {
			set[src] = struct{}{}
		}
	}
	return out
}

// ExecutableForFile resolves the executable owning file by exact normalized
// path match. Files no target claims are not an error: their tests are
// simply left out of every view.
func ExecutableForFile(cm *CodeModel, file string) (string, bool) {
	exe, ok := SourceToExecutable(cm)[model.NormalizePath(file)]
	return exe, ok
}

// SourcesOf returns the sorted union of the sources of the named targets.
// Unknown names contribute nothing.
func SourcesOf(cm *CodeModel, targets []string) []string {
	all := ExecutableToSources(cm)
	seen := make(map[string]struct{})
	var out []string
	for _, name := range targets {
		for src := range all[name] {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

// ArtifactPath returns the binary produced by the named executable target.
func ArtifactPath(cm *CodeModel, target string) (string, error) {
	t, ok := cm.Target(target)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	for _, a := range t.Artifacts {
		if a != "" {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoArtifact, target)
}
