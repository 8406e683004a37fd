package debug

// This file contains the reader for editor launch files (launch.json). The
// files are JSON with comments and trailing commas; jsonc turns them into
// plain JSON, which is then navigated with gjson.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perfgo/cmaketest/model"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// LaunchEntry is the subset of an existing launch configuration this tool
// reads. Only MIDebuggerPath and EnvFile are ever borrowed from it.
type LaunchEntry struct {
	Name           string
	Type           string
	Program        string
	MIDebuggerPath string
	EnvFile        string
}

// ReadLaunchFile returns the configurations of a launch file. A missing file
// has no configurations.
func ReadLaunchFile(path string) ([]LaunchEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read launch file: %w", err)
	}
	return ParseLaunchFile(data)
}

// ParseLaunchFile parses launch file content.
func ParseLaunchFile(data []byte) ([]LaunchEntry, error) {
	root := gjson.ParseBytes(jsonc.ToJSON(data))
	if !root.IsObject() {
		return nil, fmt.Errorf("launch file is not a JSON object")
	}

	var entries []LaunchEntry
	root.Get("configurations").ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		entries = append(entries, LaunchEntry{
			Name:           v.Get("name").String(),
			Type:           v.Get("type").String(),
			Program:        v.Get("program").String(),
			MIDebuggerPath: v.Get("miDebuggerPath").String(),
			EnvFile:        v.Get("envFile").String(),
		})
		return true
	})
	return entries, nil
}

// MatchLaunch finds the configuration debugging artifact: first one whose
// program resolves to the same path, then one whose program has the same
// base name.
func MatchLaunch(entries []LaunchEntry, workspace, artifact string) (LaunchEntry, bool) {
	want := model.NormalizePath(artifact)
	for _, e := range entries {
		if e.Program == "" {
			continue
		}
		if ResolveProgram(e.Program, workspace) == want {
			return e, true
		}
	}

	base := filepath.Base(filepath.FromSlash(want))
	for _, e := range entries {
		if e.Program == "" {
			continue
		}
		if filepath.Base(filepath.FromSlash(ResolveProgram(e.Program, workspace))) == base {
			return e, true
		}
	}
	return LaunchEntry{}, false
}

// ResolveProgram substitutes workspace variables in a program path and
// normalizes it. Relative results are taken relative to the workspace.
func ResolveProgram(program, workspace string) string {
	r := strings.NewReplacer(
		"${workspaceFolder}", workspace,
		"${workspaceRoot}", workspace,
		"${workspaceFolderBasename}", filepath.Base(workspace),
	)
	p := r.Replace(program)
	if !filepath.IsAbs(p) && !strings.HasPrefix(p, "/") && !hasDrive(p) {
		p = filepath.Join(workspace, p)
	}
	return model.NormalizePath(p)
}

func hasDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
