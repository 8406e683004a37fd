package cmake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFileAPI_ProjectMissing(t *testing.T) {
	f := NewFileAPI(zerolog.Nop())

	_, err := f.Project(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrNoProject)

	_, err = f.Project(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNoProject)
}

func TestFileAPI_CodeModel(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "out")
	reply := filepath.Join(build, ".cmake", "api", "v1", "reply")

	writeFile(t, filepath.Join(root, BuildDescriptionFile), "project(demo)\n")
	writeFile(t, filepath.Join(reply, "index-2024-01-01T00-00-00-0000.json"), `{"reply":{}}`)
	writeFile(t, filepath.Join(reply, "index-2024-06-01T00-00-00-0000.json"), `{
  "reply": {
    "codemodel-v2": {"kind": "codemodel", "jsonFile": "codemodel-v2-abc.json"}
  }
}`)
	writeFile(t, filepath.Join(reply, "codemodel-v2-abc.json"), `{
  "paths": {"source": "`+filepath.ToSlash(root)+`", "build": "`+filepath.ToSlash(build)+`"},
  "configurations": [{
    "name": "Debug",
    "projects": [{"name": "demo"}],
    "targets": [
      {"name": "unit_tests", "jsonFile": "target-unit.json", "projectIndex": 0},
      {"name": "core", "jsonFile": "target-core.json", "projectIndex": 0}
    ]
  }]
}`)
	writeFile(t, filepath.Join(reply, "target-unit.json"), `{
  "name": "unit_tests",
  "type": "EXECUTABLE",
  "artifacts": [{"path": "tests/unit_tests"}],
  "sources": [{"path": "tests/unit_test.cpp"}, {"path": "tests/helpers.cpp"}]
}`)
	writeFile(t, filepath.Join(reply, "target-core.json"), `{
  "name": "core",
  "type": "STATIC_LIBRARY",
  "artifacts": [{"path": "libcore.a"}],
  "sources": [{"path": "src/core.cpp"}]
}`)

	f := NewFileAPI(zerolog.Nop(), WithBuildDir("out"))
	p, err := f.Project(context.Background(), root)
	require.NoError(t, err)

	dir, ok := p.BuildDirectory()
	require.True(t, ok)
	require.Equal(t, build, dir)

	cm, err := p.CodeModel(context.Background())
	require.NoError(t, err)

	exe, ok := codemodel.ExecutableForFile(cm, filepath.Join(root, "tests", "unit_test.cpp"))
	require.True(t, ok)
	require.Equal(t, "unit_tests", exe)

	_, ok = codemodel.ExecutableForFile(cm, filepath.Join(root, "src", "core.cpp"))
	require.False(t, ok)

	artifact, err := codemodel.ArtifactPath(cm, "unit_tests")
	require.NoError(t, err)
	require.Equal(t, model.NormalizePath(filepath.Join(build, "tests", "unit_tests")), model.NormalizePath(artifact))
}

func TestFileAPI_CodeModelUnavailable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, BuildDescriptionFile), "project(demo)\n")

	p, err := NewFileAPI(zerolog.Nop()).Project(context.Background(), root)
	require.NoError(t, err)

	_, ok := p.BuildDirectory()
	require.False(t, ok)

	_, err = p.CodeModel(context.Background())
	require.ErrorIs(t, err, codemodel.ErrUnavailable)
}
