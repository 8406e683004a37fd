package debug

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-dap"
	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const root = "/src/demo"

const launchJSON = `{
	// editor managed
	"version": "0.2.0",
	"configurations": [
		{
			"name": "other",
			"type": "cppdbg",
			"program": "${workspaceFolder}/build/other_tests",
			"miDebuggerPath": "/opt/other/gdb",
		},
		/* the one we want */
		{
			"name": "math",
			"type": "cppdbg",
			"request": "launch",
			"program": "${workspaceFolder}/build/math_tests",
			"args": ["--from-launch-file"],
			"cwd": "/somewhere/else",
			"miDebuggerPath": "/opt/gdb // not a comment",
			"envFile": "${workspaceFolder}/.env",
		},
	],
}`

type fakeBuilder struct {
	err error
}

func (f *fakeBuilder) EnsureBuilt(ctx context.Context, project cmake.Project, targets []string) error {
	return f.err
}

type fakeLauncher struct {
	configs []model.DebugLaunchConfig
	err     error
}

func (f *fakeLauncher) Launch(ctx context.Context, cfg model.DebugLaunchConfig) error {
	f.configs = append(f.configs, cfg)
	return f.err
}

func newProject(buildDir string) *cmake.StaticProject {
	return &cmake.StaticProject{
		RootDir:  root,
		BuildDir: buildDir,
		Model: &codemodel.CodeModel{
			Version: codemodel.SchemaVersion,
			Configurations: []codemodel.Configuration{{
				Projects: []codemodel.Project{{
					SourceDirectory: root,
					Targets: []codemodel.Target{
						{
							Name:      "math_tests",
							Type:      codemodel.TargetTypeExecutable,
							Artifacts: []string{"/src/demo/build/math_tests"},
						},
						{
							Name: "unbuilt_tests",
							Type: codemodel.TargetTypeExecutable,
						},
					},
				}},
			}},
		},
	}
}

func writeLaunchFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "launch.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFirstOf(t *testing.T) {
	calls := 0
	lazy := func() (string, bool) {
		calls++
		return "lazy", true
	}

	v, ok := FirstOf(Value(""), Value("set"), lazy)
	require.True(t, ok)
	require.Equal(t, "set", v)
	require.Zero(t, calls)

	v, ok = FirstOf(Value(""), lazy)
	require.True(t, ok)
	require.Equal(t, "lazy", v)

	_, ok = FirstOf(Value(""), func() (string, bool) { return "", true })
	require.False(t, ok)
}

func TestParseLaunchFile(t *testing.T) {
	entries, err := ParseLaunchFile([]byte(launchJSON))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "math", entries[1].Name)
	require.Equal(t, "/opt/gdb // not a comment", entries[1].MIDebuggerPath)
	require.Equal(t, "${workspaceFolder}/.env", entries[1].EnvFile)

	_, err = ParseLaunchFile([]byte(`[1, 2]`))
	require.Error(t, err)
}

func TestParseLaunchFile_CommentsAndTrailingCommas(t *testing.T) {
	doc := `{
	/* "configurations": [] */
	"configurations": [
		{
			// "name": "commented out",
			"name": "a /* kept */ name",
			"program": "build/math_tests", // trailing
			"envFile": "C:\\env\\\"quoted\".env",
		},
	],
}`
	entries, err := ParseLaunchFile([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, []LaunchEntry{{
		Name:    "a /* kept */ name",
		Program: "build/math_tests",
		EnvFile: `C:\env\"quoted".env`,
	}}, entries)
}

func TestReadLaunchFile_Missing(t *testing.T) {
	entries, err := ReadLaunchFile(filepath.Join(t.TempDir(), "launch.json"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMatchLaunch(t *testing.T) {
	entries := []LaunchEntry{
		{Name: "by-base", Program: "/elsewhere/out/math_tests"},
		{Name: "by-path", Program: "${workspaceRoot}/build/../build/math_tests"},
		{Name: "relative", Program: "build/queue_tests"},
	}

	e, ok := MatchLaunch(entries, root, "/src/demo/build/math_tests")
	require.True(t, ok)
	require.Equal(t, "by-path", e.Name)

	e, ok = MatchLaunch(entries, root, "/other/tree/math_tests")
	require.True(t, ok)
	require.Equal(t, "by-base", e.Name)

	e, ok = MatchLaunch(entries, root, "/src/demo/build/queue_tests")
	require.True(t, ok)
	require.Equal(t, "relative", e.Name)

	_, ok = MatchLaunch(entries, root, "/src/demo/build/nothing")
	require.False(t, ok)
}

func TestCompose(t *testing.T) {
	launchFile := writeLaunchFile(t, launchJSON)
	c := NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("")), &fakeBuilder{}, &fakeLauncher{},
		WithSettings(Settings{
			Env:        map[string]string{"B": "2", "A": "1"},
			LaunchFile: launchFile,
		}))

	cfg, err := c.Compose(context.Background(), root, "math_tests", []string{"Math.Adds", "Math.Divides"})
	require.NoError(t, err)

	require.Equal(t, model.LaunchType, cfg.Type)
	require.Equal(t, "launch", cfg.Request)
	require.Equal(t, "/src/demo/build/math_tests", cfg.Program)
	require.Equal(t, []string{"--gtest_filter=Math.Adds:Math.Divides"}, cfg.Args)
	require.Equal(t, "/src/demo/build", cfg.Cwd)
	require.Equal(t, []model.EnvVar{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}, cfg.Environment)

	// borrowed from the matching launch configuration, nothing else is
	require.Equal(t, "/opt/gdb // not a comment", cfg.MIDebuggerPath)
	require.Equal(t, "${workspaceFolder}/.env", cfg.EnvFile)
}

func TestCompose_Precedence(t *testing.T) {
	launchFile := writeLaunchFile(t, launchJSON)

	tests := []struct {
		name         string
		settings     Settings
		wantDebugger string
		wantEnvFile  string
	}{
		{
			name:         "settings win",
			settings:     Settings{DebuggerPath: "/usr/bin/gdb", EnvFile: "/etc/test.env", LaunchFile: launchFile},
			wantDebugger: "/usr/bin/gdb",
			wantEnvFile:  "/etc/test.env",
		},
		{
			name:         "per field",
			settings:     Settings{DebuggerPath: "/usr/bin/gdb", LaunchFile: launchFile},
			wantDebugger: "/usr/bin/gdb",
			wantEnvFile:  "${workspaceFolder}/.env",
		},
		{
			name:         "launch file",
			settings:     Settings{LaunchFile: launchFile},
			wantDebugger: "/opt/gdb // not a comment",
			wantEnvFile:  "${workspaceFolder}/.env",
		},
		{
			name:     "unset",
			settings: Settings{LaunchFile: filepath.Join(t.TempDir(), "missing.json")},
		},
		{
			name:     "broken launch file",
			settings: Settings{LaunchFile: writeLaunchFile(t, "not json")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("")), &fakeBuilder{}, &fakeLauncher{},
				WithSettings(tt.settings))

			cfg, err := c.Compose(context.Background(), root, "math_tests", []string{"Math.Adds"})
			require.NoError(t, err)
			require.Equal(t, tt.wantDebugger, cfg.MIDebuggerPath)
			require.Equal(t, tt.wantEnvFile, cfg.EnvFile)
			require.Equal(t, "/src/demo/build/math_tests", cfg.Program)
			require.Equal(t, []string{"--gtest_filter=Math.Adds"}, cfg.Args)
		})
	}
}

func TestCompose_BuildDirAndExtraFlags(t *testing.T) {
	c := NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("/src/demo/out")), &fakeBuilder{}, &fakeLauncher{},
		WithSettings(Settings{ExtraFlags: []string{"--gtest_break_on_failure"}}))

	cfg, err := c.Compose(context.Background(), root, "math_tests", nil)
	require.NoError(t, err)
	require.Equal(t, "/src/demo/out", cfg.Cwd)
	require.Equal(t, []string{"--gtest_filter=*", "--gtest_break_on_failure"}, cfg.Args)
	require.Empty(t, cfg.Environment)
}

func TestCompose_Errors(t *testing.T) {
	ctx := context.Background()

	c := NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("")), &fakeBuilder{}, &fakeLauncher{})
	_, err := c.Compose(ctx, "/elsewhere", "math_tests", nil)
	require.ErrorIs(t, err, cmake.ErrNoProject)

	_, err = c.Compose(ctx, root, "unbuilt_tests", nil)
	require.ErrorIs(t, err, codemodel.ErrNoArtifact)

	c = NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("")), &fakeBuilder{err: errors.New("link error")}, &fakeLauncher{})
	_, err = c.Compose(ctx, root, "math_tests", nil)
	require.ErrorContains(t, err, "link error")
}

type fakeRecorder struct {
	runs []model.History
}

func (f *fakeRecorder) Record(h *model.History, output string) error {
	f.runs = append(f.runs, *h)
	return nil
}

func TestDebug(t *testing.T) {
	launcher := &fakeLauncher{}
	recorder := &fakeRecorder{}
	c := NewComposer(zerolog.Nop(), cmake.NewStatic(newProject("")), &fakeBuilder{}, launcher, WithRecorder(recorder))

	require.NoError(t, c.Debug(context.Background(), root, "math_tests", []string{"Math.Adds"}))
	require.Len(t, launcher.configs, 1)
	require.Equal(t, "/src/demo/build/math_tests", launcher.configs[0].Program)
	require.Len(t, recorder.runs, 1)
	require.Equal(t, model.HistoryTypeDebug, recorder.runs[0].Type)
	require.Equal(t, "Math.Adds", recorder.runs[0].Filter)

	launcher.err = errors.New("adapter gone")
	require.ErrorContains(t, c.Debug(context.Background(), root, "math_tests", nil), "adapter gone")
	require.Len(t, recorder.runs, 1)
}

func TestPrintLauncher(t *testing.T) {
	var out bytes.Buffer
	cfg := model.DebugLaunchConfig{
		Type:        model.LaunchType,
		Name:        "Debug math_tests",
		Request:     "launch",
		Program:     "/src/demo/build/math_tests",
		Args:        []string{"--gtest_filter=*"},
		Cwd:         "/src/demo/build",
		Environment: []model.EnvVar{},
	}
	require.NoError(t, PrintLauncher{Out: &out}.Launch(context.Background(), cfg))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "/src/demo/build/math_tests", decoded["program"])
	require.NotContains(t, decoded, "miDebuggerPath")
}

// serveAdapter plays a debug adapter for one session and returns the
// launch arguments it received.
func serveAdapter(t *testing.T, ln net.Listener, failLaunch bool) <-chan json.RawMessage {
	got := make(chan json.RawMessage, 1)
	go func() {
		defer close(got)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		seq := 0
		response := func(req dap.Request) dap.Response {
			seq++
			return dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "response"},
				RequestSeq:      req.Seq,
				Command:         req.Command,
				Success:         true,
			}
		}

		for {
			msg, err := dap.ReadProtocolMessage(r)
			if err != nil {
				return
			}
			switch m := msg.(type) {
			case *dap.InitializeRequest:
				_ = dap.WriteProtocolMessage(conn, &dap.InitializeResponse{Response: response(m.Request)})
			case *dap.LaunchRequest:
				got <- json.RawMessage(m.Arguments)
				if failLaunch {
					resp := response(m.Request)
					resp.Success = false
					resp.Message = "no such program"
					_ = dap.WriteProtocolMessage(conn, &dap.ErrorResponse{Response: resp})
					return
				}
				seq++
				_ = dap.WriteProtocolMessage(conn, &dap.InitializedEvent{
					Event: dap.Event{
						ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"},
						Event:           "initialized",
					},
				})
			case *dap.ConfigurationDoneRequest:
				_ = dap.WriteProtocolMessage(conn, &dap.ConfigurationDoneResponse{Response: response(m.Request)})
				_ = dap.WriteProtocolMessage(conn, &dap.LaunchResponse{Response: response(dap.Request{Command: "launch"})})
				return
			}
		}
	}()
	return got
}

func TestDAPLauncher(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	got := serveAdapter(t, ln, false)

	cfg := model.DebugLaunchConfig{
		Type:    model.LaunchType,
		Name:    "Debug math_tests",
		Request: "launch",
		Program: "/src/demo/build/math_tests",
		Args:    []string{"--gtest_filter=Math.Adds"},
		Cwd:     "/src/demo/build",
	}
	l := NewDAPLauncher(zerolog.Nop(), ln.Addr().String())
	require.NoError(t, l.Launch(context.Background(), cfg))

	var received model.DebugLaunchConfig
	require.NoError(t, json.Unmarshal(<-got, &received))
	require.Equal(t, cfg.Program, received.Program)
	require.Equal(t, cfg.Args, received.Args)
}

func TestDAPLauncher_LaunchRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serveAdapter(t, ln, true)

	l := NewDAPLauncher(zerolog.Nop(), ln.Addr().String())
	err = l.Launch(context.Background(), model.DebugLaunchConfig{Program: "/missing"})
	require.ErrorContains(t, err, "no such program")
}

func TestDAPLauncher_NoAdapter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	l := NewDAPLauncher(zerolog.Nop(), addr)
	require.Error(t, l.Launch(context.Background(), model.DebugLaunchConfig{}))
}
