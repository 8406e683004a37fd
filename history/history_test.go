package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfgo/cmaketest/model"
	"github.com/perfgo/cmaketest/results"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRecordAndLoad(t *testing.T) {
	root := t.TempDir()
	logger := zerolog.Nop()
	r := NewDirRecorder(logger)

	older := &model.History{
		ID:          "aaaaaaaa-1111",
		Type:        model.HistoryTypeRun,
		Timestamp:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		ProjectRoot: root,
		Executable:  "unit_tests",
		Filter:      "*",
		Results:     map[string]model.TestStatus{"Math.Adds": model.StatusFailed},
	}
	newer := &model.History{
		ID:          "bbbbbbbb-2222",
		Type:        model.HistoryTypeRun,
		Timestamp:   time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		ProjectRoot: root,
		Executable:  "unit_tests",
		Tests:       []string{"Math.Adds"},
		Filter:      "Math.Adds",
		Results:     map[string]model.TestStatus{"Math.Adds": model.StatusPassed},
	}
	require.NoError(t, r.Record(older, "first output"))
	require.NoError(t, r.Record(newer, ""))

	require.DirExists(t, filepath.Join(root, ".cmaketest", "history", "20240501-100000-aaaaaaaa"))
	require.Equal(t, "output.txt", older.OutputFile)
	require.Empty(t, newer.OutputFile)

	entries, err := LoadEntries(logger, root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bbbbbbbb-2222", entries[0].History.ID)
	require.Equal(t, []string{"Math.Adds"}, entries[0].History.Tests)

	out, err := entries[1].Output()
	require.NoError(t, err)
	require.Equal(t, "first output", out)

	out, err = entries[0].Output()
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestLoadEntries_NoHistory(t *testing.T) {
	entries, err := LoadEntries(zerolog.Nop(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLoadEntries_SkipsBrokenRecords(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(Root(root), "broken")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json"), []byte("{not json"), 0644))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReplay(t *testing.T) {
	root := t.TempDir()
	logger := zerolog.Nop()
	r := NewDirRecorder(logger)

	require.NoError(t, r.Record(&model.History{
		ID:          "1",
		Type:        model.HistoryTypeRun,
		Timestamp:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		ProjectRoot: root,
		Executable:  "unit_tests",
		Results: map[string]model.TestStatus{
			"Math.Adds":    model.StatusFailed,
			"Math.Divides": model.StatusPassed,
		},
	}, "old"))
	require.NoError(t, r.Record(&model.History{
		ID:          "2",
		Type:        model.HistoryTypeRun,
		Timestamp:   time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		ProjectRoot: root,
		Executable:  "unit_tests",
		Results:     map[string]model.TestStatus{"Math.Adds": model.StatusPassed},
	}, "new"))
	require.NoError(t, r.Record(&model.History{
		ID:          "3",
		Type:        model.HistoryTypeDebug,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ProjectRoot: root,
		Executable:  "unit_tests",
	}, ""))

	entries, err := LoadEntries(logger, root)
	require.NoError(t, err)

	store := results.New()
	Replay(logger, store, entries)

	require.Equal(t, model.StatusPassed, store.Status("unit_tests", "Math.Adds"))
	require.Equal(t, "new", store.Output("unit_tests", "Math.Adds"))
	require.Equal(t, model.StatusPassed, store.Status("unit_tests", "Math.Divides"))
	require.Equal(t, "old", store.Output("unit_tests", "Math.Divides"))
}
