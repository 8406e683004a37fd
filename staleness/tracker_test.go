package staleness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/perfgo/cmaketest/cmake"
	"github.com/perfgo/cmaketest/codemodel"
	"github.com/perfgo/cmaketest/kvstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const root = "/src/demo"

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeFS map[string]time.Time

func (f fakeFS) stat(path string) (time.Time, error) {
	if t, ok := f[path]; ok {
		return t, nil
	}
	return time.Time{}, os.ErrNotExist
}

func newProject() *cmake.StaticProject {
	return &cmake.StaticProject{
		RootDir: root,
		Model: &codemodel.CodeModel{
			Version: codemodel.SchemaVersion,
			Configurations: []codemodel.Configuration{{
				Projects: []codemodel.Project{{
					SourceDirectory: root,
					Targets: []codemodel.Target{
						{
							Name:       "math_tests",
							Type:       codemodel.TargetTypeExecutable,
							FileGroups: []codemodel.FileGroup{{Sources: []string{"math_test.cpp"}}},
						},
						{
							Name:       "queue_tests",
							Type:       codemodel.TargetTypeExecutable,
							FileGroups: []codemodel.FileGroup{{Sources: []string{"queue_test.cpp"}}},
						},
					},
				}},
			}},
		},
	}
}

func setup() (*Tracker, *cmake.StaticProject, fakeFS, *kvstore.Memory) {
	fs := fakeFS{
		filepath.Join(root, cmake.BuildDescriptionFile): base,
		root + "/math_test.cpp":                         base,
		root + "/queue_test.cpp":                        base,
	}
	store := kvstore.NewMemory()
	return New(zerolog.Nop(), store, WithStat(fs.stat)), newProject(), fs, store
}

func TestEnsureBuilt_FirstRun(t *testing.T) {
	tr, p, _, _ := setup()

	require.NoError(t, tr.EnsureBuilt(context.Background(), p, []string{"math_tests"}))
	require.Equal(t, 1, p.Configures())
	require.Equal(t, [][]string{{"math_tests"}}, p.Builds())

	rec, err := tr.Record(root)
	require.NoError(t, err)
	require.True(t, base.Equal(rec.LastCmakeMtime))
	require.Len(t, rec.LastSourceMtimes, 1)
	require.False(t, rec.BuildPending)
}

func TestEnsureBuilt_UpToDate(t *testing.T) {
	tr, p, _, _ := setup()
	ctx := context.Background()

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))

	require.Equal(t, 1, p.Configures())
	require.Len(t, p.Builds(), 1)
}

func TestEnsureBuilt_CMakeListsChanged(t *testing.T) {
	tr, p, fs, _ := setup()
	ctx := context.Background()

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	fs[filepath.Join(root, cmake.BuildDescriptionFile)] = base.Add(time.Minute)

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Equal(t, 2, p.Configures())
	// a configure forces a build even with unchanged sources
	require.Len(t, p.Builds(), 2)
}

func TestEnsureBuilt_SourceChanged(t *testing.T) {
	tr, p, fs, _ := setup()
	ctx := context.Background()

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"queue_tests"}))
	require.Len(t, p.Builds(), 2)

	// a change in another target's source does not rebuild math_tests
	fs[root+"/queue_test.cpp"] = base.Add(time.Second)
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Len(t, p.Builds(), 2)

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"queue_tests"}))
	require.Equal(t, [][]string{{"math_tests"}, {"queue_tests"}, {"queue_tests"}}, p.Builds())
	require.Equal(t, 1, p.Configures())
}

func TestEnsureBuilt_NoBuildDescription(t *testing.T) {
	tr, p, fs, _ := setup()
	delete(fs, filepath.Join(root, cmake.BuildDescriptionFile))

	require.NoError(t, tr.EnsureBuilt(context.Background(), p, []string{"math_tests"}))
	require.Equal(t, 0, p.Configures())
	require.Len(t, p.Builds(), 1)
}

func TestEnsureBuilt_ConfigureFailureIsRetried(t *testing.T) {
	tr, p, _, _ := setup()
	ctx := context.Background()

	p.OnConfig = func(context.Context) error { return errors.New("cmake exploded") }
	require.Error(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Empty(t, p.Builds())

	rec, err := tr.Record(root)
	require.NoError(t, err)
	require.True(t, rec.LastCmakeMtime.IsZero())

	p.OnConfig = nil
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Equal(t, 2, p.Configures())
	require.Len(t, p.Builds(), 1)
}

func TestEnsureBuilt_BuildFailureIsRetried(t *testing.T) {
	tr, p, _, _ := setup()
	ctx := context.Background()

	p.OnBuild = func(context.Context, []string) error { return errors.New("compile error") }
	require.Error(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))

	rec, err := tr.Record(root)
	require.NoError(t, err)
	require.True(t, base.Equal(rec.LastCmakeMtime))
	require.Empty(t, rec.LastSourceMtimes)
	require.True(t, rec.BuildPending)

	p.OnBuild = nil
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Equal(t, 1, p.Configures())
	require.Len(t, p.Builds(), 2)
}

func TestEnsureBuilt_MissingSourceAlwaysBuilds(t *testing.T) {
	tr, p, fs, _ := setup()
	ctx := context.Background()
	delete(fs, root+"/math_test.cpp")

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Len(t, p.Builds(), 2)
}

func TestEnsureBuilt_RootsDoNotCollide(t *testing.T) {
	tr, p, fs, _ := setup()
	ctx := context.Background()

	other := newProject()
	other.RootDir = "/src/other"
	fs["/src/other/"+cmake.BuildDescriptionFile] = base

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.NoError(t, tr.EnsureBuilt(ctx, other, []string{"math_tests"}))

	require.Equal(t, 1, p.Configures())
	require.Equal(t, 1, other.Configures())
}

func TestEnsureBuilt_CodeModelUnavailable(t *testing.T) {
	tr, p, _, _ := setup()
	p.Model = nil

	err := tr.EnsureBuilt(context.Background(), p, []string{"math_tests"})
	require.ErrorIs(t, err, codemodel.ErrUnavailable)
	require.Empty(t, p.Builds())
}

func TestEnsureBuilt_BuildTreeRemoved(t *testing.T) {
	tr, p, _, _ := setup()
	ctx := context.Background()

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))

	// the build directory is gone; only a configure brings the model back
	generated := p.Model
	p.Model = nil
	p.OnConfig = func(context.Context) error {
		p.Model = generated
		return nil
	}

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Equal(t, 2, p.Configures())
	// sources did not change, but the fresh tree has nothing built
	require.Len(t, p.Builds(), 2)

	rec, err := tr.Record(root)
	require.NoError(t, err)
	require.False(t, rec.BuildPending)
	require.True(t, base.Equal(rec.LastCmakeMtime))

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	require.Equal(t, 2, p.Configures())
	require.Len(t, p.Builds(), 2)
}

func TestEnsureBuilt_ConfigureDoesNotBringModelBack(t *testing.T) {
	tr, p, _, _ := setup()
	ctx := context.Background()

	require.NoError(t, tr.EnsureBuilt(ctx, p, []string{"math_tests"}))
	p.Model = nil

	err := tr.EnsureBuilt(ctx, p, []string{"math_tests"})
	require.ErrorIs(t, err, codemodel.ErrUnavailable)
	// one retry only
	require.Equal(t, 2, p.Configures())
	require.Len(t, p.Builds(), 1)
}

func TestEnsureBuilt_SameRootIsSerialized(t *testing.T) {
	tr, p, fs, _ := setup()
	ctx := context.Background()

	other := newProject()
	other.RootDir = "/src/other"
	fs["/src/other/"+cmake.BuildDescriptionFile] = base

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	p.OnBuild = func(context.Context, []string) error {
		started <- struct{}{}
		<-release
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = tr.EnsureBuilt(ctx, p, []string{"math_tests"})
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = tr.EnsureBuilt(ctx, p, []string{"math_tests"})
	}()

	// another root is not held up by the blocked build
	require.NoError(t, tr.EnsureBuilt(ctx, other, []string{"math_tests"}))
	require.Equal(t, 1, other.Configures())
	require.Len(t, other.Builds(), 1)

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, p.Configures())
	require.Len(t, p.Builds(), 1)
}
