package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/dl-alexandre/gdbackup/internal/history"
	testhelpers "github.com/dl-alexandre/gdbackup/internal/testing"
	"github.com/dl-alexandre/gdbackup/internal/testing/mocks"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
)

type fixture struct {
	runner  *Runner
	fs      afero.Fs
	clock   clockwork.FakeClock
	remote  *mocks.MockRemoteFiles
	auth    *mocks.MockAuthorizer
	history *history.DB
	cfg     *config.Config
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.RootDir = "/work"
	cfg.Concurrency = 2

	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		fs:      afero.NewMemMapFs(),
		clock:   clockwork.NewFakeClockAt(time.Date(2024, time.March, 5, 7, 4, 0, 0, time.UTC)),
		remote:  mocks.NewMockRemoteFiles(),
		auth:    &mocks.MockAuthorizer{},
		history: db,
		cfg:     cfg,
	}
	opts := Options{
		Config:  cfg,
		Fs:      f.fs,
		Remote:  f.remote,
		Auth:    f.auth,
		History: db,
		Clock:   f.clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.runner = NewRunner(opts)
	return f
}

func (f *fixture) archives(t *testing.T) []string {
	t.Helper()
	matches, err := afero.Glob(f.fs, "/work/backup-*.zip")
	require.NoError(t, err)
	sort.Strings(matches)
	return matches
}

func (f *fixture) readArchive(t *testing.T, name string) map[string]string {
	t.Helper()
	return testhelpers.ReadZip(t, f.fs, name)
}

func (f *fixture) stagingExists(t *testing.T) bool {
	t.Helper()
	exists, err := afero.Exists(f.fs, f.cfg.StagingDir())
	require.NoError(t, err)
	return exists
}

func TestRunCycle_RootLevelFile(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("r", "root.txt", "hello")

	result, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.CycleStatusSuccess, result.Status)
	require.Equal(t, "/work/backup-5-3-2024-0704.zip", filepath.ToSlash(result.ArchivePath))
	require.Equal(t, 1, result.Files)
	require.Equal(t, int64(5), result.Bytes)

	require.Equal(t, map[string]string{"root.txt": "hello"}, f.readArchive(t, result.ArchivePath))
	require.False(t, f.stagingExists(t), "staging directory is removed after archiving")

	snap := f.runner.State().Snapshot()
	require.False(t, snap.Running)
	require.Equal(t, f.clock.Now(), snap.LastBackup)
	require.Equal(t, f.clock.Now(), snap.LastAttempt)
	require.Empty(t, snap.LastError)

	rec, err := f.history.Get(context.Background(), result.ID)
	require.NoError(t, err)
	require.Equal(t, types.CycleStatusSuccess, rec.Status)
	require.Equal(t, result.ArchivePath, rec.ArchivePath)
	require.Equal(t, 1, f.auth.Calls())
}

func TestRunCycle_NestedFolder(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFolder("f1", "Docs")
	f.remote.AddFile("x", "a.txt", "alpha", "f1")
	f.remote.AddFolder("f2", "Empty", "f1")

	result, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	entries := f.readArchive(t, result.ArchivePath)
	require.Equal(t, map[string]string{
		"Docs/":       "",
		"Docs/Empty/": "",
		"Docs/a.txt":  "alpha",
	}, entries)
}

func TestRunCycle_ArchiveNamedAtCompletion(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("r", "root.txt", "hello")
	f.remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		f.clock.Advance(10 * time.Minute)
		_, err := w.Write([]byte("hello"))
		return err
	}

	result, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/work/backup-5-3-2024-0714.zip", filepath.ToSlash(result.ArchivePath))
	require.Equal(t, time.Date(2024, time.March, 5, 7, 4, 0, 0, time.UTC), result.StartedAt)
	require.Equal(t, 10*time.Minute, result.Duration)
}

func TestRunCycle_ListingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("r", "root.txt", "hello")
	f.remote.ListAllFunc = func(ctx context.Context) ([]*types.RemoteItem, error) {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError, "connection refused").Build())
	}
	require.NoError(t, afero.WriteFile(f.fs, "/work/backup/previous.txt", []byte("old"), 0644))

	result, err := f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeListingFailed), "got %v", err)
	require.True(t, utils.HasCode(err, utils.ErrCodeNetworkError), "cause is kept")
	require.Equal(t, utils.ErrCodeListingFailed, utils.ErrorCode(err))
	require.Equal(t, types.CycleStatusFailed, result.Status)

	require.Empty(t, f.remote.Downloads())
	require.Empty(t, f.archives(t))
	content, err := afero.ReadFile(f.fs, "/work/backup/previous.txt")
	require.NoError(t, err, "staging directory is left untouched")
	require.Equal(t, "old", string(content))

	rec, err := f.history.Get(context.Background(), result.ID)
	require.NoError(t, err)
	require.Contains(t, rec.Error, "LISTING_FAILED")
}

func TestRunCycle_MultiParentAbort(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFolder("f1", "A")
	f.remote.AddFolder("f2", "B")
	f.remote.AddFile("x", "multi.txt", "m", "f1", "f2")
	f.remote.AddFile("ok", "ok.txt", "ok")

	result, err := f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeUnsupportedHierarchy), "got %v", err)
	require.Equal(t, types.CycleStatusFailed, result.Status)

	require.Empty(t, f.remote.Downloads(), "nothing is fetched")
	require.False(t, f.stagingExists(t), "nothing is written")
	require.Empty(t, f.archives(t))

	snap := f.runner.State().Snapshot()
	require.NotEmpty(t, snap.LastError)
	require.True(t, snap.LastBackup.IsZero())

	rec, err := f.history.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.CycleStatusFailed, rec.Status)
	require.Contains(t, rec.Error, "2 parents")
}

func TestRunCycle_MultiParentBestEffort(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.DownloadPolicy = config.DownloadPolicyBestEffort
	f.remote.AddFolder("f1", "A")
	f.remote.AddFolder("f2", "B")
	f.remote.AddFile("x", "multi.txt", "m", "f1", "f2")
	f.remote.AddFile("ok", "ok.txt", "ok")

	result, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.CycleStatusPartial, result.Status)
	require.Len(t, result.FailedFiles, 1)
	require.Equal(t, "x", result.FailedFiles[0].ID)

	entries := f.readArchive(t, result.ArchivePath)
	require.Equal(t, "ok", entries["ok.txt"])
	require.NotContains(t, entries, "multi.txt")
}

func TestRunCycle_DownloadFailureAborts(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("a", "a.txt", "a")
	f.remote.AddItem(&types.RemoteItem{ID: "b", Name: "b.txt", MimeType: "text/plain"}, "")
	f.remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		if item.ID == "b" {
			return errors.New("connection reset")
		}
		_, err := w.Write([]byte("a"))
		return err
	}

	result, err := f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeDownloadFailed), "got %v", err)
	require.Equal(t, types.CycleStatusFailed, result.Status)
	require.Empty(t, f.archives(t))
	require.False(t, f.stagingExists(t), "staging directory is removed after a failed cycle")
}

func TestRunCycle_AuthFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.SetErr(utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthenticationFailed, "bad key").Build()))

	_, err := f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeAuthenticationFailed))
	require.Zero(t, f.remote.ListCalls())
	require.Contains(t, f.runner.State().Snapshot().LastError, "bad key")
}

func TestRunCycle_KeepsStagingWithoutCleanup(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.CleanDirectory = false
	f.remote.AddFile("r", "root.txt", "hello")

	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	content, err := afero.ReadFile(f.fs, "/work/backup/root.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestRunCycle_SingleFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("slow", "slow.txt", "s")

	release := make(chan struct{})
	f.remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		<-release
		_, err := w.Write([]byte("s"))
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.RunCycle(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return len(f.remote.Downloads()) == 1
	}, 5*time.Second, 5*time.Millisecond)

	result, err := f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeCycleInProgress), "got %v", err)
	require.Equal(t, types.CycleStatusSkipped, result.Status)
	require.True(t, f.runner.State().Snapshot().Running)

	close(release)
	require.NoError(t, <-done)
	require.Len(t, f.archives(t), 1)

	records, err := f.history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestRunCycle_StagingLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), ".backup.lock")
	f := newFixture(t, func(o *Options) { o.LockPath = lockPath })
	f.remote.AddFile("r", "root.txt", "hello")

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.runner.RunCycle(context.Background())
	require.True(t, utils.HasCode(err, utils.ErrCodeStagingLocked), "got %v", err)
	require.Zero(t, f.auth.Calls())

	require.NoError(t, other.Unlock())

	_, err = f.runner.RunCycle(context.Background())
	require.NoError(t, err)
}

func TestRunCycle_CreatesLockDirectoryOnDisk(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "locks", ".backup.lock")
	f := newFixture(t, func(o *Options) { o.LockPath = lockPath })
	f.remote.AddFile("r", "root.txt", "hello")

	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(lockPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	onFs, err := afero.DirExists(f.fs, filepath.Dir(lockPath))
	require.NoError(t, err)
	require.False(t, onFs, "the lock never touches the staging filesystem")
}

func TestRunCycle_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.AddFile("r", "root.txt", "hello")
	ctx, cancel := context.WithCancel(context.Background())
	f.remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	result, err := f.runner.RunCycle(ctx)
	require.True(t, utils.HasCode(err, utils.ErrCodeCancelled), "got %v", err)
	require.Equal(t, types.CycleStatusFailed, result.Status)
	require.Empty(t, f.archives(t))

	// The record is written even though the cycle context is gone
	rec, err := f.history.Get(context.Background(), result.ID)
	require.NoError(t, err)
	require.Equal(t, types.CycleStatusFailed, rec.Status)
}

func TestDefaultLockPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RootDir = "/srv"
	require.Equal(t, filepath.Join("/srv", ".backup.lock"), DefaultLockPath(cfg))

	cfg.BaseDir = "data/mirror"
	require.Equal(t, filepath.Join("/srv", "data", ".mirror.lock"), DefaultLockPath(cfg))
}
