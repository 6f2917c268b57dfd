package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/dl-alexandre/gdbackup/internal/testing"
	"github.com/dl-alexandre/gdbackup/internal/testing/mocks"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
)

func planFor(t *testing.T, fs afero.Fs, remote *mocks.MockRemoteFiles, baseDir string) *Plan {
	t.Helper()
	items, err := remote.ListAll(context.Background(), testhelpers.TestRequestContext())
	require.NoError(t, err)
	plan, err := BuildPlan(items, PlanOptions{})
	require.NoError(t, err)
	require.NoError(t, Materialize(fs, plan.Dirs, baseDir))
	return plan
}

func TestFetchAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	remote.AddFile("r", "root.txt", "root")
	remote.AddFolder("f1", "Docs")
	remote.AddFile("x", "a.txt", "alpha", "f1")

	plan := planFor(t, fs, remote, "/stage")
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage", Concurrency: 2}

	report, err := c.FetchAll(context.Background(), testhelpers.TestRequestContext(), plan.Files)
	require.NoError(t, err)
	require.Equal(t, 2, report.Files)
	require.Equal(t, int64(len("root")+len("alpha")), report.Bytes)
	require.Empty(t, report.Failed)

	content, err := afero.ReadFile(fs, "/stage/Docs/a.txt")
	require.NoError(t, err)
	require.Equal(t, "alpha", string(content))
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	for i := 0; i < 20; i++ {
		remote.AddFile(fmt.Sprintf("id%d", i), fmt.Sprintf("f%d.txt", i), "x")
	}

	var active, peak atomic.Int32
	remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		_, err := w.Write([]byte("x"))
		return err
	}

	plan := planFor(t, fs, remote, "/stage")
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage", Concurrency: 3}

	report, err := c.FetchAll(context.Background(), testhelpers.TestRequestContext(), plan.Files)
	require.NoError(t, err)
	require.Equal(t, 20, report.Files)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFetchAll_AbortOnFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	remote.AddFile("good", "good.txt", "ok")
	remote.AddFile("bad", "bad.txt", "never")

	remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		if item.ID == "bad" {
			w.Write([]byte("partial"))
			return errors.New("connection reset")
		}
		_, err := w.Write([]byte("ok"))
		return err
	}

	plan := planFor(t, fs, remote, "/stage")
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage", Concurrency: 1, Policy: PolicyAbort}

	_, err := c.FetchAll(context.Background(), testhelpers.TestRequestContext(), plan.Files)
	require.True(t, utils.HasCode(err, utils.ErrCodeDownloadFailed), "got %v", err)

	exists, err := afero.Exists(fs, "/stage/bad.txt")
	require.NoError(t, err)
	require.False(t, exists, "partial file must be removed")
}

func TestFetchAll_BestEffort(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	remote.AddFile("good", "good.txt", "ok")
	remote.AddFile("bad", "bad.txt", "never")
	remote.AddFile("also-good", "other.txt", "fine")

	remote.DownloadFunc = func(ctx context.Context, item *types.RemoteItem, w io.Writer) error {
		if item.ID == "bad" {
			w.Write([]byte("partial"))
			return errors.New("connection reset")
		}
		_, err := w.Write([]byte(item.Name))
		return err
	}

	plan := planFor(t, fs, remote, "/stage")
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage", Concurrency: 2, Policy: PolicyBestEffort}

	report, err := c.FetchAll(context.Background(), testhelpers.TestRequestContext(), plan.Files)
	require.NoError(t, err)
	require.Equal(t, 2, report.Files)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "bad", report.Failed[0].ID)
	require.Equal(t, "bad.txt", report.Failed[0].Path)

	exists, err := afero.Exists(fs, "/stage/bad.txt")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFetchAll_Cancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	remote.AddFile("a", "a.txt", "a")

	plan := planFor(t, fs, remote, "/stage")
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage", Policy: PolicyBestEffort}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchAll(ctx, testhelpers.TestRequestContext(), plan.Files)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll_SkipsFolders(t *testing.T) {
	fs := afero.NewMemMapFs()
	remote := mocks.NewMockRemoteFiles()
	c := &Coordinator{Fs: fs, Remote: remote, BaseDir: "/stage"}

	folder := Placement{Item: testhelpers.TestFolder("f", "Docs"), Dir: "/", LocalName: "Docs"}
	report, err := c.FetchAll(context.Background(), testhelpers.TestRequestContext(), []Placement{folder})
	require.NoError(t, err)
	require.Zero(t, report.Files)
	require.Empty(t, remote.Downloads())
}
