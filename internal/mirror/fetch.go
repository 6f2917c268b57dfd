package mirror

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// RemoteFiles is the remote file service the mirror reads from
type RemoteFiles interface {
	ListAll(ctx context.Context, reqCtx *types.RequestContext) ([]*types.RemoteItem, error)
	Download(ctx context.Context, reqCtx *types.RequestContext, item *types.RemoteItem, w io.Writer) error
}

// Policy decides what one failed download does to the others
type Policy string

const (
	// PolicyAbort cancels outstanding downloads on the first failure
	PolicyAbort Policy = "abort"
	// PolicyBestEffort keeps going and reports failures
	PolicyBestEffort Policy = "best-effort"
)

// FetchReport summarizes a FetchAll call
type FetchReport struct {
	Files  int
	Bytes  int64
	Failed []types.FailedFile
}

// Coordinator downloads planned files into the staging directory
type Coordinator struct {
	Fs          afero.Fs
	Remote      RemoteFiles
	BaseDir     string
	Concurrency int
	Policy      Policy
	Logger      logging.Logger
}

// FetchAll downloads every placement and returns once each download has
// completed or failed. Under PolicyAbort the first failure cancels the rest
// and is returned as DOWNLOAD_FAILED; under PolicyBestEffort failures are
// listed in the report and partial files are removed.
func (c *Coordinator) FetchAll(ctx context.Context, reqCtx *types.RequestContext, placements []Placement) (FetchReport, error) {
	logger := c.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithTraceID(reqCtx.TraceID)

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = utils.DefaultConcurrency
	}

	var (
		files  atomic.Int64
		bytes  atomic.Int64
		mu     sync.Mutex
		report FetchReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range placements {
		if p.Item.IsFolder() {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			n, err := c.fetchOne(gctx, reqCtx, p)
			if err == nil {
				files.Add(1)
				bytes.Add(n)
				logger.Debug("Downloaded file",
					logging.F("path", p.RelPath()),
					logging.F("size", humanize.Bytes(uint64(n))))
				return nil
			}

			if c.Policy == PolicyBestEffort && ctx.Err() == nil {
				logger.Warn("Download failed, continuing",
					logging.F("path", p.RelPath()),
					logging.F("fileId", p.Item.ID),
					logging.F("error", err))
				mu.Lock()
				report.Failed = append(report.Failed, types.FailedFile{ID: p.Item.ID, Path: p.RelPath(), Error: err.Error()})
				mu.Unlock()
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	report.Files = int(files.Load())
	report.Bytes = bytes.Load()

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if err != nil {
		if utils.HasCode(err, utils.ErrCodeFilesystemFailure) {
			return report, err
		}
		return report, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDownloadFailed, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}

	logger.Info("Downloads finished",
		logging.F("files", report.Files),
		logging.F("bytes", humanize.Bytes(uint64(report.Bytes))),
		logging.F("failed", len(report.Failed)))
	return report, nil
}

// fetchOne streams one file to disk, removing it again on failure
func (c *Coordinator) fetchOne(ctx context.Context, reqCtx *types.RequestContext, p Placement) (int64, error) {
	target := filepath.Join(c.BaseDir, filepath.FromSlash(p.RelPath()))

	f, err := c.Fs.Create(target)
	if err != nil {
		return 0, filesystemError(fmt.Sprintf("cannot create %s", target), target, err)
	}

	cw := &countingWriter{w: f}
	err = c.Remote.Download(ctx, reqCtx, p.Item, cw)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = filesystemError(fmt.Sprintf("cannot write %s", target), target, closeErr)
	}
	if err != nil {
		_ = c.Fs.Remove(target)
		return 0, fmt.Errorf("%s: %w", p.RelPath(), err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
