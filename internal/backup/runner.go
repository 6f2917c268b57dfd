package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/api"
	"github.com/dl-alexandre/gdbackup/internal/archive"
	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/dl-alexandre/gdbackup/internal/history"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/mirror"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Authorizer performs the service-account handshake
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Ledger records cycles; *history.DB implements it
type Ledger interface {
	Begin(ctx context.Context, id string, startedAt time.Time) error
	Upsert(ctx context.Context, rec history.Record) error
}

// Options configures a Runner. Fs, Remote, Auth and Config are required.
type Options struct {
	Config  *config.Config
	Fs      afero.Fs
	Remote  mirror.RemoteFiles
	Auth    Authorizer
	History Ledger
	Clock   clockwork.Clock
	Logger  logging.Logger
	// LockPath is the advisory lock file guarding the staging directory.
	// It is always a path on the OS filesystem. Empty disables locking.
	LockPath string
}

// Runner executes backup cycles. At most one cycle runs at a time.
type Runner struct {
	cfg      *config.Config
	fs       afero.Fs
	remote   mirror.RemoteFiles
	auth     Authorizer
	history  Ledger
	clock    clockwork.Clock
	logger   logging.Logger
	lockPath string

	running atomic.Bool
	state   *State
}

// NewRunner creates a runner
func NewRunner(opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Runner{
		cfg:      opts.Config,
		fs:       opts.Fs,
		remote:   opts.Remote,
		auth:     opts.Auth,
		history:  opts.History,
		clock:    opts.Clock,
		logger:   opts.Logger,
		lockPath: opts.LockPath,
		state:    &State{},
	}
}

// DefaultLockPath returns the lock file used for a staging directory
func DefaultLockPath(cfg *config.Config) string {
	staging := filepath.Clean(cfg.StagingDir())
	return filepath.Join(filepath.Dir(staging), "."+filepath.Base(staging)+".lock")
}

// State returns the shared cycle state
func (r *Runner) State() *State {
	return r.state
}

// principal names the identity a cycle acts as in logs and error context
func (r *Runner) principal() string {
	if r.cfg.ImpersonateUser != "" {
		return r.cfg.ImpersonateUser
	}
	return "service-account"
}

// Authorize re-runs the handshake outside of a cycle
func (r *Runner) Authorize(ctx context.Context) error {
	return r.auth.Authorize(ctx)
}

// RunCycle mirrors the remote into the staging directory and archives it.
// A cycle started while another one runs returns CYCLE_IN_PROGRESS without
// touching the staging directory.
func (r *Runner) RunCycle(ctx context.Context) (*types.CycleResult, error) {
	reqCtx := api.NewRequestContext(r.principal(), types.RequestTypeListOrSearch)
	ctx = logging.ContextWithTraceID(ctx, reqCtx.TraceID)
	logger := r.logger.WithTraceID(reqCtx.TraceID)
	started := r.clock.Now()

	if !r.running.CompareAndSwap(false, true) {
		err := utils.NewAppError(utils.NewCLIError(utils.ErrCodeCycleInProgress,
			"a backup cycle is already running").Build())
		logger.Warn("Skipping backup cycle", logging.F("reason", "cycle in progress"))
		result := &types.CycleResult{
			ID:         reqCtx.TraceID,
			Status:     types.CycleStatusSkipped,
			StartedAt:  started,
			FinishedAt: started,
			Error:      err.Error(),
		}
		r.record(ctx, logger, result)
		return result, err
	}
	defer r.running.Store(false)

	r.state.begin(started)
	if r.history != nil {
		if err := r.history.Begin(ctx, reqCtx.TraceID, started); err != nil {
			logger.Warn("Failed to record cycle start", logging.F("error", err))
		}
	}
	logger.Info("Backup cycle started")

	result, err := r.runLocked(ctx, reqCtx, logger)
	result.ID = reqCtx.TraceID
	result.StartedAt = started
	result.FinishedAt = r.clock.Now()
	result.Duration = result.FinishedAt.Sub(started)
	if err != nil {
		result.Status = types.CycleStatusFailed
		result.Error = err.Error()
		logger.Error("Backup cycle failed",
			logging.F("code", utils.ErrorCode(err)),
			logging.F("error", err))
	} else {
		logger.Info("Backup cycle finished",
			logging.F("status", result.Status),
			logging.F("archive", result.ArchivePath),
			logging.F("files", result.Files),
			logging.F("size", humanize.Bytes(uint64(result.Bytes))),
			logging.F("duration", result.Duration.String()))
	}

	r.state.finish(result)
	r.record(ctx, logger, result)
	return result, err
}

func (r *Runner) runLocked(ctx context.Context, reqCtx *types.RequestContext, logger logging.Logger) (*types.CycleResult, error) {
	result := &types.CycleResult{}
	if r.lockPath == "" {
		return result, r.run(ctx, reqCtx, logger, result)
	}

	// flock works on real files, so the lock lives on the OS filesystem
	// even when the staging directory is on another afero.Fs
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0755); err != nil {
		return result, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeFilesystemFailure,
			"cannot create lock directory").WithContext("path", r.lockPath).Build(), err)
	}
	lock := flock.New(r.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return result, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeStagingLocked,
			"cannot lock staging directory").WithContext("path", r.lockPath).Build(), err)
	}
	if !locked {
		return result, utils.NewAppError(utils.NewCLIError(utils.ErrCodeStagingLocked,
			"staging directory is in use by another process").WithContext("path", r.lockPath).Build())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release staging lock", logging.F("error", err))
		}
	}()

	return result, r.run(ctx, reqCtx, logger, result)
}

func (r *Runner) run(ctx context.Context, reqCtx *types.RequestContext, logger logging.Logger, result *types.CycleResult) error {
	cfg := r.cfg
	staging := cfg.StagingDir()

	if err := r.auth.Authorize(ctx); err != nil {
		return err
	}

	items, err := r.remote.ListAll(ctx, reqCtx)
	if err != nil {
		if isCancellation(err) {
			return cancelledError(err)
		}
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeListingFailed,
			"cannot list remote files").WithContext("cause", utils.ErrorCode(err)).Build(), err)
	}

	bestEffort := cfg.DownloadPolicy == config.DownloadPolicyBestEffort
	plan, err := mirror.BuildPlan(items, mirror.PlanOptions{MaxDepth: cfg.MaxDepth, Lenient: bestEffort})
	if err != nil {
		return err
	}
	logger.Info("Remote tree resolved",
		logging.F("items", len(items)),
		logging.F("dirs", len(plan.Dirs)),
		logging.F("files", len(plan.Files)),
		logging.F("skipped", len(plan.Skipped)),
		logging.F("unresolved", len(plan.Unresolved)))

	if cfg.CleanDirectory {
		if err := mirror.ResetDirectory(r.fs, staging); err != nil {
			return err
		}
		defer func() {
			if err := mirror.RemoveDirectory(r.fs, staging); err != nil {
				logger.Warn("Failed to clean staging directory", logging.F("error", err))
			}
		}()
	}

	if err := mirror.Materialize(r.fs, plan.Dirs, staging); err != nil {
		return err
	}

	coordinator := &mirror.Coordinator{
		Fs:          r.fs,
		Remote:      r.remote,
		BaseDir:     staging,
		Concurrency: cfg.Concurrency,
		Policy:      mirror.Policy(cfg.DownloadPolicy),
		Logger:      logger,
	}
	report, err := coordinator.FetchAll(ctx, api.Derive(reqCtx, types.RequestTypeDownload), plan.Files)
	if err != nil {
		if isCancellation(err) {
			return cancelledError(err)
		}
		return err
	}

	tree, err := mirror.Scan(r.fs, filepath.Base(staging), staging, mirror.NewIgnoreMatcher(cfg.IgnoreList), cfg.MaxDepth)
	if err != nil {
		return err
	}

	// archives are named after the moment the mirror is complete
	archived, err := archive.NewBuilder(r.fs, logger).Write(ctx, tree, staging, cfg.ArchivePath(), r.clock.Now())
	if err != nil {
		return err
	}

	result.ArchivePath = archived.Path
	result.Files = archived.Files
	result.Bytes = report.Bytes
	result.FailedFiles = append(append(result.FailedFiles, plan.Unresolved...), report.Failed...)
	result.Status = types.CycleStatusSuccess
	if len(result.FailedFiles) > 0 {
		result.Status = types.CycleStatusPartial
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func cancelledError(err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "backup cycle cancelled").Build(), err)
}

func (r *Runner) record(ctx context.Context, logger logging.Logger, result *types.CycleResult) {
	if r.history == nil {
		return
	}
	// The cycle context may already be cancelled on shutdown
	if err := r.history.Upsert(context.WithoutCancel(ctx), history.RecordFromResult(result)); err != nil {
		logger.Warn("Failed to record cycle", logging.F("error", err))
	}
}
