package cli

import (
	"context"

	"github.com/dl-alexandre/gdbackup/internal/api"
	"github.com/dl-alexandre/gdbackup/internal/auth"
	"github.com/dl-alexandre/gdbackup/internal/backup"
	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/dl-alexandre/gdbackup/internal/files"
	"github.com/dl-alexandre/gdbackup/internal/history"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/spf13/afero"
)

// serviceRuntime holds the components a backup cycle needs
type serviceRuntime struct {
	cfg     *config.Config
	auth    *auth.Manager
	history *history.DB
	runner  *backup.Runner
}

func newServiceRuntime(ctx context.Context, cfg *config.Config, logger logging.Logger) (*serviceRuntime, error) {
	if cfg.ServiceAccountKeyFile == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"no service account key configured").
			WithContext("suggestedAction", "set serviceAccountKeyFile, GDBACKUP_SERVICE_ACCOUNT_KEY_FILE or --key-file").
			Build())
	}

	authMgr, err := auth.NewManager(ctx, auth.Options{
		KeyFile:         cfg.ServiceAccountKeyFile,
		Scopes:          cfg.Scopes,
		ImpersonateUser: cfg.ImpersonateUser,
		ResponseTimeout: cfg.GetRequestTimeout(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Service account loaded",
		logging.F("email", authMgr.ServiceAccountEmail()),
		logging.F("impersonate", authMgr.ImpersonatedUser()))

	svc, err := authMgr.DriveService(ctx)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(svc, cfg.MaxRetries, cfg.RetryBaseDelay, logger)

	db, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}

	runner := backup.NewRunner(backup.Options{
		Config:   cfg,
		Fs:       afero.NewOsFs(),
		Remote:   files.NewManager(client, logger),
		Auth:     authMgr,
		History:  db,
		Logger:   logger,
		LockPath: backup.DefaultLockPath(cfg),
	})

	return &serviceRuntime{cfg: cfg, auth: authMgr, history: db, runner: runner}, nil
}

func (r *serviceRuntime) Close() error {
	return r.history.Close()
}

func openHistory(cfg *config.Config) (*history.DB, error) {
	path, err := cfg.HistoryDBPath()
	if err != nil {
		return nil, err
	}
	db, err := history.Open(path)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeFilesystemFailure,
			"cannot open history database").WithContext("path", path).Build(), err)
	}
	return db, nil
}
