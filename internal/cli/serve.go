package cli

import (
	"github.com/dl-alexandre/gdbackup/internal/backup"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled backups and the health endpoint",
	Long: `Run a backup cycle now and then once per backup interval, while serving
the health endpoint. Stops on SIGINT or SIGTERM after the running cycle ends.`,
	RunE: runServe,
}

func init() {
	addConfigFlags(serveCmd, true)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()

	rt, err := newServiceRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !globalFlags.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	clock := clockwork.NewRealClock()
	scheduler := backup.NewScheduler(rt.runner, cfg.GetBackupInterval(), clock, logger)
	srv := server.New(server.Options{
		Port:   cfg.ServerPort,
		Auth:   rt.runner,
		Status: rt.runner.State(),
		Clock:  clock,
		Logger: logger,
	})

	logger.Info("gdbackup starting",
		logging.F("port", cfg.ServerPort),
		logging.F("interval", cfg.GetBackupInterval().String()),
		logging.F("staging", cfg.StagingDir()),
		logging.F("archives", cfg.ArchivePath()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	logger.Info("gdbackup stopped")
	return err
}
