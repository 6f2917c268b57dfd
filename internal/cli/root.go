package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/dl-alexandre/gdbackup/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gdbackup",
	Short: "Google Drive backup service",
	Long: `gdbackup mirrors a Google Drive account, reached through a service
account, into a local staging directory and packages each mirror into a
timestamped zip archive. It runs once or as a service with a health endpoint.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		loaded, err := config.Load(globalFlags.Config)
		if err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
		}
		if err := applyConfigFlags(cmd, loaded); err != nil {
			return err
		}
		cfg = loaded

		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logConfig := logging.DefaultLogConfig()
		logConfig.Level = level
		logConfig.OutputFile = cfg.LogFile
		logConfig.EnableConsole = !globalFlags.Quiet
		if globalFlags.LogFile != "" {
			logConfig.OutputFile = globalFlags.LogFile
		}
		if globalFlags.Verbose || globalFlags.Debug {
			logConfig.Level = logging.DEBUG
		}

		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version number of gdbackup",
	// No configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateGlobalFlags()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			out := NewOutputWriter(cmd.OutOrStdout(), globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
			return out.WriteSuccess("version", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	return nil
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM, and exits with the code of the returned error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	out := NewOutputWriter(os.Stdout, globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
	if globalFlags.OutputFormat == types.OutputFormatJSON {
		_ = out.WriteError(rootCmd.Name(), utils.AsCLIError(err))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return utils.GetExitCode(utils.ErrCodeCancelled)
	}
	if code := utils.ErrorCode(err); code != "" {
		return utils.GetExitCode(code)
	}
	return utils.ExitUnknown
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	if logger == nil {
		return logging.NewNoOpLogger()
	}
	return logger
}

// GetConfig returns the configuration loaded for the running command
func GetConfig() *config.Config {
	return cfg
}
