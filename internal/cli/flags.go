package cli

import (
	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/spf13/cobra"
)

// configFlags override configuration values for one invocation
type configFlags struct {
	keyFile     string
	impersonate string
	port        int
	interval    int
	rootDir     string
	baseDir     string
	archiveDir  string
	concurrency int
	policy      string
	noClean     bool
}

var cycleFlags configFlags

// addConfigFlags registers the override flags on cmd
func addConfigFlags(cmd *cobra.Command, withServer bool) {
	f := cmd.Flags()
	f.StringVar(&cycleFlags.keyFile, "key-file", "", "Service account JSON key file")
	f.StringVar(&cycleFlags.impersonate, "impersonate", "", "Workspace user to impersonate")
	f.StringVar(&cycleFlags.rootDir, "root-dir", "", "Working root directory")
	f.StringVar(&cycleFlags.baseDir, "base-dir", "", "Staging directory, relative to the root")
	f.StringVar(&cycleFlags.archiveDir, "archive-dir", "", "Archive output directory")
	f.IntVar(&cycleFlags.concurrency, "concurrency", 0, "Maximum simultaneous downloads")
	f.StringVar(&cycleFlags.policy, "policy", "", "Download failure policy (abort, best-effort)")
	f.BoolVar(&cycleFlags.noClean, "no-clean", false, "Keep the staging directory between cycles")
	if withServer {
		f.IntVar(&cycleFlags.port, "port", 0, "Health endpoint port")
		f.IntVar(&cycleFlags.interval, "interval", 0, "Seconds between backup cycles")
	}
}

// applyConfigFlags copies explicitly set flags onto cfg and revalidates it
func applyConfigFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	changed := false
	set := func(name string, apply func()) {
		if f.Lookup(name) != nil && f.Changed(name) {
			apply()
			changed = true
		}
	}

	set("key-file", func() { cfg.ServiceAccountKeyFile = cycleFlags.keyFile })
	set("impersonate", func() { cfg.ImpersonateUser = cycleFlags.impersonate })
	set("root-dir", func() { cfg.RootDir = cycleFlags.rootDir })
	set("base-dir", func() { cfg.BaseDir = cycleFlags.baseDir })
	set("archive-dir", func() { cfg.ArchiveDir = cycleFlags.archiveDir })
	set("concurrency", func() { cfg.Concurrency = cycleFlags.concurrency })
	set("policy", func() { cfg.DownloadPolicy = config.DownloadPolicy(cycleFlags.policy) })
	set("no-clean", func() { cfg.CleanDirectory = !cycleFlags.noClean })
	set("port", func() { cfg.ServerPort = cycleFlags.port })
	set("interval", func() { cfg.BackupInterval = cycleFlags.interval })

	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return invalidArgument(err.Error())
	}
	return nil
}
