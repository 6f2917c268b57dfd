package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X .../pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("gdbackup %s (%s) built %s", i.Version, i.GitCommit, i.BuildTime)
}

// UserAgent identifies the binary to the Drive API
func (i *Info) UserAgent() string {
	return fmt.Sprintf("gdbackup/%s (%s)", i.Version, i.Platform)
}
