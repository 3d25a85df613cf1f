// internal/cli/version.go
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func SetVersionInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func (v VersionInfo) TextOutput() string {
	return fmt.Sprintf("primerbatch version %s (commit: %s, built: %s)\nGo: %s %s/%s",
		v.Version, v.Commit, v.BuildTime, v.GoVersion, v.OS, v.Arch)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return OutputResult(VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		})
	},
}
