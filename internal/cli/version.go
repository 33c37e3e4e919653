package cli

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bmadflow version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bmadflow version %s (%s, %s/%s)\n",
			version, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
		if rev := buildRevision(); rev != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  revision %s\n", rev)
		}
	},
}

// buildRevision reports the VCS revision stamped into the binary, if any.
func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
