package cli

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildRevision returns the VCS revision stamped into the binary, marked
// when the tree was modified.
func buildRevision(info *debug.BuildInfo) string {
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "+dirty"
			}
		}
	}
	if rev == "" {
		return ""
	}
	return rev + dirty
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the adapter build",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				cmd.Println("dlvdap (no build information)")
				return
			}
			version := info.Main.Version
			if version == "" {
				version = "(devel)"
			}
			cmd.Printf("dlvdap %s %s\n", version, info.GoVersion)
			if rev := buildRevision(info); rev != "" {
				cmd.Println("revision", rev)
			}
			for _, dep := range info.Deps {
				if dep.Path == "github.com/go-delve/delve" {
					cmd.Println("delve", dep.Version)
				}
			}
		},
	}
}

var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
