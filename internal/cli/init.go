package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const forceFlagName = "force"

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective settings to a dlvdap.yaml",
		Long: `Write the backend, session and logging settings currently in effect,
defaults included, to dlvdap.yaml or to the given path. An existing file is
kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := filepath.Join(configFolderPath, configFileName)
			if len(args) == 1 {
				target = args[0]
			}
			force, _ := cmd.Flags().GetBool(forceFlagName)

			write := viper.SafeWriteConfigAs
			if force {
				write = viper.WriteConfigAs
			}
			if err := write(target); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			cmd.Println("wrote", target)
			return nil
		},
	}
	cmd.Flags().Bool(forceFlagName, false, "overwrite an existing file")
	return cmd
}

var initCmd = newInitCmd()

func init() {
	rootCmd.AddCommand(initCmd)
}
