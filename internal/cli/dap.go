package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gni.dev/dlvdap/internal/dbg/dap"
)

const dapLongDescription = `Serve the Debug Adapter Protocol.

With --port the adapter listens on localhost and serves one client;
otherwise it serves a single session on standard input and output.`

func newDAPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dap",
		Short: "Serve the Debug Adapter Protocol",
		Long:  dapLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogging(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDAP(ctx, sessionConfig(logger), viper.GetInt(dapPortKey), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int(portFlagName, viper.GetInt(dapPortKey), "port to listen on (0 serves stdin/stdout)")
	bindFlagToConfig(cmd.Flags().Lookup(portFlagName), dapPortKey)

	return cmd
}

func runDAP(ctx context.Context, cfg dap.Config, port int, in io.Reader, out io.Writer) error {
	var err error
	if port > 0 {
		err = dap.NewServer(fmt.Sprintf("localhost:%d", port), cfg).Run(ctx)
	} else {
		pipe := struct {
			io.Reader
			io.Writer
		}{in, out}
		err = dap.NewSession(pipe, cfg).Serve(ctx)
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

var dapCmd = newDAPCmd()

func init() {
	rootCmd.AddCommand(dapCmd)
}
