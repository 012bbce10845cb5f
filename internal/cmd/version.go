package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/3leaps/protsearch/internal/server/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := handlers.GetVersionInfo()
		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, formatFromFlags(cmd), info); done || err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%s %s (commit %s, built %s, %s %s/%s)\n",
			appName, info.Version, info.Commit, info.BuildDate, info.GoVersion, runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	addFormatFlags(versionCmd)
}
