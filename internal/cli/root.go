package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "conveyor — run declarative container build pipelines",
	Long: `conveyor executes Cloud Build-style pipeline definitions: an ordered
list of container steps with ${VAR} substitutions, a wall-clock timeout,
and a list of output image tags.

Steps run strictly in declared order against a pluggable backend (docker
or local exec). Run results are stored under ~/.conveyor/runs/ and can
optionally be recorded in Postgres.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
}
