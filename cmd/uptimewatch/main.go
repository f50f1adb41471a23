// Package main is the entry point for the uptimewatch binary.
//
// Usage:
//
//	uptimewatch serve -c uptimewatch.yml   # run the scheduler and HTTP API
//	uptimewatch check                      # run one cycle of due checks and exit
//	uptimewatch version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "uptimewatch",
	Short: "Periodically probe URLs and record their uptime",
	Long: `uptimewatch checks registered URLs on their configured interval, retrying
transient failures before marking a URL DOWN, and keeps the most recent 1000
results per monitor.

Configuration comes from an optional YAML file, a .env file in the working
directory, and environment variables, in increasing order of precedence.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "uptimewatch %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd, serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
