// Package main is the entry point for the cadence CLI.
//
// Usage:
//
//	cadence serve -c config.yaml    # Poll targets and serve the API
//	cadence validate -c config.yaml # Validate configuration
//	cadence version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags, e.g. -X main.version=1.0.0.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Poll HTTP targets and publish their health",
	Long: `cadence polls HTTP targets on per-target schedules, stops retrying a
target after a configurable number of consecutive failures, and publishes
the results over a JSON API, a throttled Server-Sent Events stream and
Prometheus metrics.

Quick start:
  1. Create a config file (cadence.yaml)
  2. Run: cadence serve -c cadence.yaml
  3. curl http://localhost:8080/api/status

Example config:
  port: 8080
  poll_interval: 15s
  targets:
    - name: GitHub API
      url: https://api.github.com
      extractor: json:status
      max_retries: 5`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cadence %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
