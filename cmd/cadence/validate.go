package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateViper = newViper()

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a cadence configuration file without starting the server.

The YAML is parsed, environment variables are expanded and every field is
checked, including flag and CADENCE_* overrides. Useful in CI pipelines.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (details printed to stderr)

Example:
  cadence validate -c cadence.yaml`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(validateViper, cmd.Flags())
	},
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file")
	validateCmd.Flags().Int("port", 0, "HTTP port, overrides the config file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(validateViper)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deferred := 0
	for _, t := range cfg.Targets {
		if (t.Immediate != nil && !*t.Immediate) || (t.Enabled != nil && !*t.Enabled) {
			deferred++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Targets:       %d (%d start on demand)\n", len(cfg.Targets), deferred)
	fmt.Fprintf(out, "  Log:           %s/%s\n", cfg.Log.Level, cfg.Log.Format)
	return nil
}
