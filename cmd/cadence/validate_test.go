package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeValidateCmd runs the validate subcommand and returns its output.
func executeValidateCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"validate"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
port: 8080
poll_interval: 10s
targets:
  - name: API
    url: https://example.com
  - name: Batch
    url: https://batch.example.com
    immediate: false
`)

	output, err := executeValidateCmd(t, "-c", path)
	require.NoError(t, err)

	for _, phrase := range []string{
		"Config is valid!",
		"Port:          8080",
		"Poll interval: 10s",
		"Targets:       2 (1 start on demand)",
		"Log:           info/json",
	} {
		assert.Contains(t, output, phrase)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
targets:
  - name: ""
    url: https://example.com
`)

	_, err := executeValidateCmd(t, "-c", path)
	assert.ErrorContains(t, err, "name is required")
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeValidateCmd(t, "-c", "/nonexistent/path/config.yaml")
	assert.ErrorContains(t, err, "failed to read")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "cadence dev")
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
port: 8080
log:
  level: info
targets:
  - name: API
    url: https://example.com
`)

	newFlags := func(t *testing.T, args ...string) *pflag.FlagSet {
		t.Helper()
		flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		flags.StringP("config", "c", "", "")
		flags.Int("port", 0, "")
		flags.String("log-level", "", "")
		flags.String("log-format", "", "")
		require.NoError(t, flags.Parse(args))
		return flags
	}

	t.Run("file values", func(t *testing.T) {
		v := newViper()
		require.NoError(t, bindFlags(v, newFlags(t, "-c", path)))

		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("flags override", func(t *testing.T) {
		v := newViper()
		require.NoError(t, bindFlags(v, newFlags(t, "-c", path, "--port", "9191", "--log-level", "debug", "--log-format", "text")))

		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, 9191, cfg.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CADENCE_CONFIG", path)
		t.Setenv("CADENCE_PORT", "7070")
		t.Setenv("CADENCE_LOG_LEVEL", "warn")

		v := newViper()
		require.NoError(t, bindFlags(v, newFlags(t)))

		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Port)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("invalid override", func(t *testing.T) {
		v := newViper()
		require.NoError(t, bindFlags(v, newFlags(t, "-c", path, "--log-format", "xml")))

		_, err := loadConfig(v)
		assert.ErrorContains(t, err, "log.format")
	})

	t.Run("no config path", func(t *testing.T) {
		v := newViper()
		require.NoError(t, bindFlags(v, newFlags(t)))

		_, err := loadConfig(v)
		assert.ErrorContains(t, err, "config file is required")
	})
}
