package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("MISTRAL_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "logging:\n  level: error\nstorage:\n  driver: sqlite\n  path: " + filepath.ToSlash(filepath.Join(dir, "t.db")) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "fitbuddy version dev\n", out)
}

func TestJobsAndRecipients(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, "jobs", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "motivation")
	require.Contains(t, out, "weekly_summary")

	_, err = execute(t, "recipients", "add", "--config", cfg, "42", "7")
	require.NoError(t, err)

	out, err = execute(t, "recipients", "--config", cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"42", "7"}, strings.Fields(out))

	_, err = execute(t, "recipients", "add", "--config", cfg, "abc")
	require.Error(t, err)
}

func TestSummaryPrints(t *testing.T) {
	cfg := testConfig(t)
	out, err := execute(t, "summary", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "Runs: 0")
}
