package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRunnerYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runner.yaml"), []byte(content), 0o644))
}

func TestLoadInlineMode(t *testing.T) {
	dir := t.TempDir()
	writeRunnerYAML(t, dir, "mode: inline\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Mode)
	assert.Empty(t, cfg.Command)
}

func TestLoadExternalModeRequiresCommand(t *testing.T) {
	dir := t.TempDir()
	writeRunnerYAML(t, dir, "mode: external\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadExternalModeWithCommand(t *testing.T) {
	dir := t.TempDir()
	writeRunnerYAML(t, dir, "mode: external\ncommand:\n  - /usr/local/bin/sandboxworker\n  - --quiet\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/local/bin/sandboxworker", "--quiet"}, cfg.Command)
}

func TestLoadExpandsEnvVarsFromDotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WORKER_BIN=/opt/sandboxworker\n"), 0o644))
	writeRunnerYAML(t, dir, "mode: external\ncommand:\n  - ${WORKER_BIN}\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/sandboxworker"}, cfg.Command)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	writeRunnerYAML(t, dir, "mode: bogus\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestGracePeriodDurationDefaultsWhenEmpty(t *testing.T) {
	cfg := &RunnerConfig{}
	d, err := cfg.GracePeriodDuration()
	require.NoError(t, err)
	assert.Equal(t, 200_000_000, int(d))
}

func TestGracePeriodDurationParsesExplicitValue(t *testing.T) {
	cfg := &RunnerConfig{GracePeriod: "500ms"}
	d, err := cfg.GracePeriodDuration()
	require.NoError(t, err)
	assert.Equal(t, 500_000_000, int(d))
}
