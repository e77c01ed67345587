package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenv(t *testing.T) {
	t.Setenv(envLogLevel, "debug")
	assert.Equal(t, "debug", getenv(envLogLevel, "info"))

	t.Setenv(envLogLevel, "")
	assert.Equal(t, "info", getenv(envLogLevel, "info"))
}

func TestConfigCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
agent_name: "PPOAgent;lstm"
preset: tforce
market:
  length: 500
`), 0644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", file})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "PPOAgent;lstm\n")
	assert.Contains(t, out.String(), "batch_size: 8")
	assert.Contains(t, out.String(), "learning_rate: 0.001")
	assert.Contains(t, out.String(), "num_actions: 3")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "exp.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
market:
  length: 300
environment:
  window: 4
overrides:
  network:
    - type: dense
      size: 8
`), 0644))

	var out, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--config", file, "--episodes", "2",
		"--steps", "6", "--db", filepath.Join(dir, "btc.db"),
		"--log-level", "error", "--pretty=false", "--progress"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "DQNAgent;priority;150-150\n")
	assert.Contains(t, stderr.String(), "[100.00%")

	_, err := os.Stat(filepath.Join(dir, "btc.db"))
	assert.NoError(t, err)
}
