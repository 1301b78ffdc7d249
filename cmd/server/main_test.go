package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigFileLoading(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
data_dir: ` + tmpDir + `
snapshot:
  backend: s3
  bucket: test-bucket
  region: test-region
  endpoint: http://test-endpoint
  access_key: test-access-key
  secret_key: test-secret-key
auth:
  enabled: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	binaryPath := filepath.Join(tmpDir, "server")
	buildCmd := exec.Command("go", "build", "-o", binaryPath)
	err = buildCmd.Run()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, binaryPath, "--config", configPath)
	output, err := cmd.CombinedOutput()

	// The binary keeps serving HTTP until the timeout kills it; we only care
	// about the startup logs, so we expect it to be killed.
	require.Error(t, err)

	// The dev log handler wraps string values in single quotes.
	outputStr := string(output)
	require.Contains(t, outputStr, "server config")
	require.Contains(t, outputStr, "snapshot.backend='s3'")
	require.Contains(t, outputStr, "snapshot.bucket='test-bucket'")
	require.Contains(t, outputStr, "snapshot.region='test-region'")
}

func TestConfigFileNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "server")
	buildCmd := exec.Command("go", "build", "-o", binaryPath)
	err := buildCmd.Run()
	require.NoError(t, err)

	cmd := exec.Command(binaryPath, "--config", "nonexistent.yaml")
	output, err := cmd.CombinedOutput()

	require.Error(t, err)
	require.Contains(t, string(output), "open nonexistent.yaml")
}
