package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".docsmith")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
}

func TestApplyFileConfig(t *testing.T) {
	writeConfigFile(t, `
llm:
  api_url: https://api.example.com/v1
  model: test-model
storage:
  endpoint: localhost:9000
  bucket: docs
`)
	t.Setenv("DOCSMITH_LLM_API_URL", "")
	t.Setenv("DOCSMITH_LLM_MODEL", "")
	t.Setenv("DOCSMITH_MINIO_ENDPOINT", "")
	t.Setenv("DOCSMITH_MINIO_BUCKET", "")

	// Setenv with an empty value still marks the variable as set, so clear
	// them outright; t.Setenv above restores the originals afterwards.
	os.Unsetenv("DOCSMITH_LLM_API_URL")
	os.Unsetenv("DOCSMITH_LLM_MODEL")
	os.Unsetenv("DOCSMITH_MINIO_ENDPOINT")
	os.Unsetenv("DOCSMITH_MINIO_BUCKET")

	require.NoError(t, ApplyFileConfig(nil))

	assert.Equal(t, "https://api.example.com/v1", os.Getenv("DOCSMITH_LLM_API_URL"))
	assert.Equal(t, "test-model", os.Getenv("DOCSMITH_LLM_MODEL"))
	assert.Equal(t, "localhost:9000", os.Getenv("DOCSMITH_MINIO_ENDPOINT"))
	assert.Equal(t, "docs", os.Getenv("DOCSMITH_MINIO_BUCKET"))
}

func TestApplyFileConfigEnvironmentWins(t *testing.T) {
	writeConfigFile(t, `
llm:
  model: file-model
`)
	t.Setenv("DOCSMITH_LLM_MODEL", "env-model")

	require.NoError(t, ApplyFileConfig(nil))

	assert.Equal(t, "env-model", os.Getenv("DOCSMITH_LLM_MODEL"))
}

func TestApplyFileConfigMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.NoError(t, ApplyFileConfig(nil))
}

func TestApplyFileConfigInvalidYAML(t *testing.T) {
	writeConfigFile(t, "llm: [not: a: mapping")
	assert.Error(t, ApplyFileConfig(nil))
}
