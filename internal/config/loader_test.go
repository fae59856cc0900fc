package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// setupTestHome points HOME at a temp dir and returns the clarity config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "clarity")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `server:
  port: 9100
  shutdown_timeout: 3s
session:
  required_fields: [project_name, audience]
  store_driver: sqlite
  store_dsn: /var/lib/clarity/sessions.db
pipeline:
  classifier: keyword
  responder: false
model:
  provider: ollama
  name: llama3
  timeout: 45s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, []provenance.Key{provenance.KeyProjectName, provenance.KeyAudience}, cfg.Session.RequiredKeys())
	assert.Equal(t, "sqlite", cfg.Session.StoreDriver)
	assert.Equal(t, "keyword", cfg.Pipeline.Classifier)
	assert.False(t, cfg.Pipeline.Responder)
	assert.Equal(t, "llama3", cfg.Model.Name)
	assert.Equal(t, 45*time.Second, cfg.Model.Timeout.Duration())

	var section struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	}
	section.Format = "json"
	require.NoError(t, cfg.Unmarshal("logging", &section))
	assert.Equal(t, "debug", section.Level)
	assert.Equal(t, "json", section.Format)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0600))

	t.Setenv("CLARITY_SERVER_PORT", "9200")
	t.Setenv("CLARITY_MODEL_PROVIDER", "openai")
	t.Setenv("CLARITY_MODEL_API_KEY", "sk-from-env")
	t.Setenv("CLARITY_SESSION_REQUIRED_FIELDS", "industry,goal")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.Model.APIKey.Value())
	assert.Equal(t, []provenance.Key{provenance.KeyIndustry, provenance.KeyGoal}, cfg.Session.RequiredKeys())
}

func TestLoadWithFile_InvalidConfig(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  classifier: dice\n"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_TooLarge(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	content := bytes.Repeat([]byte("#"), maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, content, 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"user dir", filepath.Join(dir, "config.yaml"), false},
		{"user subdir", filepath.Join(dir, "dev", "config.yaml"), false},
		{"system dir", "/etc/clarity/config.yaml", false},
		{"sibling prefix", "/etc/clarity-evil/config.yaml", true},
		{"traversal", filepath.Join(dir, "..", "..", "..", "etc", "passwd"), true},
		{"elsewhere", "/tmp/config.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte("model:\n  provider: scripted\npipeline:\n  history: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.History)

	_, err = LoadBytes([]byte("server: [unclosed"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CLARITY_SERVER_PORT":             "server.port",
		"CLARITY_MODEL_API_KEY":           "model.api_key",
		"CLARITY_SESSION_REQUIRED_FIELDS": "session.required_fields",
		"CLARITY_DEBUG":                   "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "clarity"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
