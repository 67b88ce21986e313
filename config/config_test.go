package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "agentconsole.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
		assert.Equal(t, ApprovalModePause, cfg.ApprovalMode)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("valid yaml file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "agentconsole.yaml", `
endpoint: https://agent.example.com/stream
approval_endpoint: https://agent.example.com/approvals
tenant_id: acme
user_id: u-1
approval_mode: continue
timeout: 90s
context:
  page: /orders
strings:
  transport_error: "Keine Verbindung"
  step_title: "Schritt"
`)
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "https://agent.example.com/stream", cfg.Endpoint)
		assert.Equal(t, "https://agent.example.com/approvals", cfg.ApprovalEndpoint)
		assert.Equal(t, "acme", cfg.TenantID)
		assert.Equal(t, "u-1", cfg.UserID)
		assert.Equal(t, ApprovalModeContinue, cfg.ApprovalMode)
		assert.Equal(t, 90*time.Second, cfg.Timeout)
		assert.Equal(t, "/orders", cfg.Context["page"])
		assert.Equal(t, "Keine Verbindung", cfg.Strings.TransportError)
		assert.Equal(t, "Schritt", cfg.Strings.StepTitle)
	})

	t.Run("token in file is ignored", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "agentconsole.yaml", "token: secret\n")
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Empty(t, cfg.Token)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "agentconsole.yaml", "endpoint: [\n")
		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEndpoint: "http://override/stream",
		EnvToken:    "tok",
		EnvTenant:   "",
	}
	cfg := Default()
	cfg.TenantID = "from-file"
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "http://override/stream", cfg.Endpoint)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "from-file", cfg.TenantID, "empty variable must not clear the file value")
	assert.Empty(t, cfg.UserID)
}

func TestLoad_DotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agentconsole.yaml", "tenant_id: acme\n")
	envFile := writeFile(t, dir, ".env", "AGENTCONSOLE_USER=dotenv-user\nAGENTCONSOLE_TOKEN=dotenv-token\n")

	t.Setenv(EnvToken, "process-token")
	t.Setenv(EnvUser, "")
	require.NoError(t, os.Unsetenv(EnvUser))

	cfg, err := Load(path, envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, "dotenv-user", cfg.UserID)
	assert.Equal(t, "process-token", cfg.Token, "process environment wins over .env")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.ApprovalMode = "later"
	assert.ErrorContains(t, cfg.Validate(), "approval_mode")

	cfg = Default()
	cfg.Endpoint = ""
	assert.ErrorContains(t, cfg.Validate(), "endpoint")

	cfg = Default()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	cfg.Strings.TransportError = "offline"
	assert.Len(t, cfg.SessionOptions(), 4)
}
