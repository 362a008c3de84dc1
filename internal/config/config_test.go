package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.True(t, cfg.Access.RequireReapproval)
	assert.True(t, cfg.Access.ClaimUnowned)
	assert.Equal(t, 10*time.Minute, cfg.Access.RequestTTL)
	assert.Equal(t, "X-User-Id", cfg.IdentityHeader)
	assert.Equal(t, 30*time.Second, cfg.Supervisor.SweepInterval)
	assert.Equal(t, "call:notifications", cfg.Notify.RedisChannel)
	assert.NotEmpty(t, cfg.Media.ICEServers)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 8181
access:
  require_reapproval: false
  request_ttl: 30s
rooms:
  max_participants: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.False(t, cfg.Access.RequireReapproval)
	assert.Equal(t, 30*time.Second, cfg.Access.RequestTTL)
	assert.Equal(t, 4, cfg.Rooms.MaxParticipants)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "port: 8080\n")
	t.Setenv("CALL_PORT", "7070")
	t.Setenv("CALL_ACCESS_CLAIM_UNOWNED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.False(t, cfg.Access.ClaimUnowned)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "port: 0\n")
	_, err := Load(path)
	require.Error(t, err)
}
