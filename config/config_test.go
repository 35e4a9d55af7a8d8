package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8087, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Logtest.MaxSessions)
	assert.Equal(t, 15*time.Minute, cfg.Logtest.SessionIdleTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Logtest.RegexTimeout)
	assert.Equal(t, "ruleset/decoders.yaml", cfg.Ruleset.DecodersPath)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9999
logtest:
  max_sessions: 5
  session_idle_ttl: 30s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "argus.yaml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Logtest.MaxSessions)
	assert.Equal(t, 30*time.Second, cfg.Logtest.SessionIdleTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ARGUS_SERVER_PORT", "7070")
	t.Setenv("ARGUS_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "argus.yaml"),
		[]byte("server:\n  port: 999999\n"), 0o644))
	chdir(t, dir)

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "out of range")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Server.Port = 8087
		c.Logtest.RegexTimeout = time.Second
		c.Ruleset.DecodersPath = "d.yaml"
		c.Ruleset.RulesPath = "r.yaml"
		c.Logging.Level = "info"
		return c
	}

	assert.NoError(t, valid().Validate())

	c := valid()
	c.Server.Port = -1
	assert.Error(t, c.Validate())

	c = valid()
	c.Logtest.MaxSessions = -1
	assert.Error(t, c.Validate())

	c = valid()
	c.Logtest.RegexTimeout = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Ruleset.RulesPath = ""
	assert.Error(t, c.Validate())

	c = valid()
	c.Logging.Level = "verbose"
	assert.Error(t, c.Validate())
}
