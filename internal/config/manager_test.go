package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
telegram:
  poll_timeout: 10s
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./log/bot.log
storage:
  driver: sqlite
  path: ./data/bot.db
  busy_timeout: 5s
scheduler:
  enabled: true
notify:
  workers: 2
  rate_per_sec: 3
narrative:
  enabled: true
  model: gemini-2.0-flash
`)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "10s", cfg.Telegram.PollTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 2, cfg.Notify.Workers)
	assert.Equal(t, "gemini-2.0-flash", cfg.Narrative.Model)
	assert.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
storage:
  driver: sqlite
  path: ./bot.db
  flavour: strawberry
`)
	_, err := m.Parse()
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	t.Parallel()
	d, err := Duration("x", "1m30s", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())

	d, err = Duration("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = Duration("x", "ninety seconds", 0)
	assert.Error(t, err)

	_, err = Duration("x", "-1s", 0)
	assert.Error(t, err)
}
