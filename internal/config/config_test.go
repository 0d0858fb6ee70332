package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
database:
  driver: sqlite
  path: /tmp/test.db
memory:
  locale: en-US
  default_model: "ollama:qwen2.5:7b"
  retention_slack_factor: 1
  lock:
    mode: redis
    ttl: 30s
`

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	cfg, err := Load("test", path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "en-US", cfg.Memory.Locale)
	assert.Equal(t, "ollama:qwen2.5:7b", cfg.Memory.DefaultModel)
	assert.Equal(t, 1, cfg.Memory.RetentionSlackFactor)
	assert.Equal(t, "redis", cfg.Memory.Lock.Mode)
	assert.Equal(t, 30*time.Second, cfg.Memory.Lock.LockTTL())

	// 未配置的键使用默认值
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Memory.Lock.LockRetryInterval())
	assert.Same(t, cfg, Get())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))
	t.Setenv("APP_MEMORY_LOCALE", "zh-CN")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, "zh-CN", cfg.Memory.Locale)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load("test", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, time.Minute, parseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, parseDurationOr("bogus", time.Minute))
	assert.Equal(t, time.Minute, parseDurationOr("-5s", time.Minute))
	assert.Equal(t, 5*time.Second, parseDurationOr("5s", time.Minute))
}
