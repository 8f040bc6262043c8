package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"dsn": "host=localhost user=chat dbname=chat"},
		"redis": {"addr": "localhost:6379", "db": 2},
		"kafka": {"brokers": ["localhost:9092"], "group_id": "chat-core"},
		"engine": {
			"message_window": 100,
			"max_batch_size": 50,
			"flush_interval_ms": 500,
			"breaker_threshold": 3,
			"rate_strategy": "token_bucket"
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=localhost user=chat dbname=chat", cfg.Database.DSN)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.Engine.MessageWindow)
	assert.Equal(t, 50, cfg.Engine.MaxBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.FlushInterval())
	assert.Equal(t, 3, cfg.Engine.BreakerThreshold)
	assert.Equal(t, "token_bucket", cfg.Engine.RateStrategy)
}

func TestLoadAppliesEngineDefaults(t *testing.T) {
	path := writeConfig(t, `{"database": {"dsn": "x"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Engine.MessageWindow)
	assert.Equal(t, 20, cfg.Engine.MaxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Engine.FlushInterval())
	assert.Equal(t, 10*time.Second, cfg.Engine.FlushTimeout())
	assert.Equal(t, 5, cfg.Engine.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Engine.BreakerCooldown())
	assert.Equal(t, 20, cfg.Engine.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.Engine.RateWindow())
	assert.Equal(t, "fixed_window", cfg.Engine.RateStrategy)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"database":`)
	_, err := Load(path)
	assert.Error(t, err)
}
