package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

type Config struct {
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
	Storage  StorageConfig  `json:"storage"`
	Bridge   BridgeConfig   `json:"bridge"`
	Engine   EngineConfig   `json:"engine"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type KafkaConfig struct {
	Brokers  []string `json:"brokers"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	// SCRAM-SHA-256, SCRAM-SHA-512 or empty for PLAIN
	SASLMechanism string `json:"sasl_mechanism"`
	UseTLS        bool   `json:"use_tls"`
	CertFile      string `json:"cert_file"`
	KeyFile       string `json:"key_file"`
	CAFile        string `json:"ca_file"`
	GroupID       string `json:"group_id"`
}

type StorageConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	Bucket string `json:"bucket"`
}

type BridgeConfig struct {
	URL string `json:"url"`
}

type EngineConfig struct {
	MessageWindow    int    `json:"message_window"`     // cached messages kept per room
	MaxBatchSize     int    `json:"max_batch_size"`     // write-queue flush threshold
	FlushIntervalMS  int    `json:"flush_interval_ms"`  // write-queue flush interval
	FlushTimeoutMS   int    `json:"flush_timeout_ms"`   // durable transaction timeout
	BreakerThreshold int    `json:"breaker_threshold"`  // consecutive failures before open
	BreakerCooldownS int    `json:"breaker_cooldown_s"` // seconds the breaker stays open
	RateLimit        int    `json:"rate_limit"`         // visitor messages per window
	RateWindowS      int    `json:"rate_window_s"`
	RateStrategy     string `json:"rate_strategy"` // fixed_window or token_bucket
}

func (e EngineConfig) FlushInterval() time.Duration {
	return time.Duration(e.FlushIntervalMS) * time.Millisecond
}

func (e EngineConfig) FlushTimeout() time.Duration {
	return time.Duration(e.FlushTimeoutMS) * time.Millisecond
}

func (e EngineConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownS) * time.Second
}

func (e EngineConfig) RateWindow() time.Duration {
	return time.Duration(e.RateWindowS) * time.Second
}

func Load(path string) (config Config, err error) {
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("Error closing config file: %v", closeErr)
		}
	}(file)
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return config, err
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.MessageWindow <= 0 {
		c.Engine.MessageWindow = 50
	}
	if c.Engine.MaxBatchSize <= 0 {
		c.Engine.MaxBatchSize = 20
	}
	if c.Engine.FlushIntervalMS <= 0 {
		c.Engine.FlushIntervalMS = 2000
	}
	if c.Engine.FlushTimeoutMS <= 0 {
		c.Engine.FlushTimeoutMS = 10000
	}
	if c.Engine.BreakerThreshold <= 0 {
		c.Engine.BreakerThreshold = 5
	}
	if c.Engine.BreakerCooldownS <= 0 {
		c.Engine.BreakerCooldownS = 30
	}
	if c.Engine.RateLimit <= 0 {
		c.Engine.RateLimit = 20
	}
	if c.Engine.RateWindowS <= 0 {
		c.Engine.RateWindowS = 10
	}
	if c.Engine.RateStrategy == "" {
		c.Engine.RateStrategy = "fixed_window"
	}
}
