package config

import (
	"os"
	"strconv"
)

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// MQConfig holds the RabbitMQ broker URL.
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds Redis settings used for job dedup and retry counting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig holds the API listen address.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// SyncConfig holds inbox sync defaults.
type SyncConfig struct {
	// DefaultDays is the historical lookback window for a newly
	// registered inbox.
	DefaultDays int `yaml:"default_days"`
}

// InferenceConfig holds settings for the model-backed analysis calls.
type InferenceConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// TimeoutSeconds bounds a single inference call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CryptoConfig holds the process-wide credential encryption key.
type CryptoConfig struct {
	// Key is a base64 fernet key. Inbox passwords are encrypted with it
	// at rest and decrypted only when opening an IMAP session.
	Key string `yaml:"key"`
}

// Config is the root configuration for both the API and the worker.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	MQ        MQConfig        `yaml:"mq"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Sync      SyncConfig      `yaml:"sync"`
	Inference InferenceConfig `yaml:"inference"`
	Crypto    CryptoConfig    `yaml:"crypto"`
}

// OverrideDBFromEnv applies DB_* environment overrides.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv applies the MQ_URL environment override.
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv applies REDIS_* environment overrides.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv applies the SERVER_PORT environment override.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideInferenceFromEnv applies OPENAI_* environment overrides.
func OverrideInferenceFromEnv(cfg *InferenceConfig) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Model = model
	}
}

// OverrideCryptoFromEnv applies the ENCRYPTION_KEY environment override.
func OverrideCryptoFromEnv(cfg *CryptoConfig) {
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		cfg.Key = key
	}
}
