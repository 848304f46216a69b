package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings root.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// DefaultConfig returns defaults for a single-node deployment. The JWT
// secret must be overridden outside local development.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./nestchat.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			JWTSecret: "dev-secret-change-me",
			Issuer:    "nestchat",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by NESTCHAT_* environment
// variables.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("NESTCHAT_HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}
	if v := os.Getenv("NESTCHAT_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("NESTCHAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NESTCHAT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("NESTCHAT_JWT_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}

	durations := map[string]*time.Duration{
		"NESTCHAT_HTTP_READ_TIMEOUT":       &cfg.HTTP.ReadTimeout,
		"NESTCHAT_HTTP_WRITE_TIMEOUT":      &cfg.HTTP.WriteTimeout,
		"NESTCHAT_DATABASE_TIMEOUT":        &cfg.Database.Timeout,
		"NESTCHAT_WEBSOCKET_PING_INTERVAL": &cfg.WebSocket.PingInterval,
		"NESTCHAT_WEBSOCKET_READ_TIMEOUT":  &cfg.WebSocket.ReadTimeout,
		"NESTCHAT_WEBSOCKET_WRITE_TIMEOUT": &cfg.WebSocket.WriteTimeout,
	}
	for name, target := range durations {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*target = d
			}
		}
	}

	if v := os.Getenv("NESTCHAT_WEBSOCKET_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}

	return cfg
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Auth *struct {
		JWTSecret string `json:"jwt_secret"`
		Issuer    string `json:"issuer"`
	} `json:"auth"`
}

// LoadFromFile loads a JSON config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays the keys present in the file onto cfg; keys the file
// omits keep whatever cfg already holds.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Database != nil {
		if file.Database.Path != "" {
			cfg.Database.Path = file.Database.Path
		}
		setDuration(&cfg.Database.Timeout, file.Database.Timeout)
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			cfg.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			cfg.HTTP.Port = file.HTTP.Port
		}
		setDuration(&cfg.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		setDuration(&cfg.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		if file.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		setDuration(&cfg.WebSocket.PingInterval, file.WebSocket.PingInterval)
		setDuration(&cfg.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		setDuration(&cfg.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
	}
	if file.Auth != nil {
		if file.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = file.Auth.JWTSecret
		}
		if file.Auth.Issuer != "" {
			cfg.Auth.Issuer = file.Auth.Issuer
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return nil
}

// LoadWithPrecedence resolves configuration as file > environment >
// defaults: the file overrides only the keys it sets, and environment
// values survive for the keys it omits. File errors fall back silently to
// the environment layer.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path == "" {
		return cfg
	}

	merged := LoadFromEnv()
	if err := applyFile(merged, path); err != nil {
		return cfg
	}
	return merged
}

func setDuration(target *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*target = d
	}
}
