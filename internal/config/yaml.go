package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level s4kit configuration file.
type YAMLConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Redis      RedisConfig      `yaml:"redis"`
	SecureLog  SecureLogConfig  `yaml:"secure_log"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	MCP        MCPConfig        `yaml:"mcp"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// EncryptionConfig holds the at-rest credential encryption key.
type EncryptionConfig struct {
	// Key is a hex-encoded 32-byte AES-256 key. Reference it from the
	// environment as ${S4KIT_ENCRYPTION_KEY} rather than committing it.
	Key string `yaml:"key"`
}

// RedisConfig points at the shared counter store used for rate limiting.
// When Addr is empty the proxy falls back to in-process counters, which are
// only correct for single-process deployments.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SecureLogConfig controls where the per-request metadata records live.
// Driver is "sqlite" (default, embedded) or "postgres" (shared, for
// multi-process deployments feeding one dashboard).
type SecureLogConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ProxyConfig controls outbound behavior toward SAP backends.
type ProxyConfig struct {
	RequestTimeout string `yaml:"request_timeout"`
	TokenTimeout   string `yaml:"token_timeout"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry:    "24h",
			APIKeyHeader: "X-API-Key",
		},
		Encryption: EncryptionConfig{
			Key: "${S4KIT_ENCRYPTION_KEY}",
		},
		SecureLog: SecureLogConfig{
			Driver: "sqlite",
		},
		Proxy: ProxyConfig{
			RequestTimeout: "30s",
			TokenTimeout:   "10s",
		},
		MCP: MCPConfig{
			Enabled:   false,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
