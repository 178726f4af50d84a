package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level backoffice configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host               string     `yaml:"host"`
	Port               int        `yaml:"port"`
	ShutdownTimeout    string     `yaml:"shutdown_timeout"`
	RateLimitPerMinute int        `yaml:"rate_limit_per_minute"`
	LoginLimitPerMin   int        `yaml:"login_limit_per_minute"`
	CORS               CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// AuthConfig controls session token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry string `yaml:"jwt_expiry"`
}

// DatabaseConfig selects the store backend. For sqlite, DataDir is used
// when DSN is empty.
type DatabaseConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport"`
	Port      int    `yaml:"port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Fields absent from the file keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *YAMLConfig) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return err
	}
	if _, err := c.JWTExpiry(); err != nil {
		return err
	}
	return nil
}

// ShutdownTimeout parses server.shutdown_timeout.
func (c *YAMLConfig) ShutdownTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	return d, nil
}

// JWTExpiry parses auth.jwt_expiry.
func (c *YAMLConfig) JWTExpiry() (time.Duration, error) {
	d, err := time.ParseDuration(c.Auth.JWTExpiry)
	if err != nil {
		return 0, fmt.Errorf("auth.jwt_expiry: %w", err)
	}
	return d, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ShutdownTimeout:    "30s",
			RateLimitPerMinute: 600,
			LoginLimitPerMin:   10,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Port:      3001,
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
