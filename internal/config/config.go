// Package config loads test lab settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"testlab/internal/db"
)

// Config holds all test lab settings
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig selects the record store
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig configures the dashboard server
type ServerConfig struct {
	Port   string `yaml:"port"`
	LogDir string `yaml:"log_dir"`
	WebDir string `yaml:"web_dir"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NotifyConfig configures result notifications; empty disables them
type NotifyConfig struct {
	DiscordWebhook string `yaml:"discord_webhook"`
}

// EnvPaths are the .env locations tried in order; the first one found wins
var EnvPaths = []string{".env", "../.env", "../../.env"}

// DefaultConfig returns a configuration for a local SQLite setup
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "testlab.db",
		},
		Server: ServerConfig{
			Port:   "8080",
			LogDir: "logs",
			WebDir: "web",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (if it exists) over the defaults, then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	LoadDotEnv()
	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadDotEnv loads the first .env file found in EnvPaths and returns its
// path, or "" when none exists. Variables already set are not overwritten.
func LoadDotEnv() string {
	for _, path := range EnvPaths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &c.Database.URL},
		{"TESTLAB_DB_DRIVER", &c.Database.Driver},
		{"TESTLAB_SQLITE_PATH", &c.Database.SQLitePath},
		{"PORT", &c.Server.Port},
		{"TESTLAB_LOG_DIR", &c.Server.LogDir},
		{"TESTLAB_WEB_DIR", &c.Server.WebDir},
		{"TESTLAB_LOG_LEVEL", &c.Logging.Level},
		{"TESTLAB_DISCORD_WEBHOOK", &c.Notify.DiscordWebhook},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}

	// A bare DATABASE_URL means postgres unless a driver was chosen explicitly
	if os.Getenv("DATABASE_URL") != "" && os.Getenv("TESTLAB_DB_DRIVER") == "" {
		c.Database.Driver = "postgres"
	}
}

// Store converts the database section for db.Open
func (c *Config) Store() db.Config {
	return db.Config{
		Driver:     c.Database.Driver,
		URL:        c.Database.URL,
		SQLitePath: c.Database.SQLitePath,
	}
}

// Addr is the listen address for the dashboard server
func (c *Config) Addr() string {
	if strings.Contains(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}
