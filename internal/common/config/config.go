package config

import (
	"os"
	"regexp"
	"time"

	"github.com/arlofn/provider/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the top-level provider configuration.
	Config struct {
		Server   ServerConfig   `yaml:"server"`
		Logger   LoggerConfig   `yaml:"logger"`
		Storage  StorageConfig  `yaml:"storage"`
		Identity IdentityConfig `yaml:"identity"`
		OAuth2   OAuth2Config   `yaml:"oauth2"`
		Metrics  MetricsConfig  `yaml:"metrics"`
	}

	// ServerConfig holds the HTTP listener settings.
	ServerConfig struct {
		Addr string `yaml:"addr"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// StorageConfig selects and configures the entity store backend.
	StorageConfig struct {
		Type     string         `yaml:"type"` // memory, redis, sqlite, mysql, postgres
		Redis    RedisConfig    `yaml:"redis"`
		Database DatabaseConfig `yaml:"database"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	DatabaseConfig struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"` // file path for sqlite
		SSLMode  string `yaml:"sslmode"`
	}

	// IdentityConfig selects the end-user credential verifier. The static
	// type is for development only; database shares the storage database.
	IdentityConfig struct {
		Type  string            `yaml:"type"`  // static, database
		Users map[string]string `yaml:"users"` // static only: username -> password
	}

	// OAuth2Config holds token lifetimes and issuer identity.
	OAuth2Config struct {
		Issuer         string        `yaml:"issuer"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		CodeTTL        time.Duration `yaml:"code_ttl"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable
// support.
func LoadConfig(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.SetDefaults()
	return &cfg, cfgPath, nil
}

// SetDefaults fills in the defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Identity.Type == "" {
		c.Identity.Type = "static"
	}
	if c.OAuth2.AccessTokenTTL <= 0 {
		c.OAuth2.AccessTokenTTL = time.Hour
	}
	if c.OAuth2.CodeTTL <= 0 {
		c.OAuth2.CodeTTL = 10 * time.Minute
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "provider"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
