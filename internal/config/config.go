package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Admin   AdminConfig   `yaml:"admin" envconfig:"ADMIN"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Check   CheckConfig   `yaml:"check" envconfig:"CHECK"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// AdminConfig contains the shared admin credential. The token has no
// default on purpose: the service refuses to start without one rather
// than shipping a guessable secret.
type AdminConfig struct {
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// StorageConfig selects the durable backend. The sqlite driver expects a
// file path DSN on a persistent volume; the postgres driver a connection
// string. In-memory DSNs do not satisfy the durability contract and are
// only acceptable in tests.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// CheckConfig tunes the unauthenticated check endpoint.
type CheckConfig struct {
	RateLimitEnabled bool    `yaml:"rate_limit_enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst   int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
}

// Load layers configuration sources: built-in defaults, then the YAML
// file (if any), then explicitly set environment variables. Later layers
// win per field.
func Load() (*Config, error) {
	cfg := *Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	var envCfg Config
	if err := envconfig.Process("LICENSEGATE", &envCfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg = mergeConfigs(cfg, envCfg)

	// A set boolean env cannot be told apart from an unset one by value
	// alone, so presence decides.
	if _, ok := os.LookupEnv("LICENSEGATE_CHECK_RATE_LIMIT_ENABLED"); ok {
		cfg.Check.RateLimitEnabled = envCfg.Check.RateLimitEnabled
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays YAML file values onto cfg. Keys absent from the
// file leave the existing values untouched.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// mergeConfigs overlays every explicitly set (non-zero) env value onto
// the base configuration. Every declared field participates; the one
// boolean field is resolved by presence in Load.
func mergeConfigs(base, env Config) Config {
	if env.Server.Port != 0 {
		base.Server.Port = env.Server.Port
	}
	if env.Server.ReadTimeout != 0 {
		base.Server.ReadTimeout = env.Server.ReadTimeout
	}
	if env.Server.WriteTimeout != 0 {
		base.Server.WriteTimeout = env.Server.WriteTimeout
	}
	if env.Server.IdleTimeout != 0 {
		base.Server.IdleTimeout = env.Server.IdleTimeout
	}
	if env.Server.MaxHeaderBytes != 0 {
		base.Server.MaxHeaderBytes = env.Server.MaxHeaderBytes
	}
	if env.Server.ShutdownTimeout != 0 {
		base.Server.ShutdownTimeout = env.Server.ShutdownTimeout
	}
	if env.Admin.Token != "" {
		base.Admin.Token = env.Admin.Token
	}
	if env.Storage.Driver != "" {
		base.Storage.Driver = env.Storage.Driver
	}
	if env.Storage.DSN != "" {
		base.Storage.DSN = env.Storage.DSN
	}
	if env.Logging.Level != "" {
		base.Logging.Level = env.Logging.Level
	}
	if env.Logging.Format != "" {
		base.Logging.Format = env.Logging.Format
	}
	if env.Logging.Output != "" {
		base.Logging.Output = env.Logging.Output
	}
	if env.Logging.FilePath != "" {
		base.Logging.FilePath = env.Logging.FilePath
	}
	if env.Check.RateLimitRPS != 0 {
		base.Check.RateLimitRPS = env.Check.RateLimitRPS
	}
	if env.Check.RateLimitBurst != 0 {
		base.Check.RateLimitBurst = env.Check.RateLimitBurst
	}

	return base
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Admin.Token == "" {
		return fmt.Errorf("admin token must be configured (LICENSEGATE_ADMIN_TOKEN)")
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}

	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN must be configured")
	}

	if c.Check.RateLimitEnabled && c.Check.RateLimitRPS <= 0 {
		return fmt.Errorf("check rate limit rps must be positive")
	}

	if c.Logging.Format != "json" {
		// Structured logs are JSON only.
		c.Logging.Format = "json"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv("LICENSEGATE_CONFIG"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "license.db",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/app.log",
		},
		Check: CheckConfig{
			RateLimitEnabled: true,
			RateLimitRPS:     200,
			RateLimitBurst:   100,
		},
	}
}
