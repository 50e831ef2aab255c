package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	defaultPort          = 3000
	defaultServerTimeout = 30 * time.Second
	defaultDatabasePath  = "research.db"
	defaultLogLevel      = "info"
	defaultMaxAttempts   = 5
)

// Config is the full service configuration.
type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host        string        `env:"SERVER_HOST" yaml:"host"`
	Port        int           `env:"PORT"        yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout stays zero by default; a finite value would sever
	// long-lived SSE streams.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Address returns the listen address in host:port format.
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Path string `env:"DB_PATH" yaml:"path"`
}

// EngineConfig tunes the retry policy. The empty-response backoff values
// are deliberately configuration, not constants.
type EngineConfig struct {
	MaxAttempts    int           `env:"ENGINE_MAX_ATTEMPTS" yaml:"max_attempts"`
	EmptyRetryBase time.Duration `yaml:"empty_retry_base"`
	EmptyRetryCap  time.Duration `yaml:"empty_retry_cap"`
	// Workers overrides every provider's pool size when positive.
	Workers int `env:"ENGINE_WORKERS" yaml:"workers"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load reads, defaults, overrides, and validates the configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Engine.MaxAttempts <= 0 {
		return errors.New("engine.max_attempts must be positive")
	}
	if c.Engine.Workers < 0 {
		return errors.New("engine.workers must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultServerTimeout
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = defaultMaxAttempts
	}
	if c.Engine.EmptyRetryBase == 0 {
		c.Engine.EmptyRetryBase = 2 * time.Second
	}
	if c.Engine.EmptyRetryCap == 0 {
		c.Engine.EmptyRetryCap = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
