package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
)

// DefaultEnvPrefix is the default prefix for environment variables
const (
	DefaultEnvPrefix = "DICE_"
	DefaultListen    = ":8080"
	DefaultMaxConns  = 10
	DefaultNATSAge   = 24 * time.Hour
	DefaultRedisLen  = 100000
	DefaultTimeout   = 10 * time.Second
)

// Config represents the node configuration
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// Ledger storage. DatabaseURL selects PostgreSQL, otherwise LedgerPath
	// selects an embedded LevelDB directory, otherwise the ledger is in memory.
	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int    `yaml:"db_max_conns"`
	LedgerPath  string `yaml:"ledger_path"`

	// Event publishing; an empty URL disables NATS
	NATSURL    string        `yaml:"nats_url"`
	NATSMaxAge time.Duration `yaml:"nats_max_age"`

	// Redis stream publishing; an empty URL disables it
	RedisURL    string `yaml:"redis_url"`
	RedisMaxLen int64  `yaml:"redis_max_len"`

	// Path to the house keypair file (JSON array of 64 bytes)
	HouseKeypair string `yaml:"house_keypair"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MinClientVersion string        `yaml:"min_client_version"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`

	// Lamports handed out per airdrop request; zero disables the faucet
	FaucetLamports uint64 `yaml:"faucet_lamports"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ListenAddr:       DefaultListen,
		DBMaxConns:       DefaultMaxConns,
		NATSMaxAge:       DefaultNATSAge,
		RedisMaxLen:      DefaultRedisLen,
		LogLevel:         "info",
		LogFormat:        "text",
		MinClientVersion: protocol.MinCompatibleVersion,
		RequestTimeout:   DefaultTimeout,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.NATSMaxAge < 0 {
		return fmt.Errorf("NATS max age must be non-negative")
	}
	if c.RedisMaxLen < 0 {
		return fmt.Errorf("Redis max length must be non-negative")
	}
	if c.HouseKeypair == "" {
		return fmt.Errorf("house keypair is required")
	}
	if err := ValidateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := ValidateLogFormat(c.LogFormat); err != nil {
		return err
	}
	if err := ValidateVersion(c.MinClientVersion); err != nil {
		return fmt.Errorf("invalid min client version: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from an optional YAML file and environment
// variables, environment taking precedence.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	loader := NewEnvLoader(DefaultEnvPrefix)
	loader.LoadAll()
	return LoadWith(loader)
}

// LoadWith builds the configuration from an already populated loader
func LoadWith(loader *EnvLoader) (*Config, error) {
	cfg := Default()
	var err error

	if path := loader.GetString("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = loader.GetString("LISTEN_ADDR", cfg.ListenAddr)

	cfg.DatabaseURL = loader.GetString("DATABASE_URL", cfg.DatabaseURL)
	if cfg.DBMaxConns, err = loader.GetInt("DB_MAX_CONNS", cfg.DBMaxConns); err != nil {
		return nil, fmt.Errorf("invalid max connections: %w", err)
	}
	cfg.LedgerPath = loader.GetString("LEDGER_PATH", cfg.LedgerPath)

	cfg.NATSURL = loader.GetString("NATS_URL", cfg.NATSURL)
	if cfg.NATSMaxAge, err = loader.GetDuration("NATS_MAX_AGE", cfg.NATSMaxAge); err != nil {
		return nil, fmt.Errorf("invalid NATS max age: %w", err)
	}

	cfg.RedisURL = loader.GetString("REDIS_URL", cfg.RedisURL)
	if cfg.RedisMaxLen, err = loader.GetInt64("REDIS_MAX_LEN", cfg.RedisMaxLen); err != nil {
		return nil, fmt.Errorf("invalid Redis max length: %w", err)
	}

	cfg.HouseKeypair = loader.GetString("HOUSE_KEYPAIR", cfg.HouseKeypair)

	if cfg.LogLevel, err = loader.GetStringValidated("LOG_LEVEL", cfg.LogLevel, ValidateLogLevel); err != nil {
		return nil, err
	}
	if cfg.LogFormat, err = loader.GetStringValidated("LOG_FORMAT", cfg.LogFormat, ValidateLogFormat); err != nil {
		return nil, err
	}

	if cfg.MinClientVersion, err = loader.GetStringValidated("MIN_CLIENT_VERSION", cfg.MinClientVersion, ValidateNotEmpty, ValidateVersion); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = loader.GetDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}

	if cfg.FaucetLamports, err = loader.GetUint64("FAUCET_LAMPORTS", cfg.FaucetLamports); err != nil {
		return nil, fmt.Errorf("invalid faucet lamports: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// UsesPostgres reports whether the ledger is backed by PostgreSQL
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// PostgresConfig returns the ledger store configuration
func (c *Config) PostgresConfig() ledger.PostgresConfig {
	return ledger.PostgresConfig{
		URL:         c.DatabaseURL,
		MaxConns:    int32(c.DBMaxConns),
		MaxIdleTime: 3 * time.Minute,
		HealthCheck: 5 * time.Second,
	}
}

// NATSConfig returns the event publisher configuration
func (c *Config) NATSConfig() events.NATSConfig {
	return events.NATSConfig{
		URL:         c.NATSURL,
		MaxAge:      c.NATSMaxAge,
		StorageType: nats.FileStorage,
	}
}

// RedisConfig returns the Redis stream publisher configuration
func (c *Config) RedisConfig() events.RedisConfig {
	return events.RedisConfig{
		URL:    c.RedisURL,
		MaxLen: c.RedisMaxLen,
	}
}

// NewLogger builds the process logger from the log settings
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
