package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// StoreBackend is the typed backing-store choice, resolved once at startup.
type StoreBackend string

const (
	BackendPostgres StoreBackend = "postgres"
	BackendLevelDB  StoreBackend = "leveldb"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Backing store configuration
	Store StoreConfig `mapstructure:"store"`

	// Ledger bridge configuration
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Redis decision cache configuration
	Redis RedisConfig `mapstructure:"redis"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Human Passport verification configuration
	Passport PassportConfig `mapstructure:"passport"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	ReadTimeout   int    `mapstructure:"read_timeout"`
	WriteTimeout  int    `mapstructure:"write_timeout"`
	IdleTimeout   int    `mapstructure:"idle_timeout"`
	AuthRateLimit int    `mapstructure:"auth_rate_limit"`
}

// StoreConfig holds backing store configuration. Backend is validated and
// fixed during Load; components receive the resolved choice, never the raw
// string.
type StoreConfig struct {
	Backend  StoreBackend   `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb"`
}

// PostgresConfig holds relational backend configuration
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// LevelDBConfig holds embedded backend configuration
type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig holds registry bridge configuration
type LedgerConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	ContractAddress string `mapstructure:"contract_address"`
	CallTimeout     int    `mapstructure:"call_timeout"`
	EventsEnabled   bool   `mapstructure:"events_enabled"`
	PollInterval    int    `mapstructure:"poll_interval"`
	PollBatchSize   int    `mapstructure:"poll_batch_size"`
	MaxBackoff      int    `mapstructure:"max_backoff"`
}

// RedisConfig holds decision cache configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	TokenTTL  int    `mapstructure:"token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// PassportConfig holds Human Passport verification configuration
type PassportConfig struct {
	VerifyURL string `mapstructure:"verify_url"`
	APIKey    string `mapstructure:"api_key"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/medisecure")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 4000)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.auth_rate_limit", 30)

	viper.SetDefault("store.backend", "leveldb")
	viper.SetDefault("store.postgres.host", "localhost")
	viper.SetDefault("store.postgres.port", 5432)
	viper.SetDefault("store.postgres.name", "medisecure")
	viper.SetDefault("store.postgres.user", "medisecure")
	viper.SetDefault("store.postgres.ssl_mode", "disable")
	viper.SetDefault("store.postgres.max_open_conns", 25)
	viper.SetDefault("store.postgres.max_idle_conns", 5)
	viper.SetDefault("store.postgres.conn_max_lifetime", 300)
	viper.SetDefault("store.leveldb.path", "./db/medisecure")

	viper.SetDefault("ledger.call_timeout", 30)
	viper.SetDefault("ledger.events_enabled", true)
	viper.SetDefault("ledger.poll_interval", 5)
	viper.SetDefault("ledger.poll_batch_size", 100)
	viper.SetDefault("ledger.max_backoff", 60)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 30)

	viper.SetDefault("jwt.token_ttl", 43200) // 12 hours
	viper.SetDefault("jwt.issuer", "medisecure")

	viper.SetDefault("passport.verify_url", "https://api.human.tech/passport/verify")

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if endpoint := os.Getenv("LEDGER_RPC_URL"); endpoint != "" {
		config.Ledger.Endpoint = endpoint
	}

	if addr := os.Getenv("CONTRACT_ADDRESS"); addr != "" {
		config.Ledger.ContractAddress = addr
	}

	if key := os.Getenv("HUMAN_PASSPORT_API_KEY"); key != "" {
		config.Passport.APIKey = key
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	switch config.Store.Backend {
	case BackendPostgres:
		if config.Store.Postgres.Password == "" {
			return fmt.Errorf("postgres password is required")
		}
	case BackendLevelDB:
		if config.Store.LevelDB.Path == "" {
			return fmt.Errorf("leveldb path is required")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", config.Store.Backend)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return nil
}
