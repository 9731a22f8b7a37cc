// Package config loads TOML configuration with environment variable override.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/savacoop/saccocore/pkg/logger"
)

// Config is the root configuration for the saccod process.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    logger.Config   `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// HTTPConfig configures the gin HTTP server.
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig configures the GORM connection pool.
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
}

// RedisConfig configures the redis client used for sweep guards.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig configures producers and consumers.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	GroupID           string   `mapstructure:"group_id"`
	NotificationTopic string   `mapstructure:"notification_topic"`
	LedgerEventTopic  string   `mapstructure:"ledger_event_topic"`
	MaxRetries        int      `mapstructure:"max_retries"`
	RetryBackoff      int      `mapstructure:"retry_backoff"`
	SessionTimeout    int      `mapstructure:"session_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PolicyConfig holds cooperative lending policy defaults. Values here feed the
// loan eligibility evaluator and the arrears sweep.
type PolicyConfig struct {
	MinShareCapital         string `mapstructure:"min_share_capital"`
	MinMembershipMonths     int    `mapstructure:"min_membership_months"`
	MinRecentDeposits       int    `mapstructure:"min_recent_deposits"`
	DepositWindowMonths     int    `mapstructure:"deposit_window_months"`
	DebtToIncomeRatio       string `mapstructure:"debt_to_income_ratio"`
	ArrearsDefaultThreshold int    `mapstructure:"arrears_default_threshold"`
	SweepHourUTC            int    `mapstructure:"sweep_hour_utc"`
	DividendBatchSize       int    `mapstructure:"dividend_batch_size"`
}

// RateLimitConfig throttles API callers by client IP.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rate    int  `mapstructure:"rate"`
	Period  int  `mapstructure:"period"`
	Burst   int  `mapstructure:"burst"`
}

// GatewayConfig bounds retries against the mobile money gateway.
type GatewayConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	InitialBackoff int `mapstructure:"initial_backoff"`
	MaxElapsedTime int `mapstructure:"max_elapsed_time"`
}

// Load reads the TOML file at path into cfg. Environment variables prefixed
// with SACCO_ override file values (SACCO_DATABASE_DSN, SACCO_HTTP_PORT, ...).
func Load(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("SACCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "saccod")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.notification_topic", "sacco.notifications")
	v.SetDefault("kafka.ledger_event_topic", "sacco.ledger.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.session_timeout", 30)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/saccod.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("policy.min_share_capital", "5000")
	v.SetDefault("policy.min_membership_months", 6)
	v.SetDefault("policy.min_recent_deposits", 2)
	v.SetDefault("policy.deposit_window_months", 3)
	v.SetDefault("policy.debt_to_income_ratio", "0.6667")
	v.SetDefault("policy.arrears_default_threshold", 90)
	v.SetDefault("policy.sweep_hour_utc", 2)
	v.SetDefault("policy.dividend_batch_size", 100)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rate", 50)
	v.SetDefault("ratelimit.period", 1)
	v.SetDefault("ratelimit.burst", 100)

	v.SetDefault("gateway.max_attempts", 5)
	v.SetDefault("gateway.initial_backoff", 500)
	v.SetDefault("gateway.max_elapsed_time", 60)
}
