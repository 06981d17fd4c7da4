package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Escrow        EscrowConfig        `mapstructure:"escrow"`
	Compliance    ComplianceConfig    `mapstructure:"compliance"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Payouts       PayoutsConfig       `mapstructure:"payouts"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	PublicURL       string        `mapstructure:"public_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the lib/pq key/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueDB  int    `mapstructure:"queue_db"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// EscrowConfig controls fee and timing rules for held funds.
type EscrowConfig struct {
	FeeRate            string        `mapstructure:"fee_rate"`
	Currency           string        `mapstructure:"currency"`
	AutoReleaseAfter   time.Duration `mapstructure:"auto_release_after"`
	LateCancelWindow   time.Duration `mapstructure:"late_cancel_window"`
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`
}

type ComplianceConfig struct {
	WarningThreshold    int `mapstructure:"warning_threshold"`
	SuspensionThreshold int `mapstructure:"suspension_threshold"`
	NoShowSuspension    int `mapstructure:"no_show_suspension"`
}

type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CronSpec        string        `mapstructure:"cron_spec"`
	SecretHash      string        `mapstructure:"secret_hash"`
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	IncompleteAfter time.Duration `mapstructure:"incomplete_after"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	ReminderEvery   time.Duration `mapstructure:"reminder_every"`
}

type PaymentsConfig struct {
	VerifyAttempts int           `mapstructure:"verify_attempts"`
	VerifyBackoff  time.Duration `mapstructure:"verify_backoff"`
	VerifyRPS      float64       `mapstructure:"verify_rps"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout"`

	Paystack PaystackConfig `mapstructure:"paystack"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
}

type PaystackConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type NotificationsConfig struct {
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type PayoutsConfig struct {
	InstitutionBIC  string `mapstructure:"institution_bic"`
	InstitutionName string `mapstructure:"institution_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "gigbook")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue_db", 1)

	v.SetDefault("jwt.secret_key", "")

	v.SetDefault("escrow.fee_rate", "0.10")
	v.SetDefault("escrow.currency", "NGN")
	v.SetDefault("escrow.auto_release_after", 24*time.Hour)
	v.SetDefault("escrow.late_cancel_window", 24*time.Hour)
	v.SetDefault("escrow.transaction_timeout", 10*time.Second)

	v.SetDefault("compliance.warning_threshold", 3)
	v.SetDefault("compliance.suspension_threshold", 5)
	v.SetDefault("compliance.no_show_suspension", 2)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron_spec", "@every 15m")
	v.SetDefault("scheduler.secret_hash", "")
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.batch_size", 500)
	v.SetDefault("scheduler.incomplete_after", 48*time.Hour)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)
	v.SetDefault("scheduler.reminder_every", 24*time.Hour)

	v.SetDefault("payments.verify_attempts", 4)
	v.SetDefault("payments.verify_backoff", 500*time.Millisecond)
	v.SetDefault("payments.verify_rps", 5.0)
	v.SetDefault("payments.verify_timeout", 10*time.Second)
	v.SetDefault("payments.paystack.base_url", "https://api.paystack.co")
	v.SetDefault("payments.paystack.secret_key", "")
	v.SetDefault("payments.paystack.webhook_secret", "")
	v.SetDefault("payments.stripe.secret_key", "")
	v.SetDefault("payments.stripe.webhook_secret", "")

	v.SetDefault("notifications.queue", "notifications")
	v.SetDefault("notifications.concurrency", 10)
	v.SetDefault("notifications.max_retry", 5)

	v.SetDefault("payouts.institution_bic", "GIGBNGLA")
	v.SetDefault("payouts.institution_name", "Gigbook Escrow")
}

// Load reads an optional YAML config file, lets environment variables override
// it (DATABASE_HOST for database.host and so on) and unmarshals the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
