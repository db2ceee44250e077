// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Channels      ChannelsConfig     `mapstructure:"channels"`
	Events        EventsConfig       `mapstructure:"events"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig is optional; an empty address disables the delivery ledger.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// NotificationConfig holds settings for the due-notification worker and its triggers.
type NotificationConfig struct {
	DefaultCountryCode string `mapstructure:"default_country_code"`
	PollInterval       int    `mapstructure:"poll_interval_ms"`
	RunOnStart         bool   `mapstructure:"run_on_start"`
	BatchSize          int    `mapstructure:"batch_size"`
	Concurrency        int    `mapstructure:"concurrency"`
	DispatchTimeout    int    `mapstructure:"dispatch_timeout_ms"`
	ClaimLease         int    `mapstructure:"claim_lease_ms"`
	JobTimeout         int    `mapstructure:"job_timeout_ms"`
	StrictTemplates    bool   `mapstructure:"strict_templates"`
	RateLimitPerSecond int    `mapstructure:"rate_limit_per_second"`
	TriggerToken       string `mapstructure:"trigger_token"`
	LedgerTTL          int    `mapstructure:"ledger_ttl_ms"`
	WorkerID           string `mapstructure:"worker_id"`
}

// ChannelsConfig holds credentials for each outbound messaging channel.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Email    EmailConfig    `mapstructure:"email"`
}

type WhatsAppConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	PhoneNumberID   string `mapstructure:"phone_number_id"`
	AccessToken     string `mapstructure:"access_token"`
	DefaultLanguage string `mapstructure:"default_language"`
}

type SMSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	SenderID string `mapstructure:"sender_id"`
}

type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	FromEmail string `mapstructure:"from_email"`
}

// EventsConfig configures outcome event publishing; no brokers disables it.
type EventsConfig struct {
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
