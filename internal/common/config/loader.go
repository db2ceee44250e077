// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// on top and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env file is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("notifications.run_on_start", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are usually only present in the environment.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Notifications.TriggerToken, "NOTIFICATIONS_TRIGGER_TOKEN")
	setIfEmpty(&cfg.Notifications.DefaultCountryCode, "DEFAULT_COUNTRY_CODE")
	setIfEmpty(&cfg.Notifications.WorkerID, "WORKER_ID")

	setIfEmpty(&cfg.Channels.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setIfEmpty(&cfg.Channels.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")

	setIfEmpty(&cfg.Database.Postgres.Host, "DB_HOST")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Address, "REDIS_ADDRESS")

	if len(cfg.Events.Kafka.Brokers) == 0 {
		if val := os.Getenv("KAFKA_BROKERS"); val != "" {
			for _, b := range strings.Split(val, ",") {
				if b = strings.TrimSpace(b); b != "" {
					cfg.Events.Kafka.Brokers = append(cfg.Events.Kafka.Brokers, b)
				}
			}
		}
	}
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "kennel-notifications"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	n := &cfg.Notifications
	if n.DefaultCountryCode == "" {
		n.DefaultCountryCode = "972"
	}
	n.DefaultCountryCode = strings.TrimPrefix(n.DefaultCountryCode, "+")
	if n.PollInterval == 0 {
		n.PollInterval = 60000
	}
	if n.BatchSize == 0 {
		n.BatchSize = 100
	}
	if n.Concurrency == 0 {
		n.Concurrency = 1
	}
	if n.DispatchTimeout == 0 {
		n.DispatchTimeout = 10000
	}
	if n.ClaimLease == 0 {
		n.ClaimLease = 300000
	}
	if n.LedgerTTL == 0 {
		n.LedgerTTL = int((7 * 24 * time.Hour).Milliseconds())
	}

	if cfg.Channels.WhatsApp.BaseURL == "" {
		cfg.Channels.WhatsApp.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Channels.WhatsApp.DefaultLanguage == "" {
		cfg.Channels.WhatsApp.DefaultLanguage = "he"
	}
	if cfg.Events.Kafka.Topic == "" {
		cfg.Events.Kafka.Topic = "notification-outcomes"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	cc := cfg.Notifications.DefaultCountryCode
	if len(cc) == 0 || len(cc) > 3 || strings.Trim(cc, "0123456789") != "" || cc[0] == '0' {
		return fmt.Errorf("notifications.default_country_code must be 1-3 digits, got %q", cc)
	}
	if cfg.Notifications.Concurrency < 1 {
		return fmt.Errorf("notifications.concurrency must be positive")
	}
	if cfg.Notifications.RateLimitPerSecond < 0 {
		return fmt.Errorf("notifications.rate_limit_per_second must not be negative")
	}

	ch := cfg.Channels
	if !ch.WhatsApp.Enabled && !ch.SMS.Enabled && !ch.Email.Enabled {
		return fmt.Errorf("at least one of channels.whatsapp, channels.sms, channels.email must be enabled")
	}
	if ch.WhatsApp.Enabled && (ch.WhatsApp.PhoneNumberID == "" || ch.WhatsApp.AccessToken == "") {
		return fmt.Errorf("channels.whatsapp requires phone_number_id and access_token")
	}
	if ch.SMS.Enabled && ch.SMS.Region == "" {
		return fmt.Errorf("channels.sms.region is required")
	}
	if ch.Email.Enabled && (ch.Email.Region == "" || ch.Email.FromEmail == "") {
		return fmt.Errorf("channels.email requires region and from_email")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
