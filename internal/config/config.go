package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig              `mapstructure:"app"`
	Accounts []models.AccountConfig `mapstructure:"accounts"`
	Phone    PhoneConfig            `mapstructure:"phone"`
	Routing  RoutingConfig          `mapstructure:"routing"`
	Provider ProviderConfig         `mapstructure:"provider"`
	Delivery DeliveryConfig         `mapstructure:"delivery"`
	Retry    RetryConfig            `mapstructure:"retry"`
	Breaker  BreakerConfig          `mapstructure:"breaker"`
	Health   HealthConfig           `mapstructure:"health"`
	Alerting AlertingConfig         `mapstructure:"alerting"`
	Storage  StorageConfig          `mapstructure:"storage"`
	Server   ServerConfig           `mapstructure:"server"`
	Logging  LoggingConfig          `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// PhoneConfig contains phone normalization configuration
type PhoneConfig struct {
	HomeCode      string `mapstructure:"home_code"`      // country code assumed for local numbers
	SecondaryCode string `mapstructure:"secondary_code"` // country code for the secondary mobile pattern
}

// RoutingConfig contains region routing configuration
type RoutingConfig struct {
	SystemRegion      string            `mapstructure:"system_region"`
	DefaultRegion     string            `mapstructure:"default_region"`
	FallbackOrder     []string          `mapstructure:"fallback_order"`
	SenderRegions     map[string]string `mapstructure:"sender_regions"`     // sender role -> region
	CategoryOverrides map[string]string `mapstructure:"category_overrides"` // category -> region
	PrefixRegions     map[string]string `mapstructure:"prefix_regions"`     // phone country code -> region
}

// ProviderConfig contains messaging provider configuration
type ProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	MediaTimeout time.Duration `mapstructure:"media_timeout"`
}

// DeliveryConfig contains delivery worker pool configuration
type DeliveryConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// RetryConfig contains retry scheduling configuration
type RetryConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	CriticalMaxAttempts int           `mapstructure:"critical_max_attempts"`
	BaseDelay           time.Duration `mapstructure:"base_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	BatchLimit          int           `mapstructure:"batch_limit"`
	StaleSendingAfter   time.Duration `mapstructure:"stale_sending_after"`
}

// BreakerConfig contains circuit breaker configuration
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// HealthConfig contains account health monitoring configuration
type HealthConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeNumber      string        `mapstructure:"probe_number"`
	LatencyThreshold time.Duration `mapstructure:"latency_threshold"`
	MetricsWindow    time.Duration `mapstructure:"metrics_window"`
}

// AlertingConfig contains admin alerting configuration
type AlertingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Region      string        `mapstructure:"region"` // out-of-band account used for admin alerts
	AdminPhones []string      `mapstructure:"admin_phones"`
	AdminEmails []string      `mapstructure:"admin_emails"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	SMTP        SMTPConfig    `mapstructure:"smtp"`
}

// SMTPConfig contains outbound email configuration
type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	UseTLS    bool   `mapstructure:"use_tls"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("TS_NOTIFY")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if baseURL := os.Getenv("WHATSAPP_API_URL"); baseURL != "" {
		config.Provider.BaseURL = baseURL
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "ts-cargo-notify")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Phone defaults (Mali home market, China secondary)
	viper.SetDefault("phone.home_code", "223")
	viper.SetDefault("phone.secondary_code", "86")

	// Routing defaults
	viper.SetDefault("routing.system_region", "system")
	viper.SetDefault("routing.default_region", "mali")
	viper.SetDefault("routing.fallback_order", []string{"mali", "chine", "system"})
	viper.SetDefault("routing.prefix_regions", map[string]string{"223": "mali", "86": "chine"})
	viper.SetDefault("routing.category_overrides", map[string]string{"parcel-created": "chine"})

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://wasenderapi.com/api")
	viper.SetDefault("provider.send_timeout", "15s")
	viper.SetDefault("provider.media_timeout", "30s")

	// Delivery defaults
	viper.SetDefault("delivery.workers", 4)
	viper.SetDefault("delivery.queue_size", 1000)

	// Retry defaults
	viper.SetDefault("retry.max_attempts", 10)
	viper.SetDefault("retry.critical_max_attempts", 3)
	viper.SetDefault("retry.base_delay", "30m")
	viper.SetDefault("retry.max_delay", "24h")
	viper.SetDefault("retry.sweep_interval", "1m")
	viper.SetDefault("retry.batch_limit", 100)
	viper.SetDefault("retry.stale_sending_after", "10m")

	// Breaker defaults
	viper.SetDefault("breaker.threshold", 5)
	viper.SetDefault("breaker.cooldown", "300s")

	// Health defaults
	viper.SetDefault("health.enabled", true)
	viper.SetDefault("health.probe_interval", "5m")
	viper.SetDefault("health.probe_timeout", "12s")
	viper.SetDefault("health.latency_threshold", "5s")
	viper.SetDefault("health.metrics_window", "30m")

	// Alerting defaults
	viper.SetDefault("alerting.enabled", true)
	viper.SetDefault("alerting.region", "system")
	viper.SetDefault("alerting.cooldown", "90m")
	viper.SetDefault("alerting.smtp.port", 587)
	viper.SetDefault("alerting.smtp.use_tls", true)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/notifications.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Server defaults
	viper.SetDefault("server.port", 8082)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required")
	}
	if c.Routing.DefaultRegion == "" {
		return fmt.Errorf("routing default region is required")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays are inconsistent")
	}
	if c.Breaker.Threshold <= 0 || c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker threshold and cooldown must be positive")
	}
	if c.Delivery.Workers <= 0 {
		return fmt.Errorf("delivery workers must be positive")
	}
	if c.Health.Enabled && c.Health.ProbeNumber == "" && len(c.Accounts) > 0 {
		return fmt.Errorf("health probe number is required when health monitoring is enabled")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if acc.Region == "" {
			return fmt.Errorf("account entry without region")
		}
		if seen[acc.Region] {
			return fmt.Errorf("duplicate account region %q", acc.Region)
		}
		seen[acc.Region] = true
	}
	return nil
}
