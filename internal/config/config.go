package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/scoreline-trading/scoreline/pkg/secrets"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Kalshi     KalshiConfig   `mapstructure:"kalshi"`
	ESPN       ESPNConfig     `mapstructure:"espn"`
	Trading    TradingConfig  `mapstructure:"trading"`
	Risk       RiskConfig     `mapstructure:"risk"`
	Database   DatabaseConfig `mapstructure:"database"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	GCP        GCPConfig      `mapstructure:"gcp"`
	Strategies string         `mapstructure:"strategies"`
	Markets    MarketsConfig  `mapstructure:"markets"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type KalshiConfig struct {
	KeyID          string `mapstructure:"key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PrivateKeyPEM  string `mapstructure:"private_key_pem"`
	Environment    string `mapstructure:"environment"` // "sandbox" or "production"

	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	ReconnectDelay int  `mapstructure:"reconnect_delay"`
	MaxReconnects  int  `mapstructure:"max_reconnects"`
}

type ESPNConfig struct {
	Timeout int `mapstructure:"timeout"`
}

type TradingConfig struct {
	PollInterval        float64 `mapstructure:"poll_interval"`         // seconds, live games
	PreGamePollInterval float64 `mapstructure:"pregame_poll_interval"` // seconds, before tip-off
	DryRun              bool    `mapstructure:"dry_run"`
	DispatchRetries     int     `mapstructure:"dispatch_retries"`
}

// RiskConfig mirrors risk.Limits; all monetary values are in cents.
type RiskConfig struct {
	MaxPosition          int `mapstructure:"max_position"`
	MaxDailyLoss         int `mapstructure:"max_daily_loss"`
	MaxExposurePerMarket int `mapstructure:"max_exposure_per_market"`
	MaxTotalExposure     int `mapstructure:"max_total_exposure"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

// MarketsConfig maps feed event IDs to venue tickers. Until market discovery
// is automated this mapping is maintained by hand per game day.
type MarketsConfig struct {
	Mapping map[string]string `mapstructure:"mapping"` // event_id -> ticker
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scoreline")
	}

	// Read environment variables
	v.SetEnvPrefix("SCORELINE")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if set
	overrideFromEnv(&config)

	// Load secrets from GCP if enabled
	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)

	// Kalshi defaults
	v.SetDefault("kalshi.environment", "sandbox")
	v.SetDefault("kalshi.websocket.enabled", false)
	v.SetDefault("kalshi.websocket.reconnect_delay", 5)
	v.SetDefault("kalshi.websocket.max_reconnects", 10)

	// ESPN defaults
	v.SetDefault("espn.timeout", 30)

	// Trading defaults
	v.SetDefault("trading.poll_interval", 30.0)
	v.SetDefault("trading.pregame_poll_interval", 300.0)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.dispatch_retries", 3)

	// Risk defaults (cents)
	v.SetDefault("risk.max_position", 100)
	v.SetDefault("risk.max_daily_loss", 50000)
	v.SetDefault("risk.max_exposure_per_market", 20000)
	v.SetDefault("risk.max_total_exposure", 100000)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scoreline")
	v.SetDefault("database.name", "scoreline")
	v.SetDefault("database.sslmode", "disable")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Strategy directory
	v.SetDefault("strategies", "config/strategies")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	// Secret name defaults
	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.kalshi_key_id", secretNames.KalshiKeyID)
	v.SetDefault("gcp.secret_names.kalshi_private_key", secretNames.KalshiPrivateKey)
	v.SetDefault("gcp.secret_names.database_password", secretNames.DatabasePassword)
}

func overrideFromEnv(config *Config) {
	// Kalshi credentials from environment
	if keyID := os.Getenv("KALSHI_API_KEY_ID"); keyID != "" {
		config.Kalshi.KeyID = keyID
	}
	if keyPath := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); keyPath != "" {
		config.Kalshi.PrivateKeyPath = keyPath
	}
	if keyPEM := os.Getenv("KALSHI_PRIVATE_KEY_PEM"); keyPEM != "" {
		config.Kalshi.PrivateKeyPEM = keyPEM
	}
	if env := os.Getenv("KALSHI_ENVIRONMENT"); env != "" {
		config.Kalshi.Environment = env
	}

	// Database password from environment
	if password := os.Getenv("SCORELINE_DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}

	// GCP configuration from environment
	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets if they're not already set
	if config.Kalshi.KeyID == "" {
		config.Kalshi.KeyID = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.KalshiKeyID, "")
	}
	if config.Kalshi.PrivateKeyPEM == "" {
		config.Kalshi.PrivateKeyPEM = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.KalshiPrivateKey, "")
	}
	if config.Database.Password == "" {
		config.Database.Password = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.DatabasePassword, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
