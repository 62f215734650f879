package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// World-state backend names accepted by LedgerConfig.StateBackend
const (
	StateBackendMemory  = "memory"
	StateBackendLevelDB = "leveldb"
)

// Config holds all configuration for the application
type Config struct {
	// Gateway configuration
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Ledger network configuration
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Identity configuration
	Identity IdentityConfig `mapstructure:"identity"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// GatewayConfig holds transaction submission gateway configuration
type GatewayConfig struct {
	// SubmitTimeout bounds the wait between proposal submission and commit
	// confirmation. On expiry the caller sees Timeout and the transaction's
	// fate is unknown.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`

	// MaxAttempts bounds retries of transient connectivity failures.
	// Business failures and concurrency conflicts are never retried here.
	MaxAttempts int `mapstructure:"max_attempts"`

	// BackoffBase is the first retry delay; doubled per attempt up to BackoffMax.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`

	// EndorsementQuorum is the number of peers that must endorse a proposal.
	// Zero means all peers.
	EndorsementQuorum int `mapstructure:"endorsement_quorum"`
}

// LedgerConfig holds ledger network configuration
type LedgerConfig struct {
	ChannelName   string `mapstructure:"channel_name"`
	ChaincodeName string `mapstructure:"chaincode_name"`
	PeerCount     int    `mapstructure:"peer_count"`

	// StateBackend selects the world-state store: "memory" or "leveldb"
	StateBackend string `mapstructure:"state_backend"`
	StatePath    string `mapstructure:"state_path"`
}

// IdentityConfig holds identity and session configuration
type IdentityConfig struct {
	MSPID          string        `mapstructure:"msp_id"`
	TokenSecret    string        `mapstructure:"token_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BootstrapAdmin string        `mapstructure:"bootstrap_admin"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/healthlink")

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
	// Gateway defaults
	viper.SetDefault("gateway.submit_timeout", "30s")
	viper.SetDefault("gateway.max_attempts", 3)
	viper.SetDefault("gateway.backoff_base", "200ms")
	viper.SetDefault("gateway.backoff_max", "3s")
	viper.SetDefault("gateway.endorsement_quorum", 0)

	// Ledger defaults
	viper.SetDefault("ledger.channel_name", "healthlink")
	viper.SetDefault("ledger.chaincode_name", "ehr")
	viper.SetDefault("ledger.peer_count", 3)
	viper.SetDefault("ledger.state_backend", "memory")
	viper.SetDefault("ledger.state_path", "./data/worldstate")

	// Identity defaults
	viper.SetDefault("identity.msp_id", "HealthLinkMSP")
	viper.SetDefault("identity.token_ttl", "1h")
	viper.SetDefault("identity.bootstrap_admin", "admin")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.listen_addr", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		config.Identity.TokenSecret = secret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}

	if statePath := os.Getenv("STATE_PATH"); statePath != "" {
		config.Ledger.StatePath = statePath
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Identity.TokenSecret == "" {
		return fmt.Errorf("identity token secret is required")
	}

	if config.Ledger.PeerCount < 1 {
		return fmt.Errorf("at least one peer is required, got %d", config.Ledger.PeerCount)
	}

	if config.Gateway.EndorsementQuorum < 0 || config.Gateway.EndorsementQuorum > config.Ledger.PeerCount {
		return fmt.Errorf("endorsement quorum %d exceeds peer count %d",
			config.Gateway.EndorsementQuorum, config.Ledger.PeerCount)
	}

	switch config.Ledger.StateBackend {
	case StateBackendMemory, StateBackendLevelDB:
	default:
		return fmt.Errorf("unknown state backend: %s", config.Ledger.StateBackend)
	}

	if config.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("gateway max attempts must be positive")
	}

	return nil
}
