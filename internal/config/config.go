package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for the DriftKV listing service
type Config struct {
	// Server configuration
	Listen         string `mapstructure:"listen"`          // HTTP API
	ProtocolListen string `mapstructure:"protocol_listen"` // binary protocol
	DataDir        string `mapstructure:"data_dir"`
	LogLevel       string `mapstructure:"log_level"`

	// Metadata store configuration
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Enumeration engine configuration
	Enumerator EnumeratorConfig `mapstructure:"enumerator"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Audit configuration
	Audit AuditConfig `mapstructure:"audit"`
}

// MetadataConfig selects the metadata storage engine
type MetadataConfig struct {
	Engine     string `mapstructure:"engine"`      // badger or pebble
	SyncWrites bool   `mapstructure:"sync_writes"` // badger only
}

// EnumeratorConfig selects and tunes the enumeration engine
type EnumeratorConfig struct {
	Engine    string `mapstructure:"engine"`     // local or s3
	BatchSize int    `mapstructure:"batch_size"` // keys per streamed batch
	// DefaultTimeout bounds enumerations whose request carries no deadline,
	// in seconds. Zero means unbounded.
	DefaultTimeout int `mapstructure:"default_timeout"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures the remote s3 enumeration engine
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// AuditConfig defines request audit logging configuration
type AuditConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Load loads configuration from flags, config file, and environment
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("DRIFTKV")
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate and setup defaults
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("listen", ":8098")
	v.SetDefault("protocol_listen", ":8087")
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")

	// Metadata defaults
	v.SetDefault("metadata.engine", "badger")
	v.SetDefault("metadata.sync_writes", false)

	// Enumerator defaults
	v.SetDefault("enumerator.engine", "local")
	v.SetDefault("enumerator.batch_size", 100)
	v.SetDefault("enumerator.default_timeout", 60)
	v.SetDefault("enumerator.s3.region", "us-east-1")

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	// Audit defaults
	v.SetDefault("audit.enable", true)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":          "listen",
		"protocol-listen": "protocol_listen",
		"data-dir":        "data_dir",
		"log-level":       "log_level",
		"metadata-engine": "metadata.engine",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	// Validate that data_dir is configured (either via flag, config file, or env var)
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or DRIFTKV_DATA_DIR environment variable")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	switch cfg.Metadata.Engine {
	case "badger", "pebble":
	default:
		return fmt.Errorf("unknown metadata engine %q (want badger or pebble)", cfg.Metadata.Engine)
	}

	switch cfg.Enumerator.Engine {
	case "local":
	case "s3":
		if cfg.Enumerator.S3.Endpoint == "" {
			return fmt.Errorf("enumerator.s3.endpoint is required for the s3 engine")
		}
	default:
		return fmt.Errorf("unknown enumerator engine %q (want local or s3)", cfg.Enumerator.Engine)
	}

	if cfg.Enumerator.BatchSize <= 0 {
		return fmt.Errorf("enumerator.batch_size must be positive")
	}

	return nil
}
