// Package config provides configuration loading and management for the sync server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiftline/shiftline-sync-server/internal/notify"
)

const (
	// StorageTypeFile stores queue and throttle state in JSON files
	StorageTypeFile = "file"

	// StorageTypeDatabase stores queue and throttle state in SQLite
	StorageTypeDatabase = "database"
)

const (
	// DefaultSyncInterval is used when sync.interval is not configured
	DefaultSyncInterval = 10 * time.Minute
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ServiceName is the name/identifier for this sync service instance
	// Defaults to "default" if not specified
	ServiceName string `yaml:"serviceName,omitempty"`

	// Source is where record sets and notification records are read from
	Source SourceConfig `yaml:"source"`

	// Destination is where record sets are mirrored to. May be empty at
	// startup and set later through the control API.
	Destination *DestinationConfig `yaml:"destination,omitempty"`

	// Sync holds the scheduling settings
	Sync SyncConfig `yaml:"sync,omitempty"`

	// Throttle holds per-kind overrides of the built-in throttle table
	Throttle map[string]ThrottlePolicyConfig `yaml:"throttle,omitempty"`

	// Storage selects the backend for the pending queue and throttle state
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Telemetry holds the metrics settings
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// SourceConfig defines where the service reads its inputs
type SourceConfig struct {
	// Path is the folder holding the exported record sets to mirror
	Path string `yaml:"path"`

	// RecordsPath is the folder holding candidate notification records,
	// one JSON file per notification kind. Defaults to <path>/notifications.
	RecordsPath string `yaml:"recordsPath,omitempty"`
}

// DestinationConfig defines the mirror destination. Exactly one of Path or
// S3 must be set.
type DestinationConfig struct {
	// Path is a local or mounted folder destination
	Path string `yaml:"path,omitempty"`

	// S3 is an S3-compatible object store destination
	S3 *S3Config `yaml:"s3,omitempty"`
}

// S3Config defines S3/MinIO destination settings
type S3Config struct {
	// Endpoint is the S3-compatible endpoint host[:port]
	Endpoint string `yaml:"endpoint"`

	// Bucket is the destination bucket
	Bucket string `yaml:"bucket"`

	// Prefix is an optional object key prefix
	Prefix string `yaml:"prefix,omitempty"`

	// AccessKey is the access key ID
	AccessKey string `yaml:"accessKey"`

	// SecretKeyFile is the path to a file containing the secret key.
	// This is the recommended approach for production deployments.
	SecretKeyFile string `yaml:"secretKeyFile,omitempty"`

	// Insecure disables TLS for the endpoint connection
	Insecure bool `yaml:"insecure,omitempty"`
}

// GetSecretKey returns the S3 secret key using the following priority:
// 1. Read from SecretKeyFile if specified
// 2. Read from the SLS_S3_SECRET_KEY environment variable
//
// The key read from file has leading/trailing whitespace trimmed.
func (s *S3Config) GetSecretKey() (string, error) {
	if s.SecretKeyFile != "" {
		cleanPath := filepath.Clean(s.SecretKeyFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret key from file %s: %w", s.SecretKeyFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envKey := os.Getenv("SLS_S3_SECRET_KEY"); envKey != "" {
		return envKey, nil
	}

	return "", fmt.Errorf(
		"no S3 secret key configured: set secretKeyFile or the SLS_S3_SECRET_KEY environment variable",
	)
}

// SyncConfig defines synchronization scheduling settings
type SyncConfig struct {
	// Interval is the tick interval (e.g., "10m", "1h"). Defaults to 10m.
	Interval string `yaml:"interval,omitempty"`
}

// GetInterval parses the configured sync interval, falling back to the default.
func (s SyncConfig) GetInterval() time.Duration {
	if s.Interval == "" {
		return DefaultSyncInterval
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return DefaultSyncInterval
	}
	return d
}

// ThrottlePolicyConfig overrides the throttle policy for one notification kind
type ThrottlePolicyConfig struct {
	// Interval is the minimum time between sends to a recipient (e.g., "3h")
	Interval string `yaml:"interval"`

	// MaxPerDay caps sends per recipient per local calendar day
	MaxPerDay int `yaml:"maxPerDay"`
}

// StorageConfig selects the persistence backend for queue and throttle state
type StorageConfig struct {
	// Type is "file" (default) or "database"
	Type string `yaml:"type,omitempty"`

	// DataDir is the directory for file-backed state. Defaults to "./data".
	DataDir string `yaml:"dataDir,omitempty"`

	// Database holds settings for the database backend
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// DatabaseConfig defines SQLite settings for the database storage backend
type DatabaseConfig struct {
	// Path is the SQLite database file path
	Path string `yaml:"path"`
}

// TelemetryConfig defines metrics settings
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	// Enabled turns on metric collection and the /metrics route
	Enabled bool `yaml:"enabled,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetServiceName returns the service name, using "default" if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return "default"
	}
	return c.ServiceName
}

// GetStorageType returns the configured storage type, defaulting to file
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetDataDir returns the file-backend data directory, defaulting to ./data
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir == "" {
		return "./data"
	}
	return c.Storage.DataDir
}

// GetRecordsPath returns the notification records folder, defaulting to
// <source.path>/notifications
func (c *Config) GetRecordsPath() string {
	if c.Source.RecordsPath != "" {
		return c.Source.RecordsPath
	}
	return filepath.Join(c.Source.Path, "notifications")
}

// ThrottleTable merges the configured per-kind overrides over the built-in
// throttle table.
func (c *Config) ThrottleTable() (notify.PolicyTable, error) {
	table := notify.DefaultPolicyTable()

	for name, override := range c.Throttle {
		kind, err := notify.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("throttle: %w", err)
		}
		interval, err := time.ParseDuration(override.Interval)
		if err != nil {
			return nil, fmt.Errorf("throttle.%s: interval must be a valid duration: %w", name, err)
		}
		table[kind] = notify.Policy{
			MinInterval: interval,
			MaxPerDay:   override.MaxPerDay,
		}
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	return table, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}

	if err := ValidateDestination(c.Destination); err != nil {
		return err
	}

	if err := validateSync(c.Sync); err != nil {
		return err
	}

	if err := validateStorage(c.Storage); err != nil {
		return err
	}

	// Surface throttle table errors at load time rather than on the first tick
	if _, err := c.ThrottleTable(); err != nil {
		return err
	}

	return nil
}

// ValidateDestination validates a mirror destination. A nil destination is
// allowed at load time; it blocks start() until one is set via the API.
func ValidateDestination(dest *DestinationConfig) error {
	if dest == nil {
		return nil
	}

	if dest.Path == "" && dest.S3 == nil {
		return fmt.Errorf("destination: one of path or s3 must be specified")
	}
	if dest.Path != "" && dest.S3 != nil {
		return fmt.Errorf("destination: only one of path or s3 may be specified")
	}

	if dest.S3 != nil {
		if dest.S3.Endpoint == "" {
			return fmt.Errorf("destination.s3: endpoint is required")
		}
		if dest.S3.Bucket == "" {
			return fmt.Errorf("destination.s3: bucket is required")
		}
		if dest.S3.AccessKey == "" {
			return fmt.Errorf("destination.s3: accessKey is required")
		}
	}

	return nil
}

// validateSync validates the scheduling settings
func validateSync(sc SyncConfig) error {
	if sc.Interval == "" {
		return nil
	}
	d, err := time.ParseDuration(sc.Interval)
	if err != nil {
		return fmt.Errorf("sync.interval must be a valid duration (e.g., '10m', '1h'): %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	return nil
}

// validateStorage validates the storage backend selection
func validateStorage(sc StorageConfig) error {
	switch sc.Type {
	case "", StorageTypeFile:
		return nil
	case StorageTypeDatabase:
		if sc.Database == nil || sc.Database.Path == "" {
			return fmt.Errorf("storage.database.path is required when storage type is database")
		}
		return nil
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q", StorageTypeFile, StorageTypeDatabase, sc.Type)
	}
}
