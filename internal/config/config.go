package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Backend kinds.
const (
	BackendElasticsearch = "elasticsearch"
	BackendBleve         = "bleve"
	BackendSQLite        = "sqlite"
)

// ProjectConfigName is the per-directory configuration file.
const ProjectConfigName = ".rowbulk.yaml"

// Config is the complete rowbulk configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Source     SourceConfig     `yaml:"source" json:"source"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Bulk       BulkConfig       `yaml:"bulk" json:"bulk"`
	Projection ProjectionConfig `yaml:"projection" json:"projection"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SourceConfig selects the table whose rows are indexed.
type SourceConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Table  string `yaml:"table" json:"table"`

	// RowTypeOID resolves the relation through its composite row type
	// instead of Table. Postgres only.
	RowTypeOID uint32 `yaml:"row_type_oid" json:"row_type_oid"`
}

// BackendConfig selects where documents are submitted.
type BackendConfig struct {
	// Kind is "elasticsearch", "bleve" or "sqlite".
	Kind string `yaml:"kind" json:"kind"`
	// Index is the target index name.
	Index string `yaml:"index" json:"index"`

	// Elasticsearch settings.
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Username string        `yaml:"username" json:"username"`
	Password string        `yaml:"password" json:"-"`
	Compress bool          `yaml:"compress" json:"compress"`
	OpType   string        `yaml:"op_type" json:"op_type"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// Path is where local backends keep their data. Empty means a
	// subdirectory of data_dir.
	Path string `yaml:"path" json:"path"`
}

// BulkConfig tunes batching and backpressure of the submission channel.
type BulkConfig struct {
	BatchSize         int     `yaml:"batch_size" json:"batch_size"`
	FlushBytes        int     `yaml:"flush_bytes" json:"flush_bytes"`
	BufferBytes       int64   `yaml:"buffer_bytes" json:"buffer_bytes"`
	Workers           int     `yaml:"workers" json:"workers"`
	QueueDepth        int     `yaml:"queue_depth" json:"queue_depth"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// ProjectionConfig controls how rows become documents.
type ProjectionConfig struct {
	// UnknownBuiltin is "error" (default) or "false", which writes boolean
	// false for built-in types without a mapping.
	UnknownBuiltin string `yaml:"unknown_builtin" json:"unknown_builtin"`
}

// LoggingConfig configures the log level.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Source: SourceConfig{
			Driver: DriverPostgres,
		},
		Backend: BackendConfig{
			Kind:    BackendElasticsearch,
			OpType:  "create",
			Timeout: 30 * time.Second,
		},
		Bulk: BulkConfig{
			BatchSize:   500,
			FlushBytes:  5 << 20,
			BufferBytes: 64 << 20,
			Workers:     2,
			QueueDepth:  4,
		},
		Projection: ProjectionConfig{
			UnknownBuiltin: "error",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".rowbulk")
	}
	return filepath.Join(home, ".rowbulk")
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/rowbulk/config.yaml when XDG_CONFIG_HOME is set,
// ~/.config/rowbulk/config.yaml otherwise.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rowbulk", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "rowbulk", "config.yaml")
	}
	return filepath.Join(home, ".config", "rowbulk", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir. Later sources override earlier ones:
//  1. Defaults
//  2. User config (~/.config/rowbulk/config.yaml)
//  3. Project config (.rowbulk.yaml in dir)
//  4. Environment variables (ROWBULK_*)
//
// CLI flags are applied by the caller, which should call Validate again.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	// Source
	if other.Source.Driver != "" {
		c.Source.Driver = other.Source.Driver
	}
	if other.Source.DSN != "" {
		c.Source.DSN = other.Source.DSN
	}
	if other.Source.Table != "" {
		c.Source.Table = other.Source.Table
	}
	if other.Source.RowTypeOID != 0 {
		c.Source.RowTypeOID = other.Source.RowTypeOID
	}

	// Backend
	if other.Backend.Kind != "" {
		c.Backend.Kind = other.Backend.Kind
	}
	if other.Backend.Index != "" {
		c.Backend.Index = other.Backend.Index
	}
	if other.Backend.Endpoint != "" {
		c.Backend.Endpoint = other.Backend.Endpoint
	}
	if other.Backend.Username != "" {
		c.Backend.Username = other.Backend.Username
	}
	if other.Backend.Password != "" {
		c.Backend.Password = other.Backend.Password
	}
	// compress is a bool: a file can only turn it on.
	if other.Backend.Compress {
		c.Backend.Compress = true
	}
	if other.Backend.OpType != "" {
		c.Backend.OpType = other.Backend.OpType
	}
	if other.Backend.Timeout != 0 {
		c.Backend.Timeout = other.Backend.Timeout
	}
	if other.Backend.Path != "" {
		c.Backend.Path = other.Backend.Path
	}

	// Bulk
	if other.Bulk.BatchSize != 0 {
		c.Bulk.BatchSize = other.Bulk.BatchSize
	}
	if other.Bulk.FlushBytes != 0 {
		c.Bulk.FlushBytes = other.Bulk.FlushBytes
	}
	if other.Bulk.BufferBytes != 0 {
		c.Bulk.BufferBytes = other.Bulk.BufferBytes
	}
	if other.Bulk.Workers != 0 {
		c.Bulk.Workers = other.Bulk.Workers
	}
	if other.Bulk.QueueDepth != 0 {
		c.Bulk.QueueDepth = other.Bulk.QueueDepth
	}
	if other.Bulk.RequestsPerSecond != 0 {
		c.Bulk.RequestsPerSecond = other.Bulk.RequestsPerSecond
	}

	if other.Projection.UnknownBuiltin != "" {
		c.Projection.UnknownBuiltin = other.Projection.UnknownBuiltin
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies ROWBULK_* environment variables. Unlike files,
// env vars can set explicit zero values.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"ROWBULK_DATA_DIR":         &c.DataDir,
		"ROWBULK_SOURCE_DRIVER":    &c.Source.Driver,
		"ROWBULK_SOURCE_DSN":       &c.Source.DSN,
		"ROWBULK_SOURCE_TABLE":     &c.Source.Table,
		"ROWBULK_BACKEND_KIND":     &c.Backend.Kind,
		"ROWBULK_BACKEND_INDEX":    &c.Backend.Index,
		"ROWBULK_BACKEND_ENDPOINT": &c.Backend.Endpoint,
		"ROWBULK_BACKEND_USERNAME": &c.Backend.Username,
		"ROWBULK_BACKEND_PASSWORD": &c.Backend.Password,
		"ROWBULK_BACKEND_OP_TYPE":  &c.Backend.OpType,
		"ROWBULK_BACKEND_PATH":     &c.Backend.Path,
		"ROWBULK_UNKNOWN_BUILTIN":  &c.Projection.UnknownBuiltin,
		"ROWBULK_LOG_LEVEL":        &c.Logging.Level,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ROWBULK_BATCH_SIZE":  &c.Bulk.BatchSize,
		"ROWBULK_FLUSH_BYTES": &c.Bulk.FlushBytes,
		"ROWBULK_WORKERS":     &c.Bulk.Workers,
		"ROWBULK_QUEUE_DEPTH": &c.Bulk.QueueDepth,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("ROWBULK_BUFFER_BYTES"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("ROWBULK_BUFFER_BYTES: %w", err)
		}
		c.Bulk.BufferBytes = n
	}
	if v := os.Getenv("ROWBULK_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("ROWBULK_REQUESTS_PER_SECOND: %w", err)
		}
		c.Bulk.RequestsPerSecond = f
	}
	if v := os.Getenv("ROWBULK_ROW_TYPE_OID"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("ROWBULK_ROW_TYPE_OID: %w", err)
		}
		c.Source.RowTypeOID = uint32(n)
	}
	if v := os.Getenv("ROWBULK_BACKEND_COMPRESS"); v != "" {
		c.Backend.Compress = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("ROWBULK_BACKEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ROWBULK_BACKEND_TIMEOUT: %w", err)
		}
		c.Backend.Timeout = d
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
// Connection settings (dsn, table, index) are checked by the commands that
// need them.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("source.driver must be 'postgres' or 'sqlite', got %q", c.Source.Driver)
	}
	if c.Source.Driver == DriverSQLite && c.Source.RowTypeOID != 0 {
		return fmt.Errorf("source.row_type_oid is only supported by the postgres driver")
	}

	switch c.Backend.Kind {
	case BackendElasticsearch, BackendBleve, BackendSQLite:
	default:
		return fmt.Errorf("backend.kind must be 'elasticsearch', 'bleve' or 'sqlite', got %q", c.Backend.Kind)
	}
	if c.Backend.OpType != "create" && c.Backend.OpType != "index" {
		return fmt.Errorf("backend.op_type must be 'create' or 'index', got %q", c.Backend.OpType)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be non-negative, got %s", c.Backend.Timeout)
	}

	if c.Bulk.BatchSize < 1 {
		return fmt.Errorf("bulk.batch_size must be at least 1, got %d", c.Bulk.BatchSize)
	}
	if c.Bulk.FlushBytes < 1 {
		return fmt.Errorf("bulk.flush_bytes must be at least 1, got %d", c.Bulk.FlushBytes)
	}
	if c.Bulk.BufferBytes < int64(c.Bulk.FlushBytes) {
		return fmt.Errorf("bulk.buffer_bytes (%d) must be at least bulk.flush_bytes (%d)", c.Bulk.BufferBytes, c.Bulk.FlushBytes)
	}
	if c.Bulk.Workers < 1 {
		return fmt.Errorf("bulk.workers must be at least 1, got %d", c.Bulk.Workers)
	}
	if c.Bulk.QueueDepth < 0 {
		return fmt.Errorf("bulk.queue_depth must be non-negative, got %d", c.Bulk.QueueDepth)
	}
	if c.Bulk.RequestsPerSecond < 0 {
		return fmt.Errorf("bulk.requests_per_second must be non-negative, got %g", c.Bulk.RequestsPerSecond)
	}

	switch c.Projection.UnknownBuiltin {
	case "error", "false":
	default:
		return fmt.Errorf("projection.unknown_builtin must be 'error' or 'false', got %q", c.Projection.UnknownBuiltin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// LocalBackendPath returns where a local backend keeps its data.
func (c *Config) LocalBackendPath() string {
	if c.Backend.Path != "" {
		return c.Backend.Path
	}
	return filepath.Join(c.DataDir, "indexes")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Backend.Password != "" {
		out.Backend.Password = "********"
	}
	return &out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
