// Package config loads wikisearch configuration from defaults, YAML files
// and WIKISEARCH_* environment variables.
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

// Config is the complete wikisearch configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Reindex  ReindexConfig  `yaml:"reindex" json:"reindex"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds the metadata database, physical indexes and lock files.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Database overrides the metadata database path (default: <data_dir>/wikisearch.db).
	Database string `yaml:"database" json:"database"`
}

// IndexConfig configures the index service and generation naming.
type IndexConfig struct {
	// Prefix is prepended to every generation name to form the physical index name.
	Prefix string `yaml:"prefix" json:"prefix"`
	// DefaultName names the bootstrap generation created when nothing is current.
	DefaultName string `yaml:"default_name" json:"default_name"`
	// Timeout bounds every index service call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RefreshInterval and Replicas are the fallback settings when the
	// live values cannot be read before a bulk load.
	RefreshInterval string `yaml:"refresh_interval" json:"refresh_interval"`
	Replicas        int    `yaml:"replicas" json:"replicas"`
	// OpenIndexes caps how many physical indexes stay open at once.
	OpenIndexes int `yaml:"open_indexes" json:"open_indexes"`
}

// ReindexConfig configures full rebuilds.
type ReindexConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Percent samples the indexable ids (0-100).
	Percent   int           `yaml:"percent" json:"percent"`
	SoftLimit time.Duration `yaml:"soft_limit" json:"soft_limit"`
	HardLimit time.Duration `yaml:"hard_limit" json:"hard_limit"`
	// ExcludePrefixes marks slug segments that are never indexable.
	ExcludePrefixes []string `yaml:"exclude_prefixes" json:"exclude_prefixes"`
	Strict          bool     `yaml:"strict" json:"strict"`
	// ChunksPerSecond throttles bulk writes; 0 disables throttling.
	ChunksPerSecond float64 `yaml:"chunks_per_second" json:"chunks_per_second"`
}

// ScheduleConfig configures the periodic rebuild run by `serve`.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron"`
}

// NotifyConfig configures operator notifications.
type NotifyConfig struct {
	// SiteName is used in notification subjects.
	SiteName string   `yaml:"site_name" json:"site_name"`
	SMTPHost string   `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port" json:"smtp_port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"-"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
}

// ServerConfig configures `serve`.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// FiltersFile is a YAML facet definition file kept in sync while serving.
	FiltersFile string `yaml:"filters_file" json:"filters_file"`
	Workers     int    `yaml:"workers" json:"workers"`
}

// DefaultExcludePrefixes are the talk and user namespaces.
var DefaultExcludePrefixes = []string{
	"Talk:",
	"User:",
	"User_talk:",
	"Template_talk:",
	"Project_talk:",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Index: IndexConfig{
			Prefix:          "wiki",
			DefaultName:     "main_index",
			Timeout:         30 * time.Second,
			RefreshInterval: "1s",
			Replicas:        1,
			OpenIndexes:     8,
		},
		Reindex: ReindexConfig{
			ChunkSize:       1000,
			Percent:         100,
			SoftLimit:       time.Hour,
			HardLimit:       time.Hour + 5*time.Minute,
			ExcludePrefixes: append([]string(nil), DefaultExcludePrefixes...),
		},
		Schedule: ScheduleConfig{
			Cron: "0 3 * * 0",
		},
		Notify: NotifyConfig{
			SiteName: "wiki",
			SMTPPort: 25,
		},
		Server: ServerConfig{
			LogLevel: "info",
			Workers:  1,
		},
	}
}

// DatabasePath returns the metadata database path.
func (c *Config) DatabasePath() string {
	if c.Paths.Database != "" {
		return c.Paths.Database
	}
	return filepath.Join(c.Paths.DataDir, "wikisearch.db")
}

// IndexDir returns the directory holding physical indexes.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.DataDir, "indexes")
}

// LockDir returns the directory holding job lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.DataDir, "locks")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".wikisearch")
	}
	return filepath.Join(home, ".wikisearch")
}

// GetUserConfigPath returns the user configuration file path:
//   - $XDG_CONFIG_HOME/wikisearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/wikisearch/config.yaml
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wikisearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "wikisearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "wikisearch", "config.yaml")
}

// Load loads configuration for the given working directory.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/wikisearch/config.yaml)
//  3. Project config (.wikisearch.yaml in dir)
//  4. Environment variables (WIKISEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".wikisearch.yaml", ".wikisearch.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file, then env.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

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

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = expandHome(other.Paths.DataDir)
	}
	if other.Paths.Database != "" {
		c.Paths.Database = expandHome(other.Paths.Database)
	}

	if other.Index.Prefix != "" {
		c.Index.Prefix = other.Index.Prefix
	}
	if other.Index.DefaultName != "" {
		c.Index.DefaultName = other.Index.DefaultName
	}
	if other.Index.Timeout != 0 {
		c.Index.Timeout = other.Index.Timeout
	}
	if other.Index.RefreshInterval != "" {
		c.Index.RefreshInterval = other.Index.RefreshInterval
	}
	if other.Index.Replicas != 0 {
		c.Index.Replicas = other.Index.Replicas
	}
	if other.Index.OpenIndexes != 0 {
		c.Index.OpenIndexes = other.Index.OpenIndexes
	}

	if other.Reindex.ChunkSize != 0 {
		c.Reindex.ChunkSize = other.Reindex.ChunkSize
	}
	if other.Reindex.Percent != 0 {
		c.Reindex.Percent = other.Reindex.Percent
	}
	if other.Reindex.SoftLimit != 0 {
		c.Reindex.SoftLimit = other.Reindex.SoftLimit
	}
	if other.Reindex.HardLimit != 0 {
		c.Reindex.HardLimit = other.Reindex.HardLimit
	}
	if len(other.Reindex.ExcludePrefixes) > 0 {
		c.Reindex.ExcludePrefixes = other.Reindex.ExcludePrefixes
	}
	if other.Reindex.Strict {
		c.Reindex.Strict = true
	}
	if other.Reindex.ChunksPerSecond != 0 {
		c.Reindex.ChunksPerSecond = other.Reindex.ChunksPerSecond
	}

	if other.Schedule.Enabled {
		c.Schedule.Enabled = true
	}
	if other.Schedule.Cron != "" {
		c.Schedule.Cron = other.Schedule.Cron
	}

	if other.Notify.SiteName != "" {
		c.Notify.SiteName = other.Notify.SiteName
	}
	if other.Notify.SMTPHost != "" {
		c.Notify.SMTPHost = other.Notify.SMTPHost
	}
	if other.Notify.SMTPPort != 0 {
		c.Notify.SMTPPort = other.Notify.SMTPPort
	}
	if other.Notify.Username != "" {
		c.Notify.Username = other.Notify.Username
	}
	if other.Notify.Password != "" {
		c.Notify.Password = other.Notify.Password
	}
	if other.Notify.From != "" {
		c.Notify.From = other.Notify.From
	}
	if len(other.Notify.To) > 0 {
		c.Notify.To = other.Notify.To
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.FiltersFile != "" {
		c.Server.FiltersFile = expandHome(other.Server.FiltersFile)
	}
	if other.Server.Workers != 0 {
		c.Server.Workers = other.Server.Workers
	}
}

// applyEnvOverrides applies WIKISEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WIKISEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = expandHome(v)
	}
	if v := os.Getenv("WIKISEARCH_DATABASE"); v != "" {
		c.Paths.Database = expandHome(v)
	}
	if v := os.Getenv("WIKISEARCH_INDEX_PREFIX"); v != "" {
		c.Index.Prefix = v
	}
	if v := os.Getenv("WIKISEARCH_INDEX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Index.Timeout = d
		}
	}
	if v := os.Getenv("WIKISEARCH_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reindex.ChunkSize = n
		}
	}
	if v := os.Getenv("WIKISEARCH_SCHEDULE"); v != "" {
		c.Schedule.Enabled = true
		c.Schedule.Cron = v
	}
	if v := os.Getenv("WIKISEARCH_SMTP_HOST"); v != "" {
		c.Notify.SMTPHost = v
	}
	if v := os.Getenv("WIKISEARCH_SMTP_PASSWORD"); v != "" {
		c.Notify.Password = v
	}
	if v := os.Getenv("WIKISEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must be set")
	}
	if c.Index.Prefix == "" || strings.ContainsAny(c.Index.Prefix, `/\ `) {
		return fmt.Errorf("index.prefix must be a non-empty name without separators, got %q", c.Index.Prefix)
	}
	if c.Index.DefaultName == "" {
		return fmt.Errorf("index.default_name must be set")
	}
	if c.Index.Timeout <= 0 {
		return fmt.Errorf("index.timeout must be positive, got %s", c.Index.Timeout)
	}
	if c.Index.Replicas < 0 {
		return fmt.Errorf("index.replicas must be non-negative, got %d", c.Index.Replicas)
	}
	if c.Reindex.ChunkSize <= 0 {
		return fmt.Errorf("reindex.chunk_size must be positive, got %d", c.Reindex.ChunkSize)
	}
	if c.Reindex.Percent < 0 || c.Reindex.Percent > 100 {
		return fmt.Errorf("reindex.percent must be between 0 and 100, got %d", c.Reindex.Percent)
	}
	if c.Reindex.HardLimit > 0 && c.Reindex.HardLimit < c.Reindex.SoftLimit {
		return fmt.Errorf("reindex.hard_limit (%s) must not be below soft_limit (%s)",
			c.Reindex.HardLimit, c.Reindex.SoftLimit)
	}
	if c.Reindex.ChunksPerSecond < 0 {
		return fmt.Errorf("reindex.chunks_per_second must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
