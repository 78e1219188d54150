package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app" toml:"app"`
	Content  ContentConfig     `yaml:"content" toml:"content"`
	Database DatabaseConfig    `yaml:"database" toml:"database"`
	Sync     SyncConfig        `yaml:"sync" toml:"sync"`
	Auth     AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	// LogFile, when set, receives a copy of every log line with size-based
	// rotation.
	LogFile LogFileConfig `yaml:"log_file" toml:"log_file"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig points at the markdown content root.
type ContentConfig struct {
	Path string `yaml:"path" toml:"path"`
	// Title is the display name of the root directory.
	Title      string   `yaml:"title" toml:"title"`
	Extensions []string `yaml:"extensions" toml:"extensions"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	if len(c.Extensions) == 0 {
		c.Extensions = storage.DefaultExtensions
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extensions, validation.Each(validation.Required)),
	)
}

// DatabaseConfig selects the tree store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path" toml:"path"`
	// URL is the PostgreSQL connection string.
	URL string `yaml:"url" toml:"url"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = index.DriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(index.DriverSQLite, index.DriverPostgres)),
		validation.Field(&c.Path, validation.When(c.Driver == index.DriverSQLite, validation.Required)),
		validation.Field(&c.URL, validation.When(c.Driver == index.DriverPostgres, validation.Required)),
	)
}

// Options converts the configuration to index options.
func (c *DatabaseConfig) Options() index.Options {
	return index.Options{Driver: c.Driver, Path: c.Path, URL: c.URL}
}

// SyncConfig controls when and how reconciliation passes run.
type SyncConfig struct {
	// Watch enables filesystem-event driven passes.
	Watch    bool          `yaml:"watch" toml:"watch"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
	// Interval runs a pass periodically; zero disables it.
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	WalkTimeout time.Duration `yaml:"walk_timeout" toml:"walk_timeout"`
	Workers     int           `yaml:"workers" toml:"workers"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
		validation.Field(&c.WalkTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
	)
}

// AuthConfig holds authentication configuration for the admin routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Path:       "./content",
			Title:      "Knowledge Base",
			Extensions: storage.DefaultExtensions,
		},
		Database: DatabaseConfig{
			Driver: index.DriverSQLite,
			Path:   "./kbtree.db",
		},
		Sync: SyncConfig{
			Watch:       true,
			Debounce:    200 * time.Millisecond,
			WalkTimeout: 2 * time.Minute,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
