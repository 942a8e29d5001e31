// Package config provides Viper-based configuration loading for the table server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the stream listener settings.
type ServerConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener. 0 selects a random port.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read deadline; 0 disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write deadline applied by each connection's writer.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxFrameBytes caps the undecoded bytes buffered per connection. It bounds
	// requests the server receives only; outbound messages carrying images are
	// not limited by it, and dmclient sets its own cap with -max-frame.
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
	// OutboxSize is the number of queued outbound messages per connection.
	OutboxSize int `mapstructure:"outbox_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig holds snapshot locations.
type SessionConfig struct {
	// SnapshotPath is the file holding the roster, inventories, log, and avatars.
	SnapshotPath string `mapstructure:"snapshot_path"`
	// MapPath is the file holding the current shared map image reference.
	MapPath string `mapstructure:"map_path"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// JournalConfig selects the event journal backend.
type JournalConfig struct {
	// Driver is one of "memory", "sqlite", or "postgres".
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// NarrationConfig configures the narration gateway.
type NarrationConfig struct {
	// Provider is one of "static", "anthropic", or "openai".
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Fallback replaces the narration when the provider fails or times out.
	Fallback string `mapstructure:"fallback"`
}

// ImagesConfig configures the image gateway.
type ImagesConfig struct {
	// Provider is "none" or "openai".
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	AvatarSize string        `mapstructure:"avatar_size"`
	SceneSize  string        `mapstructure:"scene_size"`
	MapSize    string        `mapstructure:"map_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// MapEveryTurn regenerates the shared map after each narration.
	MapEveryTurn bool `mapstructure:"map_every_turn"`
}

// CampaignConfig points at the campaign content file.
type CampaignConfig struct {
	// ContentFile is a YAML campaign file; empty uses the built-in campaign.
	ContentFile string `mapstructure:"content_file"`
}

// ScriptingConfig configures the Lua loot hook.
type ScriptingConfig struct {
	// LootScript is a Lua file defining grant_items; empty disables the hook.
	LootScript       string `mapstructure:"loot_script"`
	InstructionLimit int    `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Narration NarrationConfig `mapstructure:"narration"`
	Images    ImagesConfig    `mapstructure:"images"`
	Campaign  CampaignConfig  `mapstructure:"campaign"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateServer(c.Server),
		validateSession(c.Session),
		validateJournal(c.Journal),
		validateLogging(c.Logging),
		validateNarration(c.Narration),
		validateImages(c.Images),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.MaxFrameBytes < 1 {
		errs = append(errs, fmt.Sprintf("server.max_frame_bytes must be >= 1, got %d", s.MaxFrameBytes))
	}
	if s.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("server.outbox_size must be >= 1, got %d", s.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.SnapshotPath == "" {
		errs = append(errs, "session.snapshot_path must not be empty")
	}
	if s.MapPath == "" {
		errs = append(errs, "session.map_path must not be empty")
	}
	if s.SnapshotPath != "" && s.SnapshotPath == s.MapPath {
		errs = append(errs, "session.snapshot_path and session.map_path must differ")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateJournal(j JournalConfig) error {
	switch j.Driver {
	case "memory":
		return nil
	case "sqlite":
		if j.SQLitePath == "" {
			return fmt.Errorf("journal.sqlite_path must not be empty for the sqlite driver")
		}
		return nil
	case "postgres":
		return validateDatabase(j.Database)
	default:
		return fmt.Errorf("journal.driver must be one of [memory, sqlite, postgres], got %q", j.Driver)
	}
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "journal.database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("journal.database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "journal.database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "journal.database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("journal.database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("journal.database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("journal.database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "journal.database.min_conns must not exceed journal.database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateNarration(n NarrationConfig) error {
	var errs []string
	switch n.Provider {
	case "static":
	case "anthropic", "openai":
		if n.APIKey == "" {
			errs = append(errs, fmt.Sprintf("narration.api_key must not be empty for provider %q", n.Provider))
		}
		if n.Model == "" {
			errs = append(errs, "narration.model must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("narration.provider must be one of [static, anthropic, openai], got %q", n.Provider))
	}
	if n.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("narration.max_tokens must be >= 1, got %d", n.MaxTokens))
	}
	if n.Timeout < 0 {
		errs = append(errs, "narration.timeout must not be negative")
	}
	if n.Fallback == "" {
		errs = append(errs, "narration.fallback must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateImages(i ImagesConfig) error {
	var errs []string
	switch i.Provider {
	case "none":
	case "openai":
		if i.APIKey == "" {
			errs = append(errs, "images.api_key must not be empty for provider \"openai\"")
		}
		if i.Model == "" {
			errs = append(errs, "images.model must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("images.provider must be one of [none, openai], got %q", i.Provider))
	}
	if i.Timeout < 0 {
		errs = append(errs, "images.timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DM_ prefix
	v.SetEnvPrefix("DM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 65432)
	v.SetDefault("server.read_timeout", "0s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.max_frame_bytes", 1<<20)
	v.SetDefault("server.outbox_size", 64)

	v.SetDefault("session.snapshot_path", "data/game_state.json")
	v.SetDefault("session.map_path", "data/map_state.b64")

	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.sqlite_path", "data/dm_game.db")
	v.SetDefault("journal.database.host", "localhost")
	v.SetDefault("journal.database.port", 5432)
	v.SetDefault("journal.database.user", "dm")
	v.SetDefault("journal.database.password", "dm")
	v.SetDefault("journal.database.name", "dm")
	v.SetDefault("journal.database.sslmode", "disable")
	v.SetDefault("journal.database.max_conns", 5)
	v.SetDefault("journal.database.min_conns", 1)
	v.SetDefault("journal.database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("narration.provider", "static")
	v.SetDefault("narration.api_key", "")
	v.SetDefault("narration.base_url", "")
	v.SetDefault("narration.model", "claude-sonnet-4-5")
	v.SetDefault("narration.max_tokens", 300)
	v.SetDefault("narration.timeout", "60s")
	v.SetDefault("narration.fallback", "The Dungeon Master is silent due to an error.")

	v.SetDefault("images.provider", "none")
	v.SetDefault("images.api_key", "")
	v.SetDefault("images.base_url", "")
	v.SetDefault("images.model", "dall-e-3")
	v.SetDefault("images.avatar_size", "1024x1024")
	v.SetDefault("images.scene_size", "1024x1024")
	v.SetDefault("images.map_size", "1024x1024")
	v.SetDefault("images.timeout", "90s")
	v.SetDefault("images.map_every_turn", true)

	v.SetDefault("campaign.content_file", "")

	v.SetDefault("scripting.loot_script", "")
	v.SetDefault("scripting.instruction_limit", 100_000)
}
