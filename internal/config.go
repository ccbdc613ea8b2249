package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Types     TypesConfig       `yaml:"types"`
	Broadcast BroadcastConfig   `yaml:"broadcast"`
	Client    ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Broadcast.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a rotated copy of the log stream.
	LogFile     string     `yaml:"log_file"`
	HTTP        HTTPConfig `yaml:"http"`
	Attachments string     `yaml:"attachments"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// Origins lists host patterns allowed to open WebSocket connections
	// from a browser. Same-origin requests are always accepted.
	Origins []string `yaml:"origins"`
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// TypesConfig points at the directory of built-in bit type files.
// An empty Path disables built-in types.
type TypesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// BroadcastConfig tunes subscriber delivery.
type BroadcastConfig struct {
	// Buffer is the per-subscriber queue length; a subscriber whose queue
	// is full misses the broadcast.
	Buffer int `yaml:"buffer"`
	// Keepalive is the SSE comment interval.
	Keepalive time.Duration `yaml:"keepalive"`
}

// Validate validates the broadcast configuration.
func (c *BroadcastConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Buffer, validation.Required, validation.Min(1), validation.Max(4096)),
		validation.Field(&c.Keepalive, validation.Min(time.Duration(0))),
	)
}

// ClientConfig is used by commands that talk to a running server. tail
// requires Server; mcp uses it when set and opens the database otherwise.
type ClientConfig struct {
	Server  string        `yaml:"server"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Attachments: "./attachments",
		},
		SQLite: SQLiteConfig{
			Path: "./bitkeep.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Types: TypesConfig{
			Path:  "./types",
			Watch: true,
		},
		Broadcast: BroadcastConfig{
			Buffer:    64,
			Keepalive: 15 * time.Second,
		},
		Client: ClientConfig{
			Timeout: 30 * time.Second,
		},
	}
}
