package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
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

// ContentConfig describes the content tree.
type ContentConfig struct {
	// Root is the directory holding documents and assets.
	Root string `yaml:"root"`
	// AssetsDir is the assets directory relative to Root.
	AssetsDir string `yaml:"assets_dir"`
	// AssetsURL is the public URL prefix asset files are served under.
	AssetsURL string `yaml:"assets_url"`
	// Models is the YAML file declaring the content models.
	Models string `yaml:"models"`
	// MaxFileSize is a human-readable size (e.g. "10MB"). Larger files are
	// skipped by collection reads.
	MaxFileSize string `yaml:"max_file_size"`
	Workers     int    `yaml:"workers"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Models, validation.Required),
		validation.Field(&c.AssetsURL, validation.Required, validation.By(absoluteURLPath)),
		validation.Field(&c.AssetsDir, validation.By(relativeDir)),
		validation.Field(&c.Workers, validation.Min(0)),
	); err != nil {
		return err
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		return err
	}
	return nil
}

// MaxFileSizeBytes parses MaxFileSize. An empty value means no limit.
func (c *ContentConfig) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" {
		return 0, nil
	}
	n, err := units.FromHumanSize(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("content: max_file_size: %w", err)
	}
	return n, nil
}

// AssetsPath returns the assets directory joined onto Root.
func (c *ContentConfig) AssetsPath() string {
	return filepath.Join(c.Root, filepath.FromSlash(c.AssetsDir))
}

// AssetsRoute returns the chi route serving asset files.
func (c *ContentConfig) AssetsRoute() string {
	return path.Join("/", c.AssetsURL) + "/*"
}

func absoluteURLPath(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "/") || s == "/" {
		return errors.New("must be an absolute path below /")
	}
	return nil
}

func relativeDir(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	cleaned := path.Clean(s)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return errors.New("must be a directory inside the content root")
	}
	return nil
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Root:        "./content",
			AssetsDir:   "assets",
			AssetsURL:   "/assets",
			Models:      "./config/models.yaml",
			MaxFileSize: "10MB",
			Workers:     8,
		},
		SQLite: SQLiteConfig{
			Path: "./quill.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
