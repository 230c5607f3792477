// Package config holds the application configuration: YAML file with
// environment variable expansion, validated before use.
package config

import (
	"fmt"
	"log/slog"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Notes  NotesConfig  `yaml:"notes"`
	Editor EditorConfig `yaml:"editor"`
	Sketch SketchConfig `yaml:"sketch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	return c.Sketch.Validate()
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

func (c *AppConfig) Validate() error { return nil }

// NotesConfig holds the notes root and lifecycle policy.
type NotesConfig struct {
	Path               string `yaml:"path"`
	TrashRetentionDays int    `yaml:"trash_retention_days"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.TrashRetentionDays, validation.Required, validation.Min(1), validation.Max(365)),
	)
}

// EditorConfig holds editor presentation settings.
type EditorConfig struct {
	BaseFontPt uint16  `yaml:"base_font_pt"`
	UIScale    float64 `yaml:"ui_scale"`
	RawMode    bool    `yaml:"raw_mode"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseFontPt, validation.Required, validation.Min(uint16(8)), validation.Max(uint16(48))),
		validation.Field(&c.UIScale, validation.Required, validation.Min(0.5), validation.Max(4.0)),
	)
}

// SketchConfig controls the sketch sidecar codec. Password is normally
// supplied via environment expansion, not stored in the file itself.
type SketchConfig struct {
	Compress bool   `yaml:"compress"`
	Encrypt  bool   `yaml:"encrypt"`
	Password string `yaml:"password"`
}

// Validate validates the sketch configuration.
func (c *SketchConfig) Validate() error {
	if c.Encrypt && c.Password == "" {
		return fmt.Errorf("sketch: encryption enabled but password is empty")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: slog.LevelInfo,
		},
		Notes: NotesConfig{
			Path:               "./notes",
			TrashRetentionDays: 30,
		},
		Editor: EditorConfig{
			BaseFontPt: 14,
			UIScale:    1.0,
		},
		Sketch: SketchConfig{
			Compress: true,
		},
	}
}

// Load reads a YAML config file with environment variable expansion into
// cfg and validates the result. A missing file leaves the defaults as-is.
func Load(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.Validate()
		}
		return fmt.Errorf("config: read %s: %w", filename, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}
