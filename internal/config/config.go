package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultSampleRate = 48000
	defaultFFmpegPath = "ffmpeg"
	defaultFrameRate  = 60
	defaultLogLevel   = "info"
	defaultLogFormat  = "console"
	fileName          = "config.toml"

	// AppName names the per-user config and data directories.
	AppName = "racetimer"
)

// Audio contains analysis and playback settings.
type Audio struct {
	SampleRate int    `toml:"sample_rate"`
	FFmpegPath string `toml:"ffmpeg_path"`
	// Audible routes playback and haptic buzz to the sound card.
	Audible bool `toml:"audible"`
}

// UI contains window loop settings.
type UI struct {
	FrameRate int `toml:"frame_rate"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File enables a rotated log file in addition to stderr.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Config encapsulates application configuration. Detector settings live in
// the settings store, not here.
type Config struct {
	Audio   Audio   `toml:"audio"`
	UI      UI      `toml:"ui"`
	Logging Logging `toml:"log"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Audio: Audio{
			SampleRate: defaultSampleRate,
			FFmpegPath: defaultFFmpegPath,
			Audible:    true,
		},
		UI: UI{FrameRate: defaultFrameRate},
		Logging: Logging{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath(appName string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, appName, fileName), nil
}

// Load parses path over the defaults and validates the result. An empty path
// uses the default location; a missing file yields defaults. The returned
// bool reports whether a file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	if path == "" {
		resolved, err := DefaultPath(AppName)
		if err != nil {
			return nil, false, err
		}
		path = resolved
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := cfg.Validate(); err != nil {
			return nil, false, err
		}
		return &cfg, false, nil
	default:
		return nil, false, fmt.Errorf("open config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, true, err
	}
	return &cfg, true, nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) normalize() {
	c.Audio.FFmpegPath = strings.TrimSpace(c.Audio.FFmpegPath)
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = defaultFFmpegPath
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.HasPrefix(c.Logging.File, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			c.Logging.File = filepath.Join(home, strings.TrimPrefix(c.Logging.File, "~"))
		}
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	if c.UI.FrameRate < 1 || c.UI.FrameRate > 240 {
		return fmt.Errorf("ui.frame_rate must be between 1 and 240, got %d", c.UI.FrameRate)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return errors.New("log.max_size_mb and log.max_backups must not be negative")
	}
	return nil
}
