// Package config loads framegrab settings from an optional YAML file and
// FRAMEGRAB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultFileName = "config.yaml"
	EnvPrefix       = "FRAMEGRAB"
)

// Config captures the user-adjustable knobs for capture sessions.
type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `mapstructure:"-"`
}

// CaptureConfig controls stream acquisition and timing.
type CaptureConfig struct {
	// FrameRate is the hint passed to the source, in frames per second.
	FrameRate            float64       `mapstructure:"frame_rate"`
	PreferCurrentDisplay bool          `mapstructure:"prefer_current_display"`
	DisplayIndex         int           `mapstructure:"display_index"`
	Source               string        `mapstructure:"source"`
	Strategy             string        `mapstructure:"strategy"`
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	ElapsedInterval      time.Duration `mapstructure:"elapsed_interval"`
	DelayStep            time.Duration `mapstructure:"delay_step"`
}

// OutputConfig controls what happens to captured stills.
type OutputConfig struct {
	DownloadDir  string        `mapstructure:"download_dir"`
	AutoDownload bool          `mapstructure:"auto_download"`
	Metadata     bool          `mapstructure:"metadata"`
	Retention    time.Duration `mapstructure:"retention"`
}

// ServerConfig configures the WebSocket bridge.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Source identifiers.
const (
	SourceAuto      = "auto"
	SourceDisplay   = "display"
	SourceSynthetic = "synthetic"
)

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			FrameRate:            1,
			PreferCurrentDisplay: true,
			Source:               SourceAuto,
			Strategy:             "auto",
			TickInterval:         100 * time.Millisecond,
			ElapsedInterval:      time.Second,
			DelayStep:            500 * time.Millisecond,
		},
		Output: OutputConfig{
			DownloadDir:  "screenshots",
			AutoDownload: true,
			Retention:    60 * time.Second,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./config.yaml but tolerates a missing file.
// Environment variables such as FRAMEGRAB_CAPTURE_FRAME_RATE override both.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	_, statErr := os.Stat(candidate)
	switch {
	case statErr == nil:
		v.SetConfigFile(candidate)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config file %q: %w", candidate, err)
		}
		cfg.Source = candidate
	case errors.Is(statErr, os.ErrNotExist):
		if explicit {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
	default:
		return cfg, fmt.Errorf("open config file %q: %w", candidate, statErr)
	}

	if err := v.UnmarshalExact(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	for key, value := range cfg.Settings() {
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for field, fieldValue := range section {
			v.SetDefault(key+"."+field, fieldValue)
		}
	}
}

// Settings renders the configuration as nested maps keyed like the YAML file.
func (c Config) Settings() map[string]any {
	origins := c.Server.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	return map[string]any{
		"capture": map[string]any{
			"frame_rate":             c.Capture.FrameRate,
			"prefer_current_display": c.Capture.PreferCurrentDisplay,
			"display_index":          c.Capture.DisplayIndex,
			"source":                 c.Capture.Source,
			"strategy":               c.Capture.Strategy,
			"tick_interval":          c.Capture.TickInterval.String(),
			"elapsed_interval":       c.Capture.ElapsedInterval.String(),
			"delay_step":             c.Capture.DelayStep.String(),
		},
		"output": map[string]any{
			"download_dir":  c.Output.DownloadDir,
			"auto_download": c.Output.AutoDownload,
			"metadata":      c.Output.Metadata,
			"retention":     c.Output.Retention.String(),
		},
		"server": map[string]any{
			"host":            c.Server.Host,
			"port":            c.Server.Port,
			"allowed_origins": origins,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
	}
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if c.Capture.FrameRate <= 0 || c.Capture.FrameRate > 60 {
		return fmt.Errorf("capture.frame_rate must be within (0, 60], got %v", c.Capture.FrameRate)
	}
	if c.Capture.DisplayIndex < 0 {
		return errors.New("capture.display_index must not be negative")
	}
	switch c.Capture.Source {
	case SourceAuto, SourceDisplay, SourceSynthetic:
	default:
		return fmt.Errorf("capture.source must be one of auto, display, synthetic, got %q", c.Capture.Source)
	}
	switch c.Capture.Strategy {
	case "auto", "bitmap", "canvas":
	default:
		return fmt.Errorf("capture.strategy must be one of auto, bitmap, canvas, got %q", c.Capture.Strategy)
	}
	if c.Capture.TickInterval <= 0 {
		return errors.New("capture.tick_interval must be positive")
	}
	if c.Capture.ElapsedInterval <= 0 {
		return errors.New("capture.elapsed_interval must be positive")
	}
	if c.Capture.DelayStep <= 0 {
		return errors.New("capture.delay_step must be positive")
	}

	if c.Output.AutoDownload && strings.TrimSpace(c.Output.DownloadDir) == "" {
		return errors.New("output.download_dir must not be empty when auto_download is enabled")
	}
	if c.Output.Retention <= 0 {
		return errors.New("output.retention must be positive")
	}

	if strings.TrimSpace(c.Server.Host) == "" {
		return errors.New("server.host must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()

	c.Capture.Source = strings.ToLower(strings.TrimSpace(c.Capture.Source))
	if c.Capture.Source == "" {
		c.Capture.Source = defaults.Capture.Source
	}
	c.Capture.Strategy = strings.ToLower(strings.TrimSpace(c.Capture.Strategy))
	if c.Capture.Strategy == "" {
		c.Capture.Strategy = defaults.Capture.Strategy
	}
	if dir := strings.TrimSpace(c.Output.DownloadDir); dir != "" {
		c.Output.DownloadDir = filepath.Clean(dir)
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if level, err := NormalizeLogLevel(c.Logging.Level); err == nil {
		c.Logging.Level = level
	}
	if format, err := NormalizeFormat(c.Logging.Format); err == nil {
		c.Logging.Format = format
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
