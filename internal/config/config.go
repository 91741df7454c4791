package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dimctl/internal/errors"
	"dimctl/internal/logger"
)

const (
	DefaultLogLevel = "info"

	DefaultPollInterval     = 1
	DefaultNormalBrightness = 80
	DefaultDimBrightness    = 20
	DefaultIdleTimeout      = 300
	DefaultMediaGrace       = 600
)

// MonitorSettings holds the per-monitor dimming policy. A zero or
// out-of-range field falls back to the configured defaults.
type MonitorSettings struct {
	NormalBrightness int `mapstructure:"normal_brightness"`
	DimBrightness    int `mapstructure:"dim_brightness"`
	IdleTimeout      int `mapstructure:"idle_timeout"`
	MediaGrace       int `mapstructure:"media_grace"`
}

type Config struct {
	PollInterval        int                        `mapstructure:"poll_interval"`
	LogLevel            string                     `mapstructure:"log_level"`
	Debug               bool                       `mapstructure:"debug"`
	Verbose             bool                       `mapstructure:"verbose"`
	Telemetry           bool                       `mapstructure:"telemetry"`
	TelemetryDB         string                     `mapstructure:"database"`
	Socket              string                     `mapstructure:"socket"`
	IgnoredMediaPlayers []string                   `mapstructure:"ignored_media_players"`
	Defaults            MonitorSettings            `mapstructure:"defaults"`
	Monitors            map[string]MonitorSettings `mapstructure:"monitors"`
}

var errFactory = errors.New()

func Load() (*Config, error) {
	setDefaults()

	if path := os.Getenv("DIMCTL_CONFIG"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		viper.SetConfigName("dimctl")
		viper.SetConfigType("toml")
		viper.AddConfigPath("/etc")
		if home, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "dimctl"))
		}
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
			// First run: persist the documented defaults so users have a
			// file to edit, and point the live-reload watcher at it.
			if path, werr := writeDefaultConfig(); werr != nil {
				logger.Debug().Err(werr).Msg("could not create default config file")
			} else {
				viper.SetConfigFile(path)
				if err := viper.ReadInConfig(); err != nil {
					return nil, errFactory.Wrap(errors.ErrReadConfig, err)
				}
				logger.Info().Str("path", path).Msg("created default configuration")
			}
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BindFlags wires command-line flags into viper so they override file values.
func BindFlags(fs *pflag.FlagSet) error {
	for _, name := range []string{"debug", "verbose", "log-level", "interval", "telemetry", "socket"} {
		if f := fs.Lookup(name); f != nil {
			key := strings.ReplaceAll(name, "-", "_")
			if name == "interval" {
				key = "poll_interval"
			}
			if err := viper.BindPFlag(key, f); err != nil {
				return errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	return nil
}

// Watch invokes onChange whenever the config file is rewritten on disk.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := &Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.PollInterval)
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

// SettingsFor returns the dimming policy for a monitor, merging its entry
// over the configured defaults. Unknown monitors get the defaults.
func (c *Config) SettingsFor(monitorID string) MonitorSettings {
	base := sanitize(c.Defaults, MonitorSettings{
		NormalBrightness: DefaultNormalBrightness,
		DimBrightness:    DefaultDimBrightness,
		IdleTimeout:      DefaultIdleTimeout,
		MediaGrace:       DefaultMediaGrace,
	})

	// viper lowercases TOML table keys, monitor ids are mixed case.
	for id, entry := range c.Monitors {
		if strings.EqualFold(id, monitorID) {
			return sanitize(entry, base)
		}
	}

	return base
}

// sanitize replaces missing or out-of-range fields with fallback values.
// A malformed monitor entry never fails startup.
func sanitize(s, fallback MonitorSettings) MonitorSettings {
	if s.NormalBrightness < 1 || s.NormalBrightness > 100 {
		s.NormalBrightness = fallback.NormalBrightness
	}
	if s.DimBrightness < 0 || s.DimBrightness > 100 {
		s.DimBrightness = fallback.DimBrightness
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = fallback.IdleTimeout
	}
	if s.MediaGrace < 0 {
		s.MediaGrace = fallback.MediaGrace
	}

	return s
}

func setDefaults() {
	viper.SetDefault("poll_interval", DefaultPollInterval)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("telemetry", false)
	viper.SetDefault("database", defaultDBPath())
	viper.SetDefault("socket", DefaultSocketPath())
	viper.SetDefault("defaults.normal_brightness", DefaultNormalBrightness)
	viper.SetDefault("defaults.dim_brightness", DefaultDimBrightness)
	viper.SetDefault("defaults.idle_timeout", DefaultIdleTimeout)
	viper.SetDefault("defaults.media_grace", DefaultMediaGrace)
}

// writeDefaultConfig writes the built-in defaults to the user config
// directory. Returns the path of the created file.
func writeDefaultConfig() (string, error) {
	home, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, "dimctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "dimctl.toml")
	if err := viper.SafeWriteConfigAs(path); err != nil {
		return "", err
	}

	return path, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dimctl", "telemetry.db")
	}

	return filepath.Join(home, ".local", "share", "dimctl", "telemetry.db")
}

// DefaultSocketPath returns the control socket location, preferring the
// user runtime directory.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "dimctl.sock")
	}

	return filepath.Join(os.TempDir(), "dimctl.sock")
}
