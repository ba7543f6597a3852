// Package config loads player settings from config.yaml and PLAYER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the resolved player configuration.
type Config struct {
	Backend         string
	VLCPath         string
	TeardownGrace   time.Duration
	ShutdownGrace   time.Duration
	StartTimeout    time.Duration
	AdvanceInterval time.Duration
	RetiringWarn    int
	EventBuffer     int
	ScreenWidth     int
	ScreenHeight    int
	Notify          bool
}

const (
	configName = "config"
	configType = "yaml"
	configPath = "."
	envPrefix  = "PLAYER"

	KeyBackend         = "backend"
	KeyVLCPath         = "vlc_path"
	KeyTeardownGrace   = "teardown_grace"
	KeyShutdownGrace   = "shutdown_grace"
	KeyStartTimeout    = "start_timeout"
	KeyAdvanceInterval = "advance_interval"
	KeyRetiringWarn    = "retiring_warn"
	KeyEventBuffer     = "event_buffer"
	KeyScreenWidth     = "screen_width"
	KeyScreenHeight    = "screen_height"
	KeyNotify          = "notify"

	defaultBackend       = "vlc"
	defaultTeardownGrace = 5 * time.Second
	defaultShutdownGrace = 10 * time.Second
	defaultStartTimeout  = 15 * time.Second
	defaultRetiringWarn  = 8
	defaultEventBuffer   = 64
	defaultScreenWidth   = 1920
	defaultScreenHeight  = 1080
)

var defaults = map[string]any{
	KeyBackend:         defaultBackend,
	KeyVLCPath:         "",
	KeyTeardownGrace:   defaultTeardownGrace,
	KeyShutdownGrace:   defaultShutdownGrace,
	KeyStartTimeout:    defaultStartTimeout,
	KeyAdvanceInterval: time.Duration(0),
	KeyRetiringWarn:    defaultRetiringWarn,
	KeyEventBuffer:     defaultEventBuffer,
	KeyScreenWidth:     defaultScreenWidth,
	KeyScreenHeight:    defaultScreenHeight,
	KeyNotify:          true,
}

// Load reads the configuration. An explicit path must exist; without one,
// config.yaml in the working directory is optional.
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	logger = logger.Named("config")
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			logger.Warnw("Failed to load configuration", "path", path, "error", err)
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Debug("No config file found, using defaults and environment")
	} else {
		logger.Debugw("Loaded configuration file", "path", v.ConfigFileUsed())
	}

	return populate(v, logger), nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(configPath)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func populate(v *viper.Viper, logger *zap.SugaredLogger) *Config {
	c := &Config{
		Backend:         strings.ToLower(v.GetString(KeyBackend)),
		VLCPath:         v.GetString(KeyVLCPath),
		TeardownGrace:   nonNegative(logger, KeyTeardownGrace, v.GetDuration(KeyTeardownGrace), defaultTeardownGrace),
		ShutdownGrace:   positive(logger, KeyShutdownGrace, v.GetDuration(KeyShutdownGrace), defaultShutdownGrace),
		StartTimeout:    positive(logger, KeyStartTimeout, v.GetDuration(KeyStartTimeout), defaultStartTimeout),
		AdvanceInterval: nonNegative(logger, KeyAdvanceInterval, v.GetDuration(KeyAdvanceInterval), 0),
		RetiringWarn:    positive(logger, KeyRetiringWarn, v.GetInt(KeyRetiringWarn), defaultRetiringWarn),
		EventBuffer:     nonNegative(logger, KeyEventBuffer, v.GetInt(KeyEventBuffer), defaultEventBuffer),
		ScreenWidth:     positive(logger, KeyScreenWidth, v.GetInt(KeyScreenWidth), defaultScreenWidth),
		ScreenHeight:    positive(logger, KeyScreenHeight, v.GetInt(KeyScreenHeight), defaultScreenHeight),
		Notify:          v.GetBool(KeyNotify),
	}
	if c.Backend == "" {
		c.Backend = defaultBackend
	}

	logger.Debugw("Configuration populated", "config", c)
	return c
}

type number interface {
	~int | ~int64
}

// positive returns value, or fallback with a warning when value <= 0.
func positive[T number](logger *zap.SugaredLogger, key string, value, fallback T) T {
	if value > 0 {
		return value
	}
	logger.Warnw("Invalid value specified, using default", "key", key, "invalidValue", value, "defaultValue", fallback)
	return fallback
}

func nonNegative[T number](logger *zap.SugaredLogger, key string, value, fallback T) T {
	if value >= 0 {
		return value
	}
	logger.Warnw("Invalid value specified, using default", "key", key, "invalidValue", value, "defaultValue", fallback)
	return fallback
}
