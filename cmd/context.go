package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"racetimer/internal/config"
	"racetimer/internal/logging"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

type commandContext struct {
	configFlag   *string
	settingsFlag *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	logCloser  io.Closer
	loggerErr  error
}

func newCommandContext(configFlag, settingsFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		settingsFlag: settingsFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if level := flagValue(c.logLevelFlag); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, closer, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("create logger: %w", err)
			return
		}
		c.logger = logger
		c.logCloser = closer
	})
	return c.logger, c.loggerErr
}

// openSettings loads the persisted detector settings shared by the window
// and the command line.
func (c *commandContext) openSettings(logger *slog.Logger) (*settings.Store, *storage.YAMLStore, error) {
	var (
		backend *storage.YAMLStore
		err     error
	)
	if path := flagValue(c.settingsFlag); path != "" {
		backend, err = storage.OpenYAMLFile(path)
	} else {
		backend, err = storage.OpenYAML(config.AppName)
	}
	if err != nil {
		if backend == nil {
			return nil, nil, err
		}
		logger.Warn("settings file unreadable, using defaults", slog.String("path", backend.Path()), slog.String("error", err.Error()))
	}
	store := settings.New(backend, logger.With(slog.String("component", "settings")))
	store.Load()
	return store, backend, nil
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}
