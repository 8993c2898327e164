package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"mediaforge/config"
	"mediaforge/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration and sets up logging once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := configureLogging(cfg.Logging); err != nil {
			c.configErr = err
			return
		}
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			c.configErr = fmt.Errorf("creating data dir: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func configureLogging(cfg config.LoggingConfig) error {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	return logger.Configure(logger.Options{
		Level:   level,
		File:    cfg.File,
		Console: cfg.Console,
	})
}
