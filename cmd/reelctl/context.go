package main

import (
	"io"
	"log/slog"
	"sync"

	"github.com/maauso/photoreel-api/internal/config"
)

// commandContext loads the environment configuration once per invocation.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

// logger writes to w so stdout stays free for command output.
func (c *commandContext) logger(w io.Writer) *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return cfg.NewLoggerTo(w)
}
