package main

import (
	"errors"
	"sync"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/di"
	"github.com/voiceapp/voice-scanner/internal/logger"
)

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

// ensureConfig loads the configuration from the command's flags, the
// environment and the .env file. Only the first call reads them.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(cmd.Flags())
	})
	return c.config, c.configErr
}

// withContainer runs fn against a fresh DI container and shuts down every
// service fn started.
func (c *commandContext) withContainer(fn func(do.Injector) error) error {
	if c.config == nil {
		if c.configErr != nil {
			return c.configErr
		}
		return errors.New("configuration not loaded")
	}

	injector := di.NewContainer(c.config)
	log := do.MustInvoke[*logger.Logger](injector)
	defer func() {
		if err := injector.Shutdown(); err != nil {
			log.Error("Shutdown error", "error", err)
		}
	}()

	return fn(injector)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
