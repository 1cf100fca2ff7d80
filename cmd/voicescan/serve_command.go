package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/voiceapp/voice-scanner/internal/di"
	"github.com/voiceapp/voice-scanner/internal/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, watch the roots and rescan on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}

			injector := di.NewContainer(cfg)
			if err := di.Bootstrap(cmd.Context(), injector); err != nil {
				_ = injector.Shutdown()
				return fmt.Errorf("bootstrap server: %w", err)
			}

			log := do.MustInvoke[*logger.Logger](injector)

			// Wait for shutdown signal
			<-cmd.Context().Done()

			log.Info("Shutting down server gracefully...")

			// The container shuts services down in reverse dependency order.
			if err := injector.Shutdown(); err != nil {
				log.Error("Shutdown error", "error", err)
			}

			log.Info("Server stopped")
			return nil
		},
	}
}
