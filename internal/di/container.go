// Package di provides dependency injection configuration for the scanner
// service.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/di/providers"
	"github.com/voiceapp/voice-scanner/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
// Services are created lazily on first use.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Catalog
	do.Provide(injector, providers.ProvideCatalog)

	// Scanner layer
	do.Provide(injector, providers.ProvideDispatcher)
	do.Provide(injector, providers.ProvideScanner)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchIndexer)

	// Workers
	do.Provide(injector, providers.ProvideFileWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes every long-running service of the server and
// starts the initial scan in the background. Scan passes started here stop
// when ctx is done.
func Bootstrap(ctx context.Context, injector *do.RootScope) error {
	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.CatalogHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*container.Dispatcher](injector); err != nil {
		return err
	}
	sc, err := do.Invoke[*providers.ScannerHandle](injector)
	if err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.FileWatcherHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	go providers.RunInitialScan(ctx, sc, log)

	return nil
}
