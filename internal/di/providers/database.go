package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/logger"
	"github.com/voiceapp/voice-scanner/internal/store"
	"github.com/voiceapp/voice-scanner/internal/store/sqlite"
)

// CatalogHandle wraps the configured catalog backend with shutdown capability.
type CatalogHandle struct {
	store.Catalog
	Backend string
	Path    string
}

// Shutdown implements do.Shutdownable.
func (h *CatalogHandle) Shutdown() error {
	return h.Close()
}

// ProvideCatalog opens the catalog backend selected in the configuration.
func ProvideCatalog(i do.Injector) (*CatalogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Catalog.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := cfg.CatalogPath()
	var (
		catalog store.Catalog
		err     error
	)
	switch cfg.Catalog.Backend {
	case config.BackendSQLite:
		catalog, err = sqlite.Open(path, log.Logger)
	default:
		catalog, err = store.New(path, log.Logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s catalog: %w", cfg.Catalog.Backend, err)
	}

	log.Info("Catalog initialized", "backend", cfg.Catalog.Backend, "path", path)

	return &CatalogHandle{Catalog: catalog, Backend: cfg.Catalog.Backend, Path: path}, nil
}
