package providers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/api"
	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/logger"
	"github.com/voiceapp/voice-scanner/internal/ratelimit"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	cancel  context.CancelFunc
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable. Background scans started through
// the API are cancelled.
func (h *HTTPServerHandle) Shutdown() error {
	h.cancel()
	if h.limiter != nil {
		defer h.limiter.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer starts the HTTP API.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	catalog := do.MustInvoke[*CatalogHandle](i)
	sc := do.MustInvoke[*ScannerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	var limiter *ratelimit.KeyedRateLimiter
	if n := cfg.Server.ScanRateLimit; n > 0 {
		limiter = ratelimit.New(float64(n)/60, n, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handler := api.NewServer(ctx, catalog, sc.Scanner, indexHandle.Index, api.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		ScanLimiter:    limiter,
	}, log.Logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind before returning so address errors surface at startup.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		cancel()
		if limiter != nil {
			limiter.Stop()
		}
		return nil, err
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", ln.Addr().String())

	return &HTTPServerHandle{Server: srv, cancel: cancel, limiter: limiter}, nil
}
