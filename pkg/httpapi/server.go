// Package httpapi is the HTTP façade: it maps every endpoint this proxy
// exposes onto the scheduler, queue manager, and forwarder, wrapped in the
// same middleware chain (request ID, logging, recovery, CORS) the rest of
// the codebase uses.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/forwarder"
	"github.com/fluffypony/llm-proxifier/pkg/proxy/middleware"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
	"github.com/fluffypony/llm-proxifier/pkg/scheduler"
	"github.com/fluffypony/llm-proxifier/pkg/telemetry/metrics"
)

// BuildInfo carries the values the /version endpoint reports.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Server owns the HTTP listener and routes every endpoint named in §6.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New constructs the façade's http.Server, fully routed, but does not
// start listening until Start is called.
func New(cfg config.ProxyConfig, sched *scheduler.Manager, queueMgr *queue.Manager, fwd *forwarder.Forwarder, collector *metrics.Collector, build BuildInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := newRouter(sched, queueMgr, fwd, collector, build)

	var handler http.Handler = mux
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.CORSMiddleware(middleware.DefaultCORSConfig())(handler)

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		logger: logger,
	}
}

// Start listens and serves until Shutdown is called. It returns nil on a
// clean shutdown and a non-nil error for any other failure.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight connections, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
