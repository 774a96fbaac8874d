// Package server assembles the stock API router and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"stockroom/internal/auth"
	"stockroom/internal/config"
	"stockroom/internal/stock"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router is built from.
type Deps struct {
	Service  stock.Service
	Health   Pinger
	Verifier auth.Verifier
	Logger   logr.Logger
}

// NewRouter builds the instrumented HTTP handler serving the stock API.
func NewRouter(cfg config.Server, deps Deps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	r.Use(requestID(logger))
	r.Use(recoverer)
	r.Use(accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	compressor := middleware.NewCompressor(5, "application/json")
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	r.Use(compressor.Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		stock.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		stock.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", healthz(deps.Health))

	h := stock.NewHandler(deps.Service, cfg.PublicBaseURL, logger)
	authn := auth.Middleware(deps.Verifier, logger)

	r.Route("/api/stock", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if !cfg.PublicReads {
				r.Use(authn)
			}
			r.Get("/", h.ListStock)
			r.Get("/{id}", h.GetStock)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			if cfg.WriteRateLimit > 0 {
				r.Use(throttle(rate.NewLimiter(rate.Limit(cfg.WriteRateLimit), cfg.WriteBurst)))
			}
			r.Post("/", h.CreateStock)
			r.Put("/{id}", h.UpdateStock)
			r.Delete("/{id}", h.DeleteStock)
		})
	})

	return otelhttp.NewHandler(r, "stockroom",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func healthz(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logr.FromContextOrDiscard(r.Context()).Error(err, "health check failed")
			stock.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		stock.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Server serves handler on the configured address.
type Server struct {
	cfg     config.Server
	handler http.Handler
	logger  logr.Logger
}

func New(cfg config.Server, handler http.Handler, logger logr.Logger) *Server {
	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Run listens on the configured address and blocks until ctx is cancelled,
// then shuts down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
