// Package server exposes forecasts over HTTP: a JSON API, server-rendered
// chart pages and a health check.
package server

import (
	"context"
	"embed"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/logger"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
)

//go:embed templates/*.html
var templateFS embed.FS

// MaxHorizon bounds the horizon query parameter.
const MaxHorizon = 3650

// Options holds the request defaults and lifecycle settings of the server.
type Options struct {
	// DefaultDays is the history length used when the request has no days parameter.
	DefaultDays int
	// DefaultHorizon is used when the request has no horizon parameter.
	DefaultHorizon int
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultOptions returns one year of history, a six month horizon and a 10s shutdown.
func DefaultOptions() Options {
	return Options{
		DefaultDays:     marketdata.DefaultDays,
		DefaultHorizon:  forecast.DefaultHorizon,
		ShutdownTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()

	if o.DefaultDays <= 0 {
		o.DefaultDays = defaults.DefaultDays
	}

	if o.DefaultHorizon <= 0 {
		o.DefaultHorizon = defaults.DefaultHorizon
	}

	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaults.ShutdownTimeout
	}

	return o
}

// Server serves forecasts produced by a forecast.Service.
type Server struct {
	service   *forecast.Service
	registry  *marketdata.InstrumentRegistry
	options   Options
	logger    *logger.Logger
	templates *template.Template
	router    *mux.Router
}

// NewServer creates a server and registers its routes.
func NewServer(service *forecast.Service, registry *marketdata.InstrumentRegistry, options Options, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	templates, err := template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse page templates", err)
	}

	server := &Server{
		service:   service,
		registry:  registry,
		options:   options.withDefaults(),
		logger:    log.Named("server"),
		templates: templates,
		router:    mux.NewRouter(),
	}

	server.routes()

	return server, nil
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware, s.accessLogMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/forecast/{symbol}", s.handleForecastPage).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/instruments", s.handleInstruments).Methods(http.MethodGet)
	api.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	api.HandleFunc("/forecast/{symbol}", s.handleForecastAPI).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(s.handleAPINotFound)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", addr)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts down
// gracefully within Options.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	s.logger.Info("Server started", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server", zap.Duration("timeout", s.options.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
