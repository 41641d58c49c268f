package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/pkg/log"
	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
	"github.com/kubev2v/workflow-dispatcher/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

// StatusProvider reports the progress of the current run.
type StatusProvider interface {
	Snapshot() (dispatch.Snapshot, bool)
}

// StatusServer exposes health, run progress and prometheus metrics while a
// run is in flight.
type StatusServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

func NewStatusServer(bindAddress string, listener net.Listener, status StatusProvider) *StatusServer {
	return &StatusServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           NewRouter(status),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the status routes. Each router owns its request metrics
// registry; the dispatcher metrics come from the default one.
func NewRouter(status StatusProvider) http.Handler {
	registry := prometheus.NewRegistry()
	metricMiddleware := metrics.NewMiddleware("status_server")
	metricMiddleware.MustRegister(registry)

	router := chi.NewRouter()
	router.Use(
		chiMiddleware.RequestID,
		middleware.RequestID,
		log.Logger(zap.L(), "status_server"),
		metricMiddleware.Handler,
		chiMiddleware.Recoverer,
	)

	router.Get("/health", healthHandler)
	router.Get("/status", statusHandler(status))
	router.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		promhttp.HandlerOpts{},
	))

	return router
}

func (s *StatusServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		_ = s.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("status_server").Info("status server terminated")
	}()

	zap.S().Named("status_server").Infof("serving status: %s", s.bindAddress)
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
