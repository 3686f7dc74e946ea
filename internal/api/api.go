package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"messaging-client/internal/conversation"
	"messaging-client/internal/logging"
	"messaging-client/internal/queue"
	"messaging-client/internal/relay"
)

// Engine is the conversation surface the bridge exposes over HTTP.
type Engine interface {
	Initialize(ctx context.Context, d conversation.Deployment) error
	Restore(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Snapshot() conversation.Snapshot
	Reset() error
	SubmitPrechat(ctx context.Context, values map[string]string) error
	SendMessage(ctx context.Context, text string, opts conversation.SendOptions) (string, error)
	RetryFailed(ctx context.Context) (string, error)
	UserTyping(ctx context.Context) error
	SendTypingIndicator(ctx context.Context, started bool) error
	End(ctx context.Context) error
}

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type Options struct {
	ListenAddr string
	Engine     Engine
	Hub        *relay.Hub
	// Deployment fills in fields a POST /session body leaves empty.
	Deployment     conversation.Deployment
	AllowedOrigins []string
	// BridgeToken is the HS256 secret bearer tokens are checked against.
	// Empty disables authorization.
	BridgeToken string
	QueueSize   int
	Logger      *zap.Logger
	Registerer  prometheus.Registerer
}

type APIServer struct {
	listenAddr      string
	engine          Engine
	hub             *relay.Hub
	deployment      conversation.Deployment
	allowedOrigins  []string
	bridgeToken     string
	requests        *queue.Dispatcher
	routeRegistrars []RouteRegistrar
	logger          *zap.Logger
	metrics         *metrics
}

func NewAPIServer(opts Options, registrars ...RouteRegistrar) *APIServer {
	logger := logging.OrNop(opts.Logger)
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := queue.NewDispatcher(opts.QueueSize, logger)

	return &APIServer{
		listenAddr:      opts.ListenAddr,
		engine:          opts.Engine,
		hub:             opts.Hub,
		deployment:      opts.Deployment,
		allowedOrigins:  opts.AllowedOrigins,
		bridgeToken:     opts.BridgeToken,
		requests:        requests,
		routeRegistrars: registrars,
		logger:          logger.Named("api"),
		metrics:         newMetrics(reg, opts.ListenAddr, requests),
	}
}

// Handler builds the routed, instrumented handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}
	mux.Handle("/metrics", s.metrics.metricsHandler())
	return s.metrics.instrument(mux)
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.listenAddr))
		errc <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
		<-errc
	}
	s.requests.Shutdown()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases the request queue of a server that was never Run.
func (s *APIServer) Close() {
	s.requests.Shutdown()
}

func (s *APIServer) Engine() Engine {
	return s.engine
}

func (s *APIServer) Hub() *relay.Hub {
	return s.hub
}

func (s *APIServer) Deployment() conversation.Deployment {
	return s.deployment
}

func (s *APIServer) AllowedOrigins() []string {
	return s.allowedOrigins
}
