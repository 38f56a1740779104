package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fnproject/httpecho/api/common"
	"github.com/fnproject/httpecho/api/wire"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server echoes every request it receives. Router carries the echo surface,
// AdminRouter the optional metrics endpoint.
type Server struct {
	Router      *gin.Engine
	AdminRouter *gin.Engine

	cfg      Config
	registry *prometheus.Registry
	metrics  *echoMetrics
}

// NewFromEnv reads the configuration from the environment, sets up logging
// from it and creates a Server.
func NewFromEnv(ctx context.Context, opts ...Option) *Server {
	cfg := ConfigFromEnv()
	return New(ctx, append([]Option{WithConfig(cfg), WithLogFormat(cfg.LogFormat), WithLogLevel(cfg.LogLevel)}, opts...)...)
}

// New creates a Server with DefaultConfig, adjusted by opts.
func New(ctx context.Context, opts ...Option) *Server {
	s := &Server{
		Router:      gin.New(),
		AdminRouter: gin.New(),
		cfg:         DefaultConfig(),
		registry:    prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(ctx, s); err != nil {
			logrus.WithError(err).Fatal("Error during server opt initialization.")
		}
	}

	s.metrics = newEchoMetrics(s.registry)
	s.bindHandlers()
	return s
}

func (s *Server) bindHandlers() {
	s.Router.Use(panicWrap, common.RequestIDInCtxAndLogger(s.cfg.RequestIDHeader), s.metricsWrap)
	// every method and path is echoed, there is no routing on this engine
	s.Router.NoRoute(s.handleEcho)

	s.AdminRouter.Use(panicWrap)
	s.AdminRouter.GET("/metrics", s.handlePrometheus)
	s.AdminRouter.GET("/health", handlePing)
}

// Config returns the configuration the Server was built with.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler is the echo surface as served on the listener, with h2c support
// when enabled.
func (s *Server) Handler() http.Handler {
	if s.cfg.H2C {
		return h2c.NewHandler(s.Router, &http2.Server{})
	}
	return s.Router
}

// Start listens on the configured ports and serves until ctx is done or the
// process receives SIGINT or SIGTERM.
func (s *Server) Start(ctx context.Context) {
	ctx, halt := contextWithSignal(ctx, os.Interrupt, syscall.SIGTERM)
	defer halt()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"port": s.cfg.Port}).Fatal("Cannot listen")
	}

	if s.cfg.MetricsPort > 0 {
		admin := &http.Server{Addr: ":" + strconv.Itoa(s.cfg.MetricsPort), Handler: s.AdminRouter}
		go func() {
			logrus.WithFields(logrus.Fields{"port": s.cfg.MetricsPort}).Info("Serving metrics on /metrics")
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Fatal("admin server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			admin.Shutdown(shutdownCtx)
		}()
	}

	if err := s.Serve(ctx, ln); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
	logrus.Info("Server stopped")
}

// Serve echoes requests accepted on ln until ctx is done, then shuts down
// gracefully, waiting up to the configured shutdown timeout for in-flight
// requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ConnContext: wire.ConnContext,
		ErrorLog:    newServerErrorLog(),
	}

	logrus.WithFields(logrus.Fields{"port": portOf(ln.Addr())}).Infof("Listening on %s", listenURL(ln.Addr()))

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(wire.NewListener(ln))
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func listenURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + "/"
	}
	if host == "" {
		host = "0.0.0.0"
	} else if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "0.0.0.0"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func contextWithSignal(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	newCTX, halt := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			logrus.WithFields(logrus.Fields{"signal": sig}).Info("Halting...")
			halt()
		case <-newCTX.Done():
		}
	}()
	return newCTX, halt
}

// newServerErrorLog routes net/http's own complaints (bad requests, TLS
// handshakes, panics) through logrus.
func newServerErrorLog() *log.Logger {
	return log.New(logrus.StandardLogger().WriterLevel(logrus.WarnLevel), "", 0)
}
