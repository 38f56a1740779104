package server

import (
	"context"
	"time"

	"github.com/fnproject/httpecho/api/common"
	"github.com/sirupsen/logrus"
)

// Option is a func that allows configuring a Server
type Option func(context.Context, *Server) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(ctx context.Context, s *Server) error {
		s.cfg = cfg
		return nil
	}
}

// WithLogFormat installs the process-wide log formatter.
func WithLogFormat(format string) Option {
	return func(ctx context.Context, s *Server) error {
		common.SetLogFormat(format)
		return nil
	}
}

// WithLogLevel sets the process-wide log level and reports it.
func WithLogLevel(ll string) Option {
	return func(ctx context.Context, s *Server) error {
		common.SetLogLevel(ll)
		logrus.Infof("Logging at level %s", common.LevelName(logrus.GetLevel()))
		return nil
	}
}

// WithTerse restricts responses to the method and url.
func WithTerse(terse bool) Option {
	return func(ctx context.Context, s *Server) error {
		s.cfg.Terse = terse
		return nil
	}
}

// WithH2C toggles HTTP/2 cleartext support on the echo listener.
func WithH2C(enabled bool) Option {
	return func(ctx context.Context, s *Server) error {
		s.cfg.H2C = enabled
		return nil
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(ctx context.Context, s *Server) error {
		s.cfg.ShutdownTimeout = d
		return nil
	}
}
