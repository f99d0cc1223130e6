package notification

import (
	"log/slog"
	"time"

	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/pkg/retry"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. The default is slog.Default().
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerMetrics records frame, handshake and state metrics.
func WithServerMetrics(m *metric.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithEventRegistry decodes events through registry instead of the
// built-in one.
func WithEventRegistry(registry *event.TypeRegistry) ServerOption {
	return func(s *Server) {
		s.decoder = event.NewDeserializer(registry)
	}
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records client handshake metrics.
func WithMetrics(m *metric.Metrics) ListenerOption {
	return func(l *Listener) {
		l.metrics = m
	}
}

// WithHandshakeTimeout bounds the wait for a HELLO or GOODBYE echo.
func WithHandshakeTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithConnector connects the transport during Initialize, retrying
// according to cfg.
func WithConnector(c Connector, cfg retry.Config) ListenerOption {
	return func(l *Listener) {
		l.connector = c
		l.retry = cfg
	}
}

// WithSerializer encodes events through s instead of the built-in registry.
func WithSerializer(s *event.Serializer) ListenerOption {
	return func(l *Listener) {
		if s != nil {
			l.encoder = s
		}
	}
}
