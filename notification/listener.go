package notification

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/pkg/retry"
	"github.com/force-h2020/wfmanager/workflow"
)

// DefaultHandshakeTimeout bounds the wait for a HELLO or GOODBYE echo.
const DefaultHandshakeTimeout = time.Second

// Transport sends frames to the server. *natsclient.Client implements it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Connector establishes the transport connection.
type Connector interface {
	Connect(ctx context.Context) error
}

// Listener is the run side of the protocol. It announces the run with a
// HELLO, publishes events and says GOODBYE at the end. Delivery is best
// effort: transport problems put the listener in degraded mode, are logged,
// and never reach the caller.
type Listener struct {
	transport   Transport
	identifier  string
	pubSubject  string
	syncSubject string

	connector Connector
	retry     retry.Config
	timeout   time.Duration
	encoder   *event.Serializer
	logger    *slog.Logger
	metrics   *metric.Metrics

	initialized bool
	degraded    bool
	finalized   bool
}

// NewListener creates a listener for the session configured by model.
func NewListener(transport Transport, model *workflow.NotificationListenerModel, opts ...ListenerOption) (*Listener, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Listener", "NewListener", "transport validation")
	}
	if model == nil || model.Identifier() == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Listener", "NewListener", "identifier validation")
	}
	if model.PubURL() == "" || model.SyncURL() == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Listener", "NewListener", "subject validation")
	}

	l := &Listener{
		transport:   transport,
		identifier:  model.Identifier(),
		pubSubject:  model.PubURL(),
		syncSubject: model.SyncURL(),
		retry:       retry.Quick(),
		timeout:     DefaultHandshakeTimeout,
		encoder:     event.NewSerializer(nil),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "notification-listener", "identifier", l.identifier)
	return l, nil
}

// Degraded reports whether delivery has been abandoned for this run.
func (l *Listener) Degraded() bool {
	return l.degraded
}

// Initialize connects and performs the HELLO handshake.
func (l *Listener) Initialize(ctx context.Context) {
	if l.initialized {
		return
	}
	l.initialized = true

	if l.connector != nil {
		err := retry.Do(ctx, l.retry, func() error {
			return l.connector.Connect(ctx)
		})
		if err != nil {
			l.degrade("connect", err)
			return
		}
	}

	hello := event.FormatHello(l.identifier, event.ProtocolVersion)
	if err := l.handshake(ctx, hello); err != nil {
		l.degrade("hello", err)
		return
	}
	l.metrics.RecordHandshake("client", "hello")
	l.logger.Debug("Handshake completed")
}

// Deliver publishes ev. It does nothing once the listener is degraded or
// finalized.
func (l *Listener) Deliver(ctx context.Context, ev event.Event) {
	if !l.initialized || l.degraded || l.finalized {
		return
	}

	payload, err := l.encoder.Serialize(ev)
	if err != nil {
		l.logger.Error("Failed to encode event", "error", err)
		return
	}
	if err := l.transport.Publish(ctx, l.pubSubject, event.FormatMessage(l.identifier, payload)); err != nil {
		l.degrade("publish", err)
	}
}

// Finalize says GOODBYE. It is a no-op when called twice, before
// Initialize or after the listener degraded.
func (l *Listener) Finalize(ctx context.Context) {
	if !l.initialized || l.finalized {
		return
	}
	l.finalized = true
	if l.degraded {
		return
	}

	if err := l.handshake(ctx, event.FormatGoodbye(l.identifier)); err != nil {
		l.degrade("goodbye", err)
		return
	}
	l.metrics.RecordHandshake("client", "goodbye")
}

// handshake sends frame on the sync channel and expects it back verbatim.
func (l *Listener) handshake(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reply, err := l.transport.Request(ctx, l.syncSubject, frame)
	if err != nil {
		return err
	}
	if !bytes.Equal(reply, frame) {
		return errors.WrapTransient(errors.ErrHandshakeFailed, "Listener", "handshake", "echo check")
	}
	return nil
}

func (l *Listener) degrade(stage string, err error) {
	l.degraded = true
	outcome := "failed"
	if errors.Is(err, errors.ErrConnectionTimeout) || errors.Is(err, context.DeadlineExceeded) {
		outcome = "timeout"
	}
	l.metrics.RecordHandshake("client", outcome)
	l.logger.Warn("UI notification degraded, events will not be delivered",
		"stage", stage,
		"error", err)
}
