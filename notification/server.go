package notification

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/natsclient"
)

// State of the server's connection with a run.
type State int32

// Server states
const (
	StateStopped State = iota
	StateWaiting
	StateReceiving
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateWaiting:
		return "waiting"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Binder delivers the messages of several subjects on one ordered channel.
// *natsclient.Client and testutil.MemoryBus implement it.
type Binder interface {
	Listen(ctx context.Context, out chan<- natsclient.Message, subjects ...string) (natsclient.Subscription, error)
}

// Config names the two channels of the protocol.
type Config struct {
	PubSubject      string `json:"pub_subject" validate:"required"`
	SyncSubject     string `json:"sync_subject" validate:"required,nefield=PubSubject"`
	ProtocolVersion string `json:"protocol_version"`
}

// Server is the receiving end of a run. One worker goroutine owns both
// channels; events are handed to onEvent from that goroutine, in order.
type Server struct {
	binder  Binder
	cfg     Config
	onEvent func(event.Event)
	decoder *event.Deserializer
	logger  *slog.Logger
	metrics *metric.Metrics

	state    atomic.Int32
	received atomic.Int64

	// session is only touched by the worker.
	session string

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	sub         natsclient.Subscription
	done        chan struct{}
}

// NewServer creates a stopped server. onEvent may be nil.
func NewServer(binder Binder, cfg Config, onEvent func(event.Event), opts ...ServerOption) (*Server, error) {
	if binder == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "binder validation")
	}
	if cfg.PubSubject == "" || cfg.SyncSubject == "" || cfg.PubSubject == cfg.SyncSubject {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "NewServer", "subject validation")
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = event.ProtocolVersion
	}
	if onEvent == nil {
		onEvent = func(event.Event) {}
	}

	s := &Server{
		binder:  binder,
		cfg:     cfg,
		onEvent: onEvent,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = event.NewDeserializer(event.NewDefaultRegistry())
	}
	s.logger = s.logger.With("component", "notification-server")
	return s, nil
}

// State returns the current state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Received returns the number of events received since the last StartEvent.
func (s *Server) Received() int64 {
	return s.received.Load()
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.RecordServerState(int(st))
}

// Start binds both channels and starts waiting for a HELLO.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.State() != StateStopped {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "state check")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	in := make(chan natsclient.Message, 64)
	sub, err := s.binder.Listen(workerCtx, in, s.cfg.SyncSubject, s.cfg.PubSubject)
	if err != nil {
		cancel()
		return errors.WrapTransient(err, "Server", "Start", "bind channels")
	}

	s.cancel = cancel
	s.sub = sub
	s.done = make(chan struct{})
	s.session = ""
	s.received.Store(0)
	s.setState(StateWaiting)

	go s.run(workerCtx, in, s.done)

	s.logger.Info("Notification server started",
		"pub_subject", s.cfg.PubSubject,
		"sync_subject", s.cfg.SyncSubject)
	return nil
}

// Stop tears down both channels and returns to StateStopped from any state.
// Calling Stop on a stopped server is a no-op.
func (s *Server) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.cancel == nil {
		s.setState(StateStopped)
		return
	}

	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.Debug("Unsubscribe failed", "error", err)
	}
	s.cancel()
	<-s.done

	s.cancel = nil
	s.sub = nil
	s.done = nil
	s.setState(StateStopped)
	s.logger.Info("Notification server stopped")
}

func (s *Server) run(ctx context.Context, in <-chan natsclient.Message, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-in:
			if msg.Subject == s.cfg.SyncSubject {
				s.handleSync(msg)
			} else {
				s.handlePub(msg)
			}
		}
	}
}

func (s *Server) handleSync(msg natsclient.Message) {
	s.metrics.RecordFrame(frameLabel(msg.Data))

	var reply []byte
	switch s.State() {
	case StateWaiting:
		reply = s.hello(msg.Data)
	case StateReceiving:
		reply = s.goodbye(msg.Data)
	}

	if msg.Reply == nil {
		return
	}
	if err := msg.Reply(reply); err != nil {
		s.logger.Warn("Failed to answer sync request", "error", err)
	}
}

// hello returns the frame itself when it opens a session and an empty reply
// otherwise.
func (s *Server) hello(frame []byte) []byte {
	id, version, err := event.ParseHello(frame)
	if err != nil {
		s.logger.Warn("Ignoring sync request while waiting for HELLO", "frame", string(frame))
		s.metrics.RecordHandshake("server", "rejected")
		return []byte{}
	}
	if version != s.cfg.ProtocolVersion {
		s.logger.Warn("Rejecting HELLO with unsupported protocol version",
			"identifier", id,
			"version", version,
			"expected", s.cfg.ProtocolVersion)
		s.metrics.RecordHandshake("server", "rejected")
		return []byte{}
	}

	s.session = id
	s.received.Store(0)
	s.setState(StateReceiving)
	s.metrics.RecordHandshake("server", "hello")
	s.logger.Info("Run connected", "identifier", id)
	return frame
}

func (s *Server) goodbye(frame []byte) []byte {
	id, err := event.ParseGoodbye(frame)
	if err != nil || id != s.session {
		s.logger.Warn("Ignoring sync request while receiving",
			"frame", string(frame),
			"identifier", s.session)
		s.metrics.RecordHandshake("server", "rejected")
		return []byte{}
	}

	s.setState(StateWaiting)
	s.metrics.RecordHandshake("server", "goodbye")
	s.logger.Info("Run disconnected", "identifier", id, "events", s.received.Load())
	s.session = ""
	return frame
}

func (s *Server) handlePub(msg natsclient.Message) {
	s.metrics.RecordFrame(frameLabel(msg.Data))

	if s.State() != StateReceiving {
		s.logger.Warn("Discarding message received before HELLO", "frame", preview(msg.Data))
		s.metrics.RecordDiscarded()
		return
	}

	id, payload, err := event.ParseMessage(msg.Data)
	if err != nil {
		s.logger.Warn("Discarding malformed message", "error", err)
		s.metrics.RecordDiscarded()
		return
	}
	if id != s.session {
		s.logger.Warn("Discarding message from another run",
			"identifier", id,
			"session", s.session)
		s.metrics.RecordDiscarded()
		return
	}

	ev, err := s.decoder.Deserialize(payload)
	if err != nil {
		s.logger.Warn("Discarding undecodable event", "error", err)
		s.metrics.RecordDiscarded()
		return
	}

	if _, ok := ev.(*event.StartEvent); ok {
		s.received.Store(0)
	}
	s.received.Add(1)
	s.metrics.RecordEvent(typeName(ev))
	s.onEvent(ev)
}

func frameLabel(frame []byte) string {
	if kind := event.KindOf(frame); kind != event.FrameUnknown {
		return string(kind)
	}
	return "unknown"
}

func typeName(ev event.Event) string {
	switch ev.(type) {
	case *event.StartEvent:
		return "start"
	case *event.ProgressEvent:
		return "progress"
	case *event.FinishEvent:
		return "finish"
	default:
		return "other"
	}
}

func preview(frame []byte) string {
	const limit = 64
	if len(frame) > limit {
		return string(frame[:limit]) + "..."
	}
	return string(frame)
}
