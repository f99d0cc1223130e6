// Package natsclient manages the NATS connection used for workflow storage and
// for the notification protocol between a running optimizer and the UI.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/force-h2020/wfmanager/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Subscription is a live subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
}

// Message is an inbound message delivered by Listen. Reply is non-nil when
// the sender expects a response.
type Message struct {
	Subject string
	Data    []byte
	Reply   func([]byte) error
}

// Client manages a single NATS connection.
type Client struct {
	url      string
	logger   *slog.Logger
	status   atomic.Int32
	failures atomic.Int32

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string

	onDisconnect func(error)
	onReconnect  func()

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a new NATS client with optional configuration. No
// connection is attempted until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.setStatus(StatusDisconnected)

	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

func (m *Client) setStatus(s ConnectionStatus) {
	m.status.Store(int32(s))
}

// IsHealthy returns true if the connection is usable
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the number of failed connection attempts since the last
// successful one.
func (m *Client) Failures() int32 {
	return m.failures.Load()
}

// GetConnection returns the underlying connection, or nil.
func (m *Client) GetConnection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	return opts
}

// Connect establishes the connection, honouring ctx for cancellation.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapInvalid(ErrNotConnected, "Client", "Connect", "client closed")
	}

	m.setStatus(StatusConnecting)
	m.logger.Debug("Connecting to NATS", "url", m.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(m.url, m.connectionOptions()...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			m.failures.Add(1)
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
		}
		js, err := jetstream.New(res.conn)
		if err != nil {
			m.logger.Warn("JetStream unavailable", "error", err)
		}
		m.mu.Lock()
		m.conn = res.conn
		m.js = js
		m.mu.Unlock()
	case <-ctx.Done():
		m.failures.Add(1)
		m.setStatus(StatusDisconnected)
		// The dial may still complete; close it so it does not leak.
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.failures.Store(0)
	m.setStatus(StatusConnected)
	m.logger.Info("Connected to NATS", "url", m.url)
	return nil
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionTimeout, ctx.Err()),
				"Client", "WaitForConnection", "wait")
		case <-ticker.C:
		}
	}
}

// Close drains subscriptions and closes the connection. Calling Close more
// than once is a no-op.
func (m *Client) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	subs := m.subs
	m.subs = nil
	m.conn = nil
	m.js = nil
	m.password = ""
	m.token = ""
	m.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}

	if conn != nil {
		drained := make(chan error, 1)
		go func() { drained <- conn.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				m.logger.Debug("Drain failed, closing", "error", err)
				conn.Close()
			}
		case <-ctx.Done():
			conn.Close()
		}
	}

	m.setStatus(StatusClosed)
	return nil
}

func (m *Client) liveConn() (*nats.Conn, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// Publish publishes data to subject.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := m.liveConn()
	if err != nil {
		return err
	}
	return conn.Publish(subject, data)
}

// Subscribe calls handler for every message on subject. Each call gets a
// context derived from ctx with a 30 second timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (Subscription, error) {
	conn, err := m.liveConn()
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}

	m.track(sub)
	return sub, nil
}

// Request sends data to subject and waits for a single reply.
func (m *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	conn, err := m.liveConn()
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, nats.ErrTimeout) {
			return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionTimeout, err),
				"Client", "Request", "request "+subject)
		}
		return nil, errors.WrapTransient(err, "Client", "Request", "request "+subject)
	}
	return msg.Data, nil
}

// Reply answers every request on subject with the bytes handler returns.
func (m *Client) Reply(ctx context.Context, subject string, handler func(context.Context, []byte) []byte) (Subscription, error) {
	conn, err := m.liveConn()
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if msg.Reply == "" {
			m.logger.Debug("Dropping request without reply subject", "subject", subject)
			return
		}
		if err := msg.Respond(handler(msgCtx, msg.Data)); err != nil {
			m.logger.Warn("Failed to send reply", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Reply", "subscribe "+subject)
	}

	m.track(sub)
	return sub, nil
}

// Listen delivers messages from all subjects to out, in the order the
// connection received them. Messages on different subjects keep their
// relative order, which plain Subscribe does not guarantee.
func (m *Client) Listen(ctx context.Context, out chan<- Message, subjects ...string) (Subscription, error) {
	conn, err := m.liveConn()
	if err != nil {
		return nil, err
	}

	in := make(chan *nats.Msg, 256)
	l := &listener{done: make(chan struct{})}
	for _, subject := range subjects {
		sub, err := conn.ChanSubscribe(subject, in)
		if err != nil {
			_ = l.Unsubscribe()
			return nil, errors.WrapTransient(err, "Client", "Listen", "subscribe "+subject)
		}
		l.subs = append(l.subs, sub)
	}

	go func() {
		for {
			select {
			case <-l.done:
				return
			case <-ctx.Done():
				return
			case msg := <-in:
				inbound := Message{Subject: msg.Subject, Data: msg.Data}
				if msg.Reply != "" {
					inbound.Reply = msg.Respond
				}
				select {
				case out <- inbound:
				case <-l.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return l, nil
}

type listener struct {
	subs []*nats.Subscription
	once sync.Once
	done chan struct{}
}

func (l *listener) Unsubscribe() error {
	var errs []error
	l.once.Do(func() {
		for _, sub := range l.subs {
			if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, err)
			}
		}
		close(l.done)
	})
	return stderrors.Join(errs...)
}

func (m *Client) track(sub *nats.Subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
}

// JetStream returns the JetStream context
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.js == nil {
		return nil, ErrNotConnected
	}
	return m.js, nil
}

// CreateKeyValueBucket returns the bucket named in cfg, creating it if it
// does not exist yet.
func (m *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		m.logger.Debug("Using existing KV bucket", "bucket", cfg.Bucket)
		return bucket, nil
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !isAlreadyExistsError(err) {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create "+cfg.Bucket)
		}
		// Lost a creation race with another client.
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "open "+cfg.Bucket)
		}
	}

	m.logger.Info("KV bucket ready", "bucket", cfg.Bucket)
	return bucket, nil
}

// GetKeyValueBucket opens an existing bucket without creating it. A missing
// bucket is reported as errors.ErrKeyNotFound.
func (m *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: bucket %s", errors.ErrKeyNotFound, name),
				"Client", "GetKeyValueBucket", "open "+name)
		}
		return nil, errors.WrapTransient(err, "Client", "GetKeyValueBucket", "open "+name)
	}
	return bucket, nil
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("Disconnected from NATS", "error", err)

	m.mu.RLock()
	fn := m.onDisconnect
	m.mu.RUnlock()
	if fn != nil {
		go fn(err)
	}
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.logger.Info("Reconnected to NATS", "url", m.url)

	m.mu.RLock()
	fn := m.onReconnect
	m.mu.RUnlock()
	if fn != nil {
		go fn()
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	if m.closed.Load() {
		m.setStatus(StatusClosed)
		return
	}
	m.setStatus(StatusDisconnected)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Error("NATS error", "error", err)
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "bucket name already in use") ||
		strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "stream name already in use")
}
