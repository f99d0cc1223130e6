package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/natsclient"
)

// DefaultRequestTimeout bounds Request calls whose context has no deadline.
const DefaultRequestTimeout = time.Second

// MemoryBus is an in-memory transport mirroring natsclient.Client.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[int]*memSub
	messages map[string][][]byte
	closed   bool
}

type memSub struct {
	id       int
	subjects map[string]bool
	handler  func(context.Context, []byte)
	replier  func(context.Context, []byte) []byte
	out      chan<- natsclient.Message
	ctx      context.Context
	bus      *MemoryBus
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:     make(map[int]*memSub),
		messages: make(map[string][][]byte),
	}
}

func (b *MemoryBus) add(s *memSub, subjects ...string) (natsclient.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, natsclient.ErrNotConnected
	}
	b.nextID++
	s.id = b.nextID
	s.bus = b
	s.subjects = make(map[string]bool, len(subjects))
	for _, subject := range subjects {
		s.subjects[subject] = true
	}
	b.subs[s.id] = s
	return s, nil
}

// Unsubscribe removes the subscription; repeated calls are no-ops.
func (s *memSub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return nil
}

func (b *MemoryBus) matching(subject string) ([]*memSub, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, natsclient.ErrNotConnected
	}
	var out []*memSub
	for _, s := range b.subs {
		if s.subjects[subject] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *MemoryBus) record(subject string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[subject] = append(b.messages[subject], append([]byte(nil), data...))
}

// Publish delivers data to every subscriber of subject before returning.
func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	subs, err := b.matching(subject)
	if err != nil {
		return err
	}
	b.record(subject, data)

	for _, s := range subs {
		switch {
		case s.handler != nil:
			s.handler(ctx, data)
		case s.out != nil:
			select {
			case s.out <- natsclient.Message{Subject: subject, Data: data}:
			case <-s.ctx.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Subscribe calls handler for every message published on subject.
func (b *MemoryBus) Subscribe(_ context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	return b.add(&memSub{handler: handler}, subject)
}

// Reply answers requests on subject with handler's result.
func (b *MemoryBus) Reply(_ context.Context, subject string, handler func(context.Context, []byte) []byte) (natsclient.Subscription, error) {
	return b.add(&memSub{replier: handler}, subject)
}

// Listen forwards messages on all subjects to out in publish order.
func (b *MemoryBus) Listen(ctx context.Context, out chan<- natsclient.Message, subjects ...string) (natsclient.Subscription, error) {
	return b.add(&memSub{out: out, ctx: ctx}, subjects...)
}

// Request sends data to the first responder on subject and waits for its
// reply. Without a responder the call fails like a NATS request would.
func (b *MemoryBus) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	subs, err := b.matching(subject)
	if err != nil {
		return nil, err
	}
	b.record(subject, data)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	for _, s := range subs {
		switch {
		case s.replier != nil:
			return s.replier(ctx, data), nil
		case s.out != nil:
			reply := make(chan []byte, 1)
			msg := natsclient.Message{
				Subject: subject,
				Data:    data,
				Reply: func(resp []byte) error {
					select {
					case reply <- resp:
					default:
					}
					return nil
				},
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
				return nil, timeout(subject)
			}
			select {
			case resp := <-reply:
				return resp, nil
			case <-ctx.Done():
				return nil, timeout(subject)
			}
		}
	}
	return nil, errors.WrapTransient(errors.ErrNoConnection, "MemoryBus", "Request", "request "+subject)
}

func timeout(subject string) error {
	return errors.WrapTransient(fmt.Errorf("%w: no reply on %s", errors.ErrConnectionTimeout, subject),
		"MemoryBus", "Request", "request "+subject)
}

// Messages returns copies of everything sent on subject.
func (b *MemoryBus) Messages(subject string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, len(b.messages[subject]))
	copy(out, b.messages[subject])
	return out
}

// Close makes every later call fail with natsclient.ErrNotConnected.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]*memSub)
}
