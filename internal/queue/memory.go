package queue

import (
	"context"
	"errors"
	"sync"
)

// Memory is a channel-backed queue satisfying both Producer and Consumer.
// Used in tests and single-process runs; it is not durable.
type Memory struct {
	ch     chan Message
	once   sync.Once
	closed chan struct{}
}

// NewMemory builds an in-memory queue with the given buffer size.
func NewMemory(size int) *Memory {
	return &Memory{
		ch:     make(chan Message, size),
		closed: make(chan struct{}),
	}
}

// Enqueue adds a message without blocking; a full buffer is an error so the
// caller can surface backpressure instead of hanging a request.
func (m *Memory) Enqueue(ctx context.Context, msg Message) error {
	select {
	case <-m.closed:
		return errors.New("queue closed")
	case m.ch <- msg:
		return nil
	default:
		return errors.New("queue full")
	}
}

// Run delivers messages to handler until ctx is done. Handler errors are
// redelivered by re-queueing at the back.
func (m *Memory) Run(ctx context.Context, handler func(ctx context.Context, msg Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.closed:
			return nil
		case msg := <-m.ch:
			if err := handler(ctx, msg); err != nil {
				select {
				case m.ch <- msg:
				default:
				}
			}
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
