// Package memory is an in-process bus. Several hubs sharing one Bus
// behave like several relay processes sharing a broker.
package memory

import (
	"context"
	"sync"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
)

const defaultQueueSize = 4096

type frame struct {
	channel string
	payload []byte
}

type subscriber struct {
	queue chan frame
}

// Bus fans frames out to every active subscriber.
type Bus struct {
	mu        sync.Mutex
	subs      map[*subscriber]struct{}
	queueSize int
	closed    bool
}

var _ bus.Bus = (*Bus)(nil)

// New creates an in-process bus.
func New() *Bus {
	return &Bus{
		subs:      make(map[*subscriber]struct{}),
		queueSize: defaultQueueSize,
	}
}

// Publish enqueues payload for every subscriber. A subscriber whose queue
// is full misses the frame.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return bus.ErrClosed
	}
	f := frame{channel: channel, payload: payload}
	for sub := range b.subs {
		select {
		case sub.queue <- f:
		default:
			bus.FramesDropped.WithLabelValues("memory").Inc()
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, h bus.Handler, ready chan<- struct{}) error {
	sub := &subscriber{queue: make(chan frame, b.queueSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return bus.ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}()

	bus.MarkReady(ready)

	for {
		select {
		case f := <-sub.queue:
			h(f.channel, f.payload)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
