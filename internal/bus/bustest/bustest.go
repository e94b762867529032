// Package bustest holds the behaviour every bus backend must share.
package bustest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
)

type frame struct {
	channel string
	payload string
}

type recorder struct {
	mu     sync.Mutex
	frames []frame
}

func (r *recorder) handle(channel string, payload []byte) {
	r.mu.Lock()
	r.frames = append(r.frames, frame{channel: channel, payload: string(payload)})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

func subscribe(t *testing.T, b bus.Bus) *recorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Subscribe(ctx, rec.handle, ready)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not ready")
	}
	return rec
}

// Run exercises a bus against the shared contract. newBus may return the
// same broker for repeated calls; each call is one process's view of it.
func Run(t *testing.T, newBus func(t *testing.T) bus.Bus) {
	t.Run("FanoutToAllSubscribers", func(t *testing.T) {
		b := newBus(t)
		first := subscribe(t, b)
		second := subscribe(t, b)

		ctx := context.Background()
		require.NoError(t, b.Publish(ctx, "lobby", []byte("hello")))
		require.NoError(t, b.Publish(ctx, bus.ControlChannel, []byte("sync")))
		require.NoError(t, b.Publish(ctx, "lob.by/*", []byte("odd")))

		want := []frame{{"lobby", "hello"}, {bus.ControlChannel, "sync"}, {"lob.by/*", "odd"}}
		for _, rec := range []*recorder{first, second} {
			require.Eventually(t, func() bool { return len(rec.snapshot()) == len(want) }, 5*time.Second, 10*time.Millisecond)
			require.ElementsMatch(t, want, rec.snapshot())
		}
	})

	t.Run("PerChannelOrder", func(t *testing.T) {
		b := newBus(t)
		rec := subscribe(t, b)

		ctx := context.Background()
		const n = 50
		for i := range n {
			require.NoError(t, b.Publish(ctx, "ordered", []byte(fmt.Sprint(i))))
		}
		require.Eventually(t, func() bool { return len(rec.snapshot()) == n }, 5*time.Second, 10*time.Millisecond)
		for i, f := range rec.snapshot() {
			require.Equal(t, fmt.Sprint(i), f.payload)
		}
	})
}
