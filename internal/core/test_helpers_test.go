package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// collect drains ch until it stays quiet for a short while.
func collect(ch <-chan *Event) []*Event {
	var events []*Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-time.After(150 * time.Millisecond):
			return events
		}
	}
}

func filter(events []*Event, kind EventKind, room string) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Kind == kind && ev.Room == room {
			out = append(out, ev)
		}
	}
	return out
}

// startHub runs a hub until the test ends and waits for its subscription.
func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("hub not ready")
	}
	return hub
}

func connect(t *testing.T, hub *Hub, id string) *Session {
	t.Helper()
	s := NewSession(id, 256)
	if err := hub.Connect(context.Background(), s); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	mustEvent(t, s.Events, EventConnected)
	return s
}

func handle(t *testing.T, hub *Hub, s *Session, cmd *Command) {
	t.Helper()
	if err := hub.Handle(context.Background(), s, cmd); err != nil {
		t.Fatalf("handle %s: %v", cmd.Kind, err)
	}
}

type recordingLog struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLog) Log(event string, _ map[string]any) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *recordingLog) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

// flakyStore wraps a store and fails the selected operations.
type flakyStore struct {
	store.Store

	mu      sync.Mutex
	failGet bool
	deletes map[string]int
}

var errBackendDown = errors.New("backend down")

func newFlakyStore(inner store.Store) *flakyStore {
	return &flakyStore{Store: inner, deletes: make(map[string]int)}
}

func (f *flakyStore) setFailGet(v bool) {
	f.mu.Lock()
	f.failGet = v
	f.mu.Unlock()
}

func (f *flakyStore) Get(ctx context.Context, id string) (store.Record, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return store.Record{}, errBackendDown
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deletes[id]++
	f.mu.Unlock()
	return f.Store.Delete(ctx, id)
}

func (f *flakyStore) deleteCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[id]
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
