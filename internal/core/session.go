package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// DefaultSendBuffer is the outbound queue length used when none is given.
const DefaultSendBuffer = 64

// Session is one live client connection as seen by the core layer.
// Room membership is kept by the Registry, not here.
type Session struct {
	ID          string
	ConnectedAt time.Time
	Events      chan *Event

	mu       sync.Mutex
	nickname string
	closed   atomic.Bool
	done     chan struct{}
}

// NewSession constructs a session with an outbound queue of the given size.
func NewSession(id string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		Events:      make(chan *Event, buffer),
		nickname:    store.DefaultNickname,
		done:        make(chan struct{}),
	}
}

// Done is closed once the hub has disconnected the session.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Nickname returns the last nickname this process saw for the session.
func (s *Session) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

func (s *Session) setNickname(name string) {
	s.mu.Lock()
	s.nickname = name
	s.mu.Unlock()
}

// send queues an event without blocking. Slow consumers lose events.
func (s *Session) send(ev *Event) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.Events <- ev:
		return true
	default:
		deliveriesDropped.Inc()
		return false
	}
}
