package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
	busmemory "github.com/vovakirdan/wirechat-relay/internal/bus/memory"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	storememory "github.com/vovakirdan/wirechat-relay/internal/store/memory"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// DefaultMainRoom is the room every connection joins on connect.
const DefaultMainRoom = "MainRoom"

// Options configures a Hub. Zero values select in-process defaults.
type Options struct {
	MainRoom string
	NodeID   string
	Store    store.Store
	Bus      bus.Bus
	EventLog EventLog
	Logger   *zerolog.Logger
}

// Hub coordinates sessions, room membership, presence and fanout for one
// process. Several hubs sharing a Bus and a Store act as one chat service.
type Hub struct {
	mainRoom string
	node     string
	registry *Registry
	sessions *xsync.Map[string, *Session]
	store    store.Store
	bus      bus.Bus
	events   EventLog
	log      *zerolog.Logger
	ready    chan struct{}

	// seq numbers the frames this hub publishes.
	seq    atomic.Uint64
	deltas *deltaLog

	// mu is held for reading by Connect and for writing by DisconnectAll.
	mu      sync.RWMutex
	closing bool
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options) *Hub {
	if opts.MainRoom == "" {
		opts.MainRoom = DefaultMainRoom
	}
	if opts.NodeID == "" {
		opts.NodeID = utils.NewID()
	}
	if opts.Store == nil {
		opts.Store = storememory.New()
	}
	if opts.Bus == nil {
		opts.Bus = busmemory.New()
	}
	if opts.EventLog == nil {
		opts.EventLog = NopEventLog{}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Hub{
		mainRoom: NormalizeRoom(opts.MainRoom),
		node:     opts.NodeID,
		registry: NewRegistry(),
		sessions: xsync.NewMap[string, *Session](),
		store:    opts.Store,
		bus:      opts.Bus,
		events:   opts.EventLog,
		log:      opts.Logger,
		ready:    make(chan struct{}),
		deltas:   newDeltaLog(),
	}
}

// MainRoom returns the name of the room nobody can leave.
func (h *Hub) MainRoom() string {
	return h.mainRoom
}

// NodeID identifies this process on the bus.
func (h *Hub) NodeID() string {
	return h.node
}

// Registry exposes the membership table for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Ready is closed once the bus subscription is active and peers were asked
// for the membership they hold.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run consumes the bus until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	subscribed := make(chan struct{})
	go func() {
		select {
		case <-subscribed:
		case <-ctx.Done():
			return
		}
		// Ask peers for the membership they hold so room listings include them.
		syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = h.publish(syncCtx, bus.ControlChannel, envelope{Node: h.node, Kind: frameSyncRequest})
		close(h.ready)
		h.log.Info().Str("node", h.node).Str("main_room", h.mainRoom).Msg("hub ready")
	}()

	err := h.bus.Subscribe(ctx, h.onFrame, subscribed)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Connect registers a freshly accepted session: presence record, welcome,
// and the automatic join of the main room. It fails with ErrHubClosed once
// DisconnectAll has started.
func (h *Hub) Connect(ctx context.Context, s *Session) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closing {
		return ErrHubClosed
	}

	h.sessions.Store(s.ID, s)
	connectionsActive.Inc()

	rec := store.Record{
		ConnectionID: s.ID,
		Nickname:     store.DefaultNickname,
		ConnectedAt:  s.ConnectedAt,
	}
	if err := h.store.Create(ctx, rec); err != nil {
		h.storeFailure("create", s.ID, err)
	}

	s.send(&Event{Kind: EventConnected, Text: WelcomeText})
	h.events.Log(LogUserConnected, map[string]any{"socket": s.ID})

	h.join(ctx, s, h.mainRoom, store.DefaultNickname)
	return nil
}

// Disconnect tears a session down exactly once. Leave notifications go to
// every room the session was in when Disconnect started.
func (h *Hub) Disconnect(ctx context.Context, s *Session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)
	rooms := h.registry.RoomsOf(s.ID)

	nickname := s.Nickname()
	if rec, err := h.store.Get(ctx, s.ID); err != nil {
		h.storeFailure("get", s.ID, err)
	} else {
		nickname = rec.Nickname
	}
	if err := h.store.Delete(ctx, s.ID); err != nil {
		h.storeFailure("delete", s.ID, err)
	}

	h.registry.Drop(s.ID)
	h.sessions.Delete(s.ID)
	connectionsActive.Dec()

	h.events.Log(LogUserDisconnected, map[string]any{"socket": s.ID, "username": nickname})

	for _, room := range rooms {
		_ = h.Broadcast(ctx, room, &Event{
			Kind:   EventUserLeft,
			Room:   room,
			User:   nickname,
			ConnID: s.ID,
			Text:   LeftNotice,
		})
	}
}

// DisconnectAll refuses new sessions and disconnects every local one.
// It must run while the store and the bus are still open so presence
// records are removed and peers see the departures.
func (h *Hub) DisconnectAll(ctx context.Context) {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	var sessions []*Session
	h.sessions.Range(func(_ string, s *Session) bool {
		sessions = append(sessions, s)
		return true
	})
	for _, s := range sessions {
		h.Disconnect(ctx, s)
	}
	h.log.Info().Int("sessions", len(sessions)).Msg("local sessions disconnected")
}

// Session returns the local session with the given id.
func (h *Hub) Session(id string) (*Session, bool) {
	return h.sessions.Load(id)
}

func (h *Hub) storeFailure(op, connID string, err error) {
	storeErrors.WithLabelValues(op).Inc()
	h.events.Log(LogError, map[string]any{"socket": connID, "op": op, "error": err.Error()})
}
