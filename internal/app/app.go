package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
	busmemory "github.com/vovakirdan/wirechat-relay/internal/bus/memory"
	"github.com/vovakirdan/wirechat-relay/internal/bus/natsbus"
	busredis "github.com/vovakirdan/wirechat-relay/internal/bus/redis"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	wlog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	storememory "github.com/vovakirdan/wirechat-relay/internal/store/memory"
	"github.com/vovakirdan/wirechat-relay/internal/store/natskv"
	storeredis "github.com/vovakirdan/wirechat-relay/internal/store/redis"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// DebugBroadcastText is announced periodically when debug broadcasts are on.
const DebugBroadcastText = "Testing rooms"

// App wires together backends, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	debugInterval   time.Duration
	hub             *core.Hub
	store           store.Store
	bus             bus.Bus
	closers         []func()
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		debugInterval:   cfg.DebugBroadcastInterval,
		log:             logger,
	}
	if err := a.initBackends(ctx, cfg); err != nil {
		a.cleanup()
		return nil, err
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = utils.NewID()
	}
	a.hub = core.NewHub(core.Options{
		MainRoom: cfg.MainRoom,
		NodeID:   nodeID,
		Store:    a.store,
		Bus:      a.bus,
		EventLog: wlog.NewEventLog(logger),
		Logger:   logger,
	})
	a.server = transporthttp.NewServer(a.hub, cfg, logger)

	logger.Info().Str("backend", cfg.Backend).Str("node", nodeID).Msg("relay initialized")
	return a, nil
}

func (a *App) initBackends(ctx context.Context, cfg *config.Config) error {
	switch cfg.Backend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		// The store owns the shared client and closes it.
		a.store = storeredis.New(client, cfg.Redis.KeyPrefix)
		a.bus = busredis.New(client, cfg.ChannelPrefix)
	case config.BackendNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("wirechat-relay"))
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
		}
		a.closers = append(a.closers, nc.Close)
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
		st, err := natskv.New(ctx, js, cfg.NATS.Bucket)
		if err != nil {
			return err
		}
		a.store = st
		a.bus = natsbus.New(nc, cfg.ChannelPrefix)
	default:
		a.store = storememory.New()
		a.bus = busmemory.New()
	}
	return nil
}

// Run starts the hub and the HTTP server and blocks until context
// cancellation or fatal error.
//
// Shutdown order: stop the HTTP server, disconnect the local sessions while
// the store and the bus still work, stop the bus subscription, close the
// backends.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	// The hub keeps consuming the bus until its sessions are gone.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.hub.Run(hubCtx)
	})

	// Serve only once the hub can see the bus.
	select {
	case <-a.hub.Ready():
	case <-ctx.Done():
		stopHub()
		return g.Wait()
	}

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		defer stopHub()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)

		// Upgraded connections are not tracked by the server.
		disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancelDisconnect()
		a.hub.DisconnectAll(disconnectCtx)
		return err
	})
	if a.debugInterval > 0 {
		g.Go(func() error {
			a.debugBroadcasts(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) debugBroadcasts(ctx context.Context) {
	ticker := time.NewTicker(a.debugInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.hub.BroadcastAll(ctx, DebugBroadcastText); err != nil {
				a.log.Warn().Err(err).Msg("debug broadcast failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Hub exposes the relay core.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Handler exposes the HTTP routes.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// cleanup closes backends and other resources.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	for _, closeFn := range a.closers {
		closeFn()
	}
}
