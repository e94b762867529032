package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
	"github.com/vovakirdan/wirechat-relay/internal/bus/bustest"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestBusContract(t *testing.T) {
	ns := startServer(t)

	bustest.Run(t, func(t *testing.T) bus.Bus {
		nc, err := nats.Connect(ns.ClientURL())
		require.NoError(t, err)
		t.Cleanup(nc.Close)
		return New(nc, "wirechat")
	})
}

func TestSubjectRoundTrip(t *testing.T) {
	b := New(nil, "wirechat")
	for _, name := range []string{"lobby", "a.b", "*>", bus.ControlChannel} {
		got, ok := b.channelOf(b.subjectFor(name))
		require.True(t, ok)
		require.Equal(t, name, got)
	}
	_, ok := b.channelOf("other.subject")
	require.False(t, ok)
}

func TestSubscribeReadyWithCancelOnlyContext(t *testing.T) {
	ns := startServer(t)
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	b := New(nc, "wirechat")
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- b.Subscribe(ctx, func(string, []byte) {}, ready) }()

	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("subscribe returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not ready")
	}

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
