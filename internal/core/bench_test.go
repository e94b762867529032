package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(Options{})
	go func() { _ = hub.Run(ctx) }()
	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		b.Fatal("hub not ready")
	}

	sender := NewSession("sender", 1024)
	_ = hub.Connect(ctx, sender)
	_ = hub.Handle(ctx, sender, &Command{Kind: CommandSubscribe, Rooms: []string{"bench"}})
	go func() {
		for range sender.Events {
		}
	}()

	sessions := make([]*Session, 0, recipients)
	for i := range recipients {
		s := NewSession(fmt.Sprintf("c%d", i), 1024)
		_ = hub.Connect(ctx, s)
		_ = hub.Handle(ctx, s, &Command{Kind: CommandSubscribe, Rooms: []string{"bench"}})
		sessions = append(sessions, s)
	}

	// Drain all but the first recipient to avoid queue backpressure.
	target := sessions[0]
	for _, s := range sessions[1:] {
		go func(s *Session) {
			for range s.Events {
			}
		}(s)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = hub.Handle(ctx, sender, &Command{Kind: CommandSendRoomMessage, Room: "bench", Text: "payload"})
		for ev := range target.Events {
			if ev.Kind == EventRoomMessage {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast10(b *testing.B) {
	benchmarkRoomBroadcast(b, 10)
}

func BenchmarkRoomBroadcast100(b *testing.B) {
	benchmarkRoomBroadcast(b, 100)
}

func BenchmarkRegistryMembers(b *testing.B) {
	r := NewRegistry()
	for i := range 1000 {
		r.Add("bench", fmt.Sprintf("c%d", i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Members("bench")
	}
}
