// Package redis carries relay frames over Redis pub/sub, one Redis
// channel per room under a common prefix.
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
)

// Bus publishes on "<prefix>:room:<name>" and pattern-subscribes to all
// of them. The control channel is "<prefix>:control".
type Bus struct {
	client goredis.UniversalClient
	prefix string
}

var _ bus.Bus = (*Bus)(nil)

// New wraps an existing client. The client is not closed by the bus.
func New(client goredis.UniversalClient, prefix string) *Bus {
	return &Bus{client: client, prefix: prefix}
}

func (b *Bus) roomPrefix() string {
	return b.prefix + ":room:"
}

func (b *Bus) controlChannel() string {
	return b.prefix + ":control"
}

func (b *Bus) channelFor(name string) string {
	if name == bus.ControlChannel {
		return b.controlChannel()
	}
	return b.roomPrefix() + name
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, b.channelFor(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, h bus.Handler, ready chan<- struct{}) error {
	pubsub := b.client.PSubscribe(ctx, b.roomPrefix()+"*")
	defer pubsub.Close()

	if err := pubsub.Subscribe(ctx, b.controlChannel()); err != nil {
		return fmt.Errorf("redis subscribe control: %w", err)
	}
	// Wait for both confirmations so nothing published afterwards is missed.
	for range 2 {
		if _, err := pubsub.Receive(ctx); err != nil {
			return fmt.Errorf("redis subscribe: %w", err)
		}
	}
	bus.MarkReady(ready)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			name := bus.ControlChannel
			if strings.HasPrefix(msg.Channel, b.roomPrefix()) {
				name = strings.TrimPrefix(msg.Channel, b.roomPrefix())
			} else if msg.Channel != b.controlChannel() {
				continue
			}
			h(name, []byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bus) Close() error {
	return nil
}
