// Package natsbus carries relay frames over core NATS subjects.
package natsbus

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
)

// flushTimeout bounds the round trip confirming the subscriptions.
const flushTimeout = 5 * time.Second

// Bus publishes room frames on "<prefix>.room.<token>" where token is the
// base64url room name, since room names may contain subject separators.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

var _ bus.Bus = (*Bus)(nil)

// New wraps an existing connection. The connection is not closed by the bus.
func New(nc *nats.Conn, prefix string) *Bus {
	return &Bus{nc: nc, prefix: prefix}
}

func (b *Bus) roomPrefix() string {
	return b.prefix + ".room."
}

func (b *Bus) controlSubject() string {
	return b.prefix + ".control"
}

func (b *Bus) subjectFor(channel string) string {
	if channel == bus.ControlChannel {
		return b.controlSubject()
	}
	return b.roomPrefix() + base64.RawURLEncoding.EncodeToString([]byte(channel))
}

func (b *Bus) channelOf(subject string) (string, bool) {
	if subject == b.controlSubject() {
		return bus.ControlChannel, true
	}
	token, ok := strings.CutPrefix(subject, b.roomPrefix())
	if !ok {
		return "", false
	}
	name, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	return string(name), true
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.nc.IsClosed() {
		return bus.ErrClosed
	}
	if err := b.nc.Publish(b.subjectFor(channel), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, h bus.Handler, ready chan<- struct{}) error {
	// One channel subscription keeps a single ordered stream for the handler.
	msgs := make(chan *nats.Msg, 4096)
	rooms, err := b.nc.ChanSubscribe(b.roomPrefix()+"*", msgs)
	if err != nil {
		return fmt.Errorf("nats subscribe rooms: %w", err)
	}
	defer func() { _ = rooms.Unsubscribe() }()

	control, err := b.nc.ChanSubscribe(b.controlSubject(), msgs)
	if err != nil {
		return fmt.Errorf("nats subscribe control: %w", err)
	}
	defer func() { _ = control.Unsubscribe() }()

	// FlushWithContext rejects contexts without a deadline.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	err = b.nc.FlushWithContext(flushCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	bus.MarkReady(ready)

	for {
		select {
		case msg := <-msgs:
			name, ok := b.channelOf(msg.Subject)
			if !ok {
				continue
			}
			h(name, msg.Data)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bus) Close() error {
	return nil
}
