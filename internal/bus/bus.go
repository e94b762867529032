// Package bus is the publish/subscribe abstraction the relay uses to fan
// room traffic out across server processes. Channels are room names; the
// empty name is the control channel and never carries room traffic.
package bus

import (
	"context"
	"errors"
)

// ControlChannel carries node-to-node coordination frames.
const ControlChannel = ""

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// Handler receives every frame published on any channel, in publish order
// per channel. It is called from a single goroutine.
type Handler func(channel string, payload []byte)

// Bus publishes opaque payloads on named channels.
type Bus interface {
	// Publish sends payload to every subscriber of channel. Fire-and-forget:
	// a nil error only means the backend accepted the frame.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe delivers all channels to h until ctx is cancelled. The
	// subscription is active once ready is closed; ready may be nil.
	Subscribe(ctx context.Context, h Handler, ready chan<- struct{}) error

	// Close releases backend resources.
	Close() error
}

// MarkReady closes ready if the caller asked for it.
func MarkReady(ready chan<- struct{}) {
	if ready != nil {
		close(ready)
	}
}
