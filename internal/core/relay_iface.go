package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

// MessageHandler receives named messages published on a topic.
type MessageHandler func(name string, payload []byte)

// PresenceHandler receives membership changes of a topic.
type PresenceHandler func(domain.PresenceEvent)

// Relay abstracts the pub/sub transport all signaling flows through.
// It delivers named messages to every current subscriber of a topic, in
// publish order per subscription. Owned by the adapter; the adapter must
// Close() it.
type Relay interface {
	Attach(ctx context.Context, topic string) error
	Detach(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic, name string, payload []byte) error
	Subscribe(ctx context.Context, topic, name string, handler MessageHandler) error
	SubscribePresence(ctx context.Context, topic string, handler PresenceHandler) error
	PresenceEnter(ctx context.Context, topic string, identity domain.Identity) error
	PresenceLeave(ctx context.Context, topic string) error
	PresenceSnapshot(ctx context.Context, topic string) ([]domain.Identity, error)
}
