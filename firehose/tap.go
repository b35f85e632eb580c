package firehose

import (
	"context"

	"eventactor/runtime/actor"
)

// Tap wraps an actor.Journal, publishing every successfully persisted
// envelope to a Hub while otherwise delegating unchanged. It implements
// actor.Journal itself so cmd/eventactord can use it as a drop-in
// replacement for the underlying backend.
type Tap struct {
	actor.Journal
	hub *Hub
}

// NewTap returns a Journal that fans successful writes out to hub.
func NewTap(journal actor.Journal, hub *Hub) *Tap {
	return &Tap{Journal: journal, hub: hub}
}

// WriteMessages overrides the embedded Journal to intercept
// WriteMessageSuccess replies and publish them to the hub before
// forwarding to replyTo, unchanged.
func (t *Tap) WriteMessages(ctx context.Context, batch []actor.JournalEnvelope, instanceID actor.InstanceID, replyTo actor.Inbox) {
	t.Journal.WriteMessages(ctx, batch, instanceID, &tapInbox{inner: replyTo, hub: t.hub})
}

// tapInbox intercepts WriteMessageSuccess messages addressed to the real
// recipient, publishing them to the hub before forwarding unchanged. Every
// other message type passes through untouched.
type tapInbox struct {
	inner actor.Inbox
	hub   *Hub
}

func (t *tapInbox) Tell(msg any) {
	if success, ok := msg.(actor.WriteMessageSuccess); ok {
		t.hub.Publish(Event{
			PersistenceID: string(success.Persistent.PersistenceID),
			SequenceNr:    uint64(success.Persistent.SequenceNr),
			Payload:       success.Persistent.Payload,
		})
	}
	t.inner.Tell(msg)
}
