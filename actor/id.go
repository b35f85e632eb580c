// Package actor implements a per-entity event-sourced runtime: a single
// persistent entity is recovered from a journal and snapshot store, then
// processes commands by appending derived events to the journal under
// strict ordering guarantees between commands, persisted events, and the
// user's own callbacks.
package actor

import "sync/atomic"

// PersistenceID identifies a logical entity. It must be stable for the
// lifetime of the entity and is used as the routing key for both the
// journal and the snapshot store.
type PersistenceID string

// SequenceNr is an entity-local, monotonically increasing event counter.
type SequenceNr uint64

// MaxSequenceNr is the largest representable sequence number. The lifecycle state
// machine poisons last_sequence_nr to this value when replay fails, so a
// subsequent restart is forced into a full replay rather than trusting the
// journal's reported high-water mark (§4.5).
const MaxSequenceNr SequenceNr = ^SequenceNr(0)

// InstanceID tags every outstanding write issued by one incarnation of an
// entity. Journal replies carrying a stale InstanceID are silently
// discarded because the handler that issued them no longer exists.
type InstanceID uint32

var instanceCounter uint32

// nextInstanceID draws from a process-global monotonically incrementing
// source, per §4.5. Wraparound inside a single journal round trip is
// assumed impossible.
func nextInstanceID() InstanceID {
	return InstanceID(atomic.AddUint32(&instanceCounter, 1))
}
