package actor

import "context"

// Inbox is the subset of Entity that journal/snapshot implementations need
// in order to deliver replies back in order: a single asynchronous Tell.
// Implementations must treat it as fire-and-forget and must preserve the
// relative order in which they call it for a single persistence id (§5).
type Inbox interface {
	Tell(msg any)
}

// Journal is the external collaborator that owns the durable, ordered
// event log for every persistence id. The core only ever depends on this
// interface; concrete transports live under journal/ (in-memory, file, and
// gRPC-backed implementations ship with this module, see SPEC_FULL.md §3).
//
// Every method is asynchronous: it delivers its result to replyTo rather
// than returning it, mirroring §6.1/§6.2's message-passing contract so the
// entity's mailbox remains the only synchronization point.
type Journal interface {
	// LoadSnapshot requests the latest snapshot in [fromSeq, toSeq] and
	// delivers LoadSnapshotResult to replyTo.
	LoadSnapshot(ctx context.Context, persistenceID PersistenceID, fromSeq, toSeq SequenceNr, replyTo Inbox)

	// ReplayMessages delivers one ReplayedMessage per stored event in
	// [fromSeq, toSeq] (bounded by max, 0 = unbounded), in sequence order,
	// followed by exactly one of ReplayMessagesSuccess or
	// ReplayMessagesFailure.
	ReplayMessages(ctx context.Context, persistenceID PersistenceID, fromSeq, toSeq SequenceNr, max uint64, replyTo Inbox)

	// ReadHighestSequenceNr delivers ReadHighestSequenceNrSuccess or
	// ReadHighestSequenceNrFailure to replyTo.
	ReadHighestSequenceNr(ctx context.Context, persistenceID PersistenceID, fromSeq SequenceNr, replyTo Inbox)

	// WriteMessages atomically appends batch and delivers, in order, one
	// WriteMessageSuccess/Failure or LoopMessageSuccess per envelope,
	// followed by exactly one WriteMessagesSuccessful or
	// WriteMessagesFailed.
	WriteMessages(ctx context.Context, batch []JournalEnvelope, instanceID InstanceID, replyTo Inbox)

	// DeleteMessagesTo removes (logically or permanently) events up to and
	// including toSeq, delivering DeleteMessagesSuccess/Failure to replyTo.
	DeleteMessagesTo(ctx context.Context, persistenceID PersistenceID, toSeq SequenceNr, permanent bool, replyTo Inbox)
}

// SnapshotStore is the external collaborator owning snapshots. LoadSnapshot
// is reached through Journal above (matching spec.md's outgoing-message
// table); SaveSnapshot is the supplemented write path (SPEC_FULL.md §4).
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, persistenceID PersistenceID, sequenceNr SequenceNr, snapshot any, replyTo Inbox)
}

// JournalEnvelope is one element of a write batch, assigned its sequence
// number and persistence id at flush time (§4.3). Persistent is false for
// deferred, non-persisted entries (Defer after a non-empty ledger).
type JournalEnvelope struct {
	Persistent    bool
	Repr          PersistentRepr
	NonPersistent NonPersistentRepr
}

// --- Incoming journal/snapshot replies (§6.2) ---

// LoadSnapshotResult is the outcome of a LoadSnapshot request.
type LoadSnapshotResult struct {
	Selected *SelectedSnapshot
	ToSeq    SequenceNr
}

// ReplayedMessage carries one replayed event.
type ReplayedMessage struct {
	Persistent PersistentRepr
}

// ReplayMessagesSuccess signals the replay stream finished without error.
type ReplayMessagesSuccess struct{}

// ReplayMessagesFailure signals the replay stream aborted.
type ReplayMessagesFailure struct {
	Cause error
}

// ReadHighestSequenceNrSuccess reports the journal's current high-water mark.
type ReadHighestSequenceNrSuccess struct {
	Highest SequenceNr
}

// ReadHighestSequenceNrFailure reports that the high-water lookup failed.
type ReadHighestSequenceNrFailure struct {
	Cause error
}

// WriteMessageSuccess acknowledges one persisted envelope.
type WriteMessageSuccess struct {
	Persistent PersistentRepr
	InstanceID InstanceID
}

// WriteMessageFailure reports that one persisted envelope was rejected.
type WriteMessageFailure struct {
	Persistent PersistentRepr
	Cause      error
	InstanceID InstanceID
}

// LoopMessageSuccess acknowledges one deferred, non-persisted envelope.
type LoopMessageSuccess struct {
	Message    NonPersistentRepr
	InstanceID InstanceID
}

// WriteMessagesSuccessful is the batch-level flow-control acknowledgement.
type WriteMessagesSuccessful struct{}

// WriteMessagesFailed is the batch-level flow-control failure signal.
type WriteMessagesFailed struct {
	Cause error
}

// Recover requests (re)entry into the recovery phase. A zero value means
// "replay everything the journal has, unbounded, offering the latest
// snapshot" — the default pre_start behavior. ToSequenceNr/ReplayMax let a
// restart bound replay to what the failed incarnation already knew about
// (§4.6); SkipSnapshot lets a restart skip the snapshot lookup when the
// caller already knows none is needed.
type Recover struct {
	SkipSnapshot bool
	ToSequenceNr SequenceNr
	ReplayMax    uint64
}
