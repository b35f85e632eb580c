package actor

import "time"

// PersistentRepr wraps one event that has been (or is about to be) written
// to the journal. Sequence and PersistenceID are stamped at flush time, not
// at the point the user called Persist/PersistAsync (§4.3). The core never
// sets Sender; it stays nil.
type PersistentRepr struct {
	Payload       any
	SequenceNr    SequenceNr
	Sender        any
	PersistenceID PersistenceID
}

// NonPersistentRepr wraps a deferred callback's payload. It is never
// written to the journal, but a matching LoopMessageSuccess still has to
// arrive before its ledger entry is consumed (§4.2).
type NonPersistentRepr struct {
	Payload any
	Sender  any
}

// SnapshotMetadata describes one stored snapshot.
type SnapshotMetadata struct {
	PersistenceID PersistenceID
	SequenceNr    SequenceNr
	Timestamp     time.Time
}

// SelectedSnapshot is the snapshot chosen by the store for a recovery
// window, if any.
type SelectedSnapshot struct {
	Metadata SnapshotMetadata
	Snapshot any
}

// SnapshotOffer is delivered to the recover handler when a snapshot was
// selected during recovery.
type SnapshotOffer struct {
	Metadata SnapshotMetadata
	Snapshot any
}

// RecoveryCompleted is delivered to the recover handler once replay has
// finished and the entity is about to start processing commands.
type RecoveryCompleted struct{}

// RecoveryFailure is delivered to the recover handler when snapshot load,
// replay, or the recover handler itself failed. Left unhandled, the
// default policy is a fatal ErrActorKilled (§4.6).
type RecoveryFailure struct {
	Cause error
}

func (f RecoveryFailure) Error() string { return "recovery failure: " + f.Cause.Error() }
func (f RecoveryFailure) Unwrap() error { return f.Cause }

// PersistenceFailure is delivered to the command handler when the journal
// rejected a write. Left unhandled, the default policy is a fatal
// ErrActorKilled (§4.6).
type PersistenceFailure struct {
	Payload    any
	SequenceNr SequenceNr
	Cause      error
}

func (f PersistenceFailure) Error() string { return "persistence failure: " + f.Cause.Error() }
func (f PersistenceFailure) Unwrap() error { return f.Cause }

// DeleteMessagesSuccess/Failure and SaveSnapshotSuccess/Failure round out
// the two collaborator operations spec.md names but leaves the reply for
// (see SPEC_FULL.md §4); they arrive through the mailbox and are delivered
// to the command handler as ordinary commands. Unlike PersistenceFailure,
// leaving one unhandled is not fatal: it only reaches the Unhandled hook.

// DeleteMessagesSuccess confirms a DeleteMessagesTo request completed.
type DeleteMessagesSuccess struct {
	ToSequenceNr SequenceNr
}

// DeleteMessagesFailure reports that a DeleteMessagesTo request failed.
type DeleteMessagesFailure struct {
	Cause        error
	ToSequenceNr SequenceNr
}

// SaveSnapshotSuccess confirms a snapshot was durably stored.
type SaveSnapshotSuccess struct {
	Metadata SnapshotMetadata
}

// SaveSnapshotFailure reports that a snapshot write failed.
type SaveSnapshotFailure struct {
	Cause    error
	Snapshot any
}
