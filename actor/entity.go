package actor

import (
	"context"
	"errors"
	"fmt"

	"eventactor/runtime/internal/logging"
)

// ErrRecoveryRequired is returned by Persist/PersistAsync/Defer
// when the entity is in RecoveryUnavailable: a user handled RecoveryFailure
// without killing the actor, so the core refuses further persistence calls
// until a fresh Recover is processed (Open Question, spec.md §9).
var ErrRecoveryRequired = errors.New("actor: recovery required before persisting")

// ErrNotProcessingCommand is returned when Persist/PersistAsync/Defer are
// called outside of a command dispatch (§4.2: "callable only during
// command processing, not during recovery").
var ErrNotProcessingCommand = errors.New("actor: persist/defer only valid while processing a command")

// Handler is the user-supplied behavior for one entity: the identity, the
// recovery-time event/signal dispatcher, and the command dispatcher.
// Following spec.md §9's design note, both dispatchers return whether they
// handled the message — the Go analogue of a partial function — rather
// than relying on exceptions for control flow.
type Handler interface {
	PersistenceID() PersistenceID
	ReceiveRecover(e *Entity, event any) bool
	ReceiveCommand(e *Entity, cmd any) bool
}

// Optional hooks a Handler may additionally implement (§6.3).
type (
	// ReplaySuccessHook is invoked once replay finishes without error.
	ReplaySuccessHook interface{ OnReplaySuccess(e *Entity) }
	// ReplayFailureHook is invoked when replay aborts.
	ReplayFailureHook interface{ OnReplayFailure(e *Entity, cause error) }
	// PreStartHook overrides the default pre_start behavior (send Recover{}
	// to self). If present, it alone is responsible for arming recovery.
	PreStartHook interface{ PreStart(e *Entity) }
	// PreRestartHook runs before a fatal failure is handed to the
	// supervisor, after the journal batch has been flushed best-effort.
	PreRestartHook interface {
		PreRestart(e *Entity, cause error, message any)
	}
	// PostStopHook runs once the entity's Run loop returns for any reason.
	PostStopHook interface{ PostStop(e *Entity) }
	// UnhandledHook is invoked when ReceiveCommand returns false for a
	// message that isn't one of the default-kill signals. A false result
	// from ReceiveRecover is not reported to it.
	UnhandledHook interface{ Unhandled(e *Entity, msg any) }
)

// pendingEnvelope is one handler-invocation result queued during the
// current command, before sequence numbers are assigned at flush time.
type pendingEnvelope struct {
	persistent bool
	payload    any
}

// Entity owns one persistent entity's full runtime state. It is not safe
// for concurrent use from outside its own Run goroutine — per §5, a single
// goroutine drives recovery, command dispatch and journal bookkeeping, and
// Tell is the only thread-safe entry point.
type Entity struct {
	id      PersistenceID
	handler Handler

	journal   Journal
	snapshots SnapshotStore

	instanceID   InstanceID
	maxBatchSize int

	mailbox chan any
	stash   dualStash

	state lifecycleState

	recoverToSeq       SequenceNr
	recoverMax         uint64
	recoverSkipSnap    bool
	replayFailureCause error
	replayFailureMsg   any

	lastSeq SequenceNr
	nextSeq SequenceNr

	ledger             ledger
	eventBatch         []pendingEnvelope
	journalBatch       []JournalEnvelope
	writeInFlight      bool
	journalBoundary    int // see flushCommandBatch/maybeFlush in batcher.go
	commandHasStashing bool

	log *logging.Logger
}

// Config configures a new Entity.
type Config struct {
	Journal      Journal
	Snapshots    SnapshotStore
	MaxBatchSize int // 0 defaults to 200, matching a conservative journal round-trip size
	Mailbox      int // mailbox channel buffer size, 0 defaults to 64
	Logger       *logging.Logger
}

const defaultMaxBatchSize = 200
const defaultMailboxSize = 64

// New constructs an Entity around handler, not yet running.
func New(handler Handler, cfg Config) *Entity {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	mailboxSize := cfg.Mailbox
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	log := cfg.Logger
	if log == nil {
		log = logging.L()
	}
	return &Entity{
		id:           handler.PersistenceID(),
		handler:      handler,
		journal:      cfg.Journal,
		snapshots:    cfg.Snapshots,
		instanceID:   nextInstanceID(),
		maxBatchSize: maxBatch,
		mailbox:      make(chan any, mailboxSize),
		state:        stateRecoveryPending,
		log:          log.With(logging.PersistenceID(string(handler.PersistenceID()))),
	}
}

// ID returns the entity's persistence id.
func (e *Entity) ID() PersistenceID { return e.id }

// InstanceID returns the current incarnation's instance tag.
func (e *Entity) InstanceID() InstanceID { return e.instanceID }

// LastSequenceNr is the highest sequence number observed, from replay or a
// successful write (§3).
func (e *Entity) LastSequenceNr() SequenceNr { return e.lastSeq }

// RecoveryRunning reports whether the entity is anywhere in the recovery
// superphase (including the failure/restart-preparation states).
func (e *Entity) RecoveryRunning() bool {
	switch e.state {
	case stateProcessingCommands, statePersistingEvents, stateRecoveryUnavailable:
		return false
	default:
		return true
	}
}

// RecoveryFinished reports whether the entity is currently in
// ProcessingCommands, PersistingEvents or RecoveryUnavailable; it is false
// again once a fresh Recover restarts recovery.
func (e *Entity) RecoveryFinished() bool {
	switch e.state {
	case stateProcessingCommands, statePersistingEvents, stateRecoveryUnavailable:
		return true
	default:
		return false
	}
}

// Tell enqueues msg on the entity's mailbox. Safe to call from any
// goroutine; it is the only thread-safe entry point into the entity.
func (e *Entity) Tell(msg any) {
	e.mailbox <- msg
}

// Stash defers msg on the user-facing stash (§4.4).
func (e *Entity) Stash(msg any) { e.stash.stashUser(msg) }

// UnstashAll prepends the user stash onto the internal stash, preserving
// order, then clears the user stash (§4.4).
func (e *Entity) UnstashAll() { e.stash.unstashAll() }

// Persist appends event to the current command's batch and arranges for
// handler to run, in order, once the journal acknowledges the write.
// While any Persist-derived ledger entry is outstanding, no further
// command is delivered to ReceiveCommand (§4.2 rule 1 and 3).
func (e *Entity) Persist(event any, handler func(any)) error {
	return e.enqueuePersist(event, handler, stashing)
}

// PersistAll persists a batch of events as one atomic group, invoking
// handler once per event in order as each is acknowledged.
func (e *Entity) PersistAll(events []any, handler func(any)) error {
	for _, event := range events {
		if err := e.enqueuePersist(event, handler, stashing); err != nil {
			return err
		}
	}
	return nil
}

// PersistAsync is identical to Persist except it does not block later
// commands from being dispatched before its handler fires (§4.2 rule 3 does
// not apply to NonStashing entries).
func (e *Entity) PersistAsync(event any, handler func(any)) error {
	return e.enqueuePersist(event, handler, nonStashing)
}

func (e *Entity) enqueuePersist(event any, handler func(any), kind invocationKind) error {
	if e.state == stateRecoveryUnavailable {
		return ErrRecoveryRequired
	}
	if e.state != stateProcessingCommands {
		return ErrNotProcessingCommand
	}
	e.ledger.push(ledgerEntry{event: event, handler: handler, kind: kind})
	e.eventBatch = append(e.eventBatch, pendingEnvelope{persistent: true, payload: event})
	if kind == stashing {
		e.commandHasStashing = true
	}
	return nil
}

// Defer schedules handler to run, in order, with any already-pending
// persist callbacks. If the ledger is currently empty, handler runs
// synchronously and event is never written to the journal (§4.2).
func (e *Entity) Defer(event any, handler func(any)) error {
	if e.state == stateRecoveryUnavailable {
		return ErrRecoveryRequired
	}
	if e.state != stateProcessingCommands {
		return ErrNotProcessingCommand
	}
	if e.ledger.empty() && len(e.eventBatch) == 0 {
		handler(event)
		return nil
	}
	e.ledger.push(ledgerEntry{event: event, handler: handler, kind: nonStashing})
	e.eventBatch = append(e.eventBatch, pendingEnvelope{persistent: false, payload: event})
	return nil
}

// DeleteMessages requests permanent deletion of events up to and including
// toSeq (§6.3 default permanent=true).
func (e *Entity) DeleteMessages(toSeq SequenceNr) error {
	return e.DeleteMessagesMode(toSeq, true)
}

// DeleteMessagesMode requests deletion of events up to and including
// toSeq, logical (permanent=false) or physical.
func (e *Entity) DeleteMessagesMode(toSeq SequenceNr, permanent bool) error {
	if e.journal == nil {
		return fmt.Errorf("actor: no journal configured")
	}
	e.journal.DeleteMessagesTo(context.Background(), e.id, toSeq, permanent, e)
	return nil
}

// SaveSnapshot requests that snapshot be durably stored at the entity's
// current last sequence number (SPEC_FULL.md §4).
func (e *Entity) SaveSnapshot(snapshot any) error {
	if e.snapshots == nil {
		return fmt.Errorf("actor: no snapshot store configured")
	}
	e.snapshots.SaveSnapshot(context.Background(), e.id, e.lastSeq, snapshot, e)
	return nil
}
