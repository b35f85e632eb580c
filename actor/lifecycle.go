package actor

import (
	"context"
	"fmt"
)

// lifecycleState enumerates every state of the machine in §4.1, including
// the two auxiliary failure-handling states and the RecoveryUnavailable
// state this module adds to resolve the Open Question in spec.md §9.
type lifecycleState int

const (
	stateRecoveryPending lifecycleState = iota
	stateRecoveryStarted
	stateReplayStarted
	stateInitializing
	stateProcessingCommands
	statePersistingEvents
	stateReplayFailed
	statePrepareRestart
	stateRecoveryUnavailable
)

func (s lifecycleState) String() string {
	switch s {
	case stateRecoveryPending:
		return "RecoveryPending"
	case stateRecoveryStarted:
		return "RecoveryStarted"
	case stateReplayStarted:
		return "ReplayStarted"
	case stateInitializing:
		return "Initializing"
	case stateProcessingCommands:
		return "ProcessingCommands"
	case statePersistingEvents:
		return "PersistingEvents"
	case stateReplayFailed:
		return "ReplayFailed"
	case statePrepareRestart:
		return "PrepareRestart"
	case stateRecoveryUnavailable:
		return "RecoveryUnavailable"
	default:
		return "Unknown"
	}
}

// dispatch routes one dequeued message according to the current state's
// explicit pattern matches, falling back to that state's stashing policy
// (§4.1). A non-nil return means the entity must stop; the caller (Run)
// treats it as the cause handed to the supervisor.
func (e *Entity) dispatch(ctx context.Context, msg any) error {
	switch e.state {
	case stateRecoveryPending:
		return e.handleRecoveryPending(ctx, msg)
	case stateRecoveryStarted:
		return e.handleRecoveryStarted(ctx, msg)
	case stateReplayStarted:
		return e.handleReplayStarted(ctx, msg)
	case stateInitializing:
		return e.handleInitializing(ctx, msg)
	case stateProcessingCommands, stateRecoveryUnavailable:
		return e.handleCommandState(ctx, msg)
	case statePersistingEvents:
		return e.handlePersistingEvents(ctx, msg)
	case stateReplayFailed:
		return e.handleReplayFailed(ctx, msg)
	case statePrepareRestart:
		return e.handlePrepareRestart(ctx, msg)
	default:
		return fmt.Errorf("actor: unknown lifecycle state %v", e.state)
	}
}

// --- RecoveryPending ---

func (e *Entity) handleRecoveryPending(ctx context.Context, msg any) error {
	rec, ok := msg.(Recover)
	if !ok {
		e.stash.stashInternal(msg)
		return nil
	}
	e.recoverToSeq = rec.ToSequenceNr
	e.recoverMax = rec.ReplayMax
	e.recoverSkipSnap = rec.SkipSnapshot
	e.state = stateRecoveryStarted
	if e.recoverSkipSnap || e.journal == nil {
		// No snapshot lookup requested (or no journal configured): behave as
		// though LoadSnapshotResult came back empty, immediately.
		return e.onLoadSnapshotResult(ctx, LoadSnapshotResult{ToSeq: e.recoverToSeq})
	}
	e.journal.LoadSnapshot(ctx, e.id, 0, e.recoverToSeq, e)
	return nil
}

// --- RecoveryStarted ---

func (e *Entity) handleRecoveryStarted(ctx context.Context, msg any) error {
	result, ok := msg.(LoadSnapshotResult)
	if !ok {
		e.stash.stashInternal(msg)
		return nil
	}
	return e.onLoadSnapshotResult(ctx, result)
}

func (e *Entity) onLoadSnapshotResult(ctx context.Context, result LoadSnapshotResult) error {
	if result.Selected != nil {
		e.lastSeq = result.Selected.Metadata.SequenceNr
		handled, panicked, cause := e.deliverRecover(SnapshotOffer{
			Metadata: result.Selected.Metadata,
			Snapshot: result.Selected.Snapshot,
		})
		if panicked {
			return e.enterReplayFailed(cause, result)
		}
		_ = handled
	}
	if e.journal == nil {
		handled, panicked, cause := e.deliverRecover(RecoveryCompleted{})
		if panicked {
			return e.kill(cause)
		}
		_ = handled
		e.enterProcessingCommands()
		return nil
	}
	e.state = stateReplayStarted
	e.journal.ReplayMessages(ctx, e.id, e.lastSeq+1, result.ToSeq, e.recoverMax, e)
	return nil
}

// --- ReplayStarted ---

func (e *Entity) handleReplayStarted(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case ReplayedMessage:
		if m.Persistent.SequenceNr > e.lastSeq {
			e.lastSeq = m.Persistent.SequenceNr
		}
		handled, panicked, cause := e.deliverRecover(m.Persistent.Payload)
		if panicked {
			return e.enterReplayFailed(cause, m)
		}
		_ = handled
		return nil
	case ReplayMessagesSuccess:
		if hook, ok := e.handler.(ReplaySuccessHook); ok {
			hook.OnReplaySuccess(e)
		}
		e.state = stateInitializing
		e.journal.ReadHighestSequenceNr(ctx, e.id, e.lastSeq, e)
		return nil
	case ReplayMessagesFailure:
		if hook, ok := e.handler.(ReplayFailureHook); ok {
			hook.OnReplayFailure(e, m.Cause)
		}
		return e.routeRecoveryFailure(m.Cause)
	default:
		e.stash.stashInternal(msg)
		return nil
	}
}

func (e *Entity) enterReplayFailed(cause error, envelope any) error {
	e.replayFailureCause = cause
	e.replayFailureMsg = envelope
	e.state = stateReplayFailed
	return nil
}

// --- Initializing ---

func (e *Entity) handleInitializing(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case ReadHighestSequenceNrSuccess:
		e.nextSeq = m.Highest
		if e.lastSeq < m.Highest {
			e.lastSeq = m.Highest
		}
		handled, panicked, cause := e.deliverRecover(RecoveryCompleted{})
		if panicked {
			return e.kill(cause)
		}
		_ = handled
		e.enterProcessingCommands()
		return nil
	case ReadHighestSequenceNrFailure:
		return e.routeRecoveryFailure(m.Cause)
	default:
		e.stash.stashInternal(msg)
		return nil
	}
}

// routeRecoveryFailure delivers RecoveryFailure to the recover handler. An
// unhandled failure is fatal (default-kill, §4.6); a handled failure moves
// the entity to RecoveryUnavailable rather than guessing that recovery can
// resume (Open Question, spec.md §9).
func (e *Entity) routeRecoveryFailure(cause error) error {
	handled, panicked, pcause := e.deliverRecover(RecoveryFailure{Cause: cause})
	if panicked {
		return e.kill(pcause)
	}
	if !handled {
		return e.kill(cause)
	}
	// Commands must keep flowing in RecoveryUnavailable (only persistence
	// calls are refused), so whatever piled up in the internal stash during
	// the failed recovery attempt has to drain now, exactly as entering
	// ProcessingCommands would.
	e.state = stateRecoveryUnavailable
	e.stash.drainInternal()
	return nil
}

func (e *Entity) enterProcessingCommands() {
	e.state = stateProcessingCommands
	e.stash.drainInternal()
}

// --- ProcessingCommands / RecoveryUnavailable ---

func (e *Entity) handleCommandState(ctx context.Context, msg any) error {
	if handledAck, fatal := e.handleJournalAck(ctx, msg); handledAck || fatal != nil {
		return fatal
	}
	if rec, ok := msg.(Recover); ok && e.state == stateRecoveryUnavailable {
		return e.handleRecoveryPending(ctx, rec)
	}
	return e.deliverCommand(msg)
}

// deliverCommand dispatches msg to the user command handler (panics here
// are NOT caught by the core — §7 "Handler exception during command
// processing: not caught by the core, propagates to the actor supervisor
// normally") then applies the C3 flush policy for whatever the handler
// queued.
func (e *Entity) deliverCommand(msg any) error {
	e.eventBatch = e.eventBatch[:0]
	e.commandHasStashing = false
	handled := e.handler.ReceiveCommand(e, msg)
	if !handled {
		e.routeUnhandled(msg)
	}
	e.flushCommandBatch()
	if e.ledger.hasPendingStashing() && e.state == stateProcessingCommands {
		e.state = statePersistingEvents
	}
	return nil
}

// routeUnhandled is reached for any command the handler's ReceiveCommand
// returned false for, except PersistenceFailure (deliverPersistenceFailure
// kills the actor directly on unhandled rather than routing here).
func (e *Entity) routeUnhandled(msg any) {
	if hook, ok := e.handler.(UnhandledHook); ok {
		hook.Unhandled(e, msg)
	}
}

// --- PersistingEvents ---

func (e *Entity) handlePersistingEvents(ctx context.Context, msg any) error {
	handledAck, fatal := e.handleJournalAck(ctx, msg)
	if fatal != nil {
		return fatal
	}
	if handledAck {
		if !e.ledger.hasPendingStashing() {
			e.enterProcessingCommands()
		}
		return nil
	}
	e.stash.stashInternal(msg)
	return nil
}

// --- ReplayFailed / PrepareRestart ---

func (e *Entity) handleReplayFailed(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case ReplayedMessage:
		if m.Persistent.SequenceNr > e.lastSeq {
			e.lastSeq = m.Persistent.SequenceNr
		}
		return nil
	case ReplayMessagesSuccess:
		return e.quiesceToPrepareRestart()
	case ReplayMessagesFailure:
		return e.quiesceToPrepareRestart()
	default:
		e.stash.stashInternal(msg)
		return nil
	}
}

func (e *Entity) quiesceToPrepareRestart() error {
	// Don't trust the journal's reported high-water after a replay
	// failure; force the next incarnation into a full replay (§4.5).
	e.lastSeq = MaxSequenceNr
	e.stash.requeueFront(e.replayFailureMsg)
	e.state = statePrepareRestart
	return nil
}

func (e *Entity) handlePrepareRestart(ctx context.Context, msg any) error {
	// Any message reaching this state is, by construction, the re-queued
	// failure envelope (requeueFront puts it at the very head of the
	// processing queue and nothing else is stashed ahead of it). Rethrow
	// the original cause so the supervisor observes it (§4.1).
	return e.kill(e.replayFailureCause)
}
