package actor

import (
	"context"
	"errors"
	"fmt"

	"eventactor/runtime/internal/logging"
)

// ErrActorKilled is the error Run returns when an incarnation dies, per the
// default-kill policy (§4.6): any unhandled handler exception, or any
// unhandled RecoveryFailure, terminates the current incarnation rather than
// leaving it in an undefined state.
type ErrActorKilled struct {
	PersistenceID PersistenceID
	Cause         error
}

func (e *ErrActorKilled) Error() string {
	return fmt.Sprintf("actor %q killed: %v", e.PersistenceID, e.Cause)
}

func (e *ErrActorKilled) Unwrap() error { return e.Cause }

func (e *Entity) kill(cause error) error {
	return &ErrActorKilled{PersistenceID: e.id, Cause: cause}
}

// toError normalizes a recover() value into an error.
func toError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// unwrapCause extracts the underlying failure from a kill, so PreRestart
// sees the original cause rather than the actor-identity wrapper.
func unwrapCause(err error) error {
	var killed *ErrActorKilled
	if errors.As(err, &killed) {
		return killed.Cause
	}
	return err
}

// unwrapEnvelope strips a journal-internal envelope down to the user-level
// payload it carries, per §4.6: "if the failure was triggered while
// processing a journal-internal message, the payload presented to the
// supervisor is the user-level payload inside, not the envelope."
func unwrapEnvelope(msg any) any {
	switch m := msg.(type) {
	case WriteMessageSuccess:
		return m.Persistent.Payload
	case WriteMessageFailure:
		return m.Persistent.Payload
	case LoopMessageSuccess:
		return m.Message.Payload
	case ReplayedMessage:
		return m.Persistent.Payload
	default:
		return msg
	}
}

// deliverRecover dispatches a recovery-phase event or signal to the
// handler's ReceiveRecover, catching panics rather than letting them
// propagate directly. The caller decides what a panic leads to: while a
// snapshot offer or a replayed event is delivered it leads to
// ReplayFailed/PrepareRestart, while RecoveryCompleted or RecoveryFailure
// is delivered it kills the entity (§7).
func (e *Entity) deliverRecover(event any) (handled bool, panicked bool, cause error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			cause = toError(r)
		}
	}()
	handled = e.handler.ReceiveRecover(e, event)
	return handled, false, nil
}

// deliverPersistenceFailure routes PersistenceFailure to the command
// handler exactly like an ordinary command, except an unhandled result is
// fatal rather than merely logged (§7: "PersistenceFailure: ... unhandled
// -> fatal").
func (e *Entity) deliverPersistenceFailure(pf PersistenceFailure) error {
	e.eventBatch = e.eventBatch[:0]
	e.commandHasStashing = false
	handled := e.handler.ReceiveCommand(e, pf)
	if !handled {
		return e.kill(pf.Cause)
	}
	e.flushCommandBatch()
	if e.ledger.hasPendingStashing() && e.state == stateProcessingCommands {
		e.state = statePersistingEvents
	}
	return nil
}

// logStaleReply records a journal reply addressed to a prior incarnation
// being discarded silently from the caller's point of view (§4.5, §8
// invariant 5: "stale-instance replies produce no observable effect") —
// observable here only as a log line, never as entity behavior.
func (e *Entity) logStaleReply(kind string, replyInstance InstanceID, seq SequenceNr) {
	e.log.Debug("discarding stale journal reply",
		logging.String("reply_type", kind),
		logging.Int("reply_instance_id", int(replyInstance)),
		logging.InstanceID(uint32(e.instanceID)),
		logging.SequenceNr(uint64(seq)))
}

// handleJournalAck intercepts the journal-internal acknowledgement types
// that must be processed by the core regardless of lifecycle state,
// wherever a write happens to still be outstanding (§4.3, §6.2). It never
// reaches the user command handler directly for these types; entries that
// aren't one of them fall through unhandled so the caller can apply its own
// state-specific policy.
func (e *Entity) handleJournalAck(ctx context.Context, msg any) (handled bool, fatal error) {
	switch m := msg.(type) {
	case WriteMessageSuccess:
		if m.InstanceID != e.instanceID {
			e.logStaleReply("WriteMessageSuccess", m.InstanceID, m.Persistent.SequenceNr)
			return true, nil
		}
		if e.ledger.empty() {
			return true, nil
		}
		if m.Persistent.SequenceNr > e.lastSeq {
			e.lastSeq = m.Persistent.SequenceNr
		}
		entry := e.ledger.popFront()
		entry.handler(entry.event)
		return true, nil
	case WriteMessageFailure:
		if m.InstanceID != e.instanceID {
			e.logStaleReply("WriteMessageFailure", m.InstanceID, m.Persistent.SequenceNr)
			return true, nil
		}
		if !e.ledger.empty() {
			e.ledger.popFront()
		}
		e.log.Warn("journal rejected write, routing persistence failure",
			logging.SequenceNr(uint64(m.Persistent.SequenceNr)),
			logging.InstanceID(uint32(m.InstanceID)),
			logging.Error(m.Cause))
		fatal = e.deliverPersistenceFailure(PersistenceFailure{
			Payload:    m.Persistent.Payload,
			SequenceNr: m.Persistent.SequenceNr,
			Cause:      m.Cause,
		})
		return true, fatal
	case LoopMessageSuccess:
		if m.InstanceID != e.instanceID {
			e.logStaleReply("LoopMessageSuccess", m.InstanceID, 0)
			return true, nil
		}
		if e.ledger.empty() {
			return true, nil
		}
		entry := e.ledger.popFront()
		entry.handler(entry.event)
		return true, nil
	case WriteMessagesSuccessful:
		e.writeInFlight = false
		e.maybeFlush(ctx)
		return true, nil
	case WriteMessagesFailed:
		e.writeInFlight = false
		e.maybeFlush(ctx)
		return true, nil
	default:
		return false, nil
	}
}
