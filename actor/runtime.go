package actor

import "context"

// Run drives this incarnation's mailbox loop until a fatal error occurs or
// ctx is cancelled. A nil return means ctx was cancelled while idle: a
// clean stop, not a crash. Every other message is processed strictly in
// arrival order on this single goroutine (§5) — pending stashed messages
// are always drained before a new mailbox receive.
func (e *Entity) Run(ctx context.Context) (err error) {
	var triggering any

	defer func() {
		if r := recover(); r != nil {
			err = e.kill(toError(r))
		}
		if err != nil {
			if e.journal != nil {
				e.maybeFlush(ctx)
			}
			if hook, ok := e.handler.(PreRestartHook); ok {
				hook.PreRestart(e, unwrapCause(err), unwrapEnvelope(triggering))
			}
		}
		if hook, ok := e.handler.(PostStopHook); ok {
			hook.PostStop(e)
		}
	}()

	if hook, ok := e.handler.(PreStartHook); ok {
		hook.PreStart(e)
	} else {
		e.Tell(Recover{})
	}

	for {
		msg, ok := e.nextMessage(ctx)
		if !ok {
			return nil
		}
		triggering = msg
		if ferr := e.dispatch(ctx, msg); ferr != nil {
			return ferr
		}
	}
}

// nextMessage returns the next message to process: anything already
// stashed for immediate redelivery takes priority over the mailbox, so a
// drain never loses its place behind a message that arrived later.
func (e *Entity) nextMessage(ctx context.Context) (any, bool) {
	if msg, ok := e.stash.popPending(); ok {
		return msg, true
	}
	select {
	case msg, ok := <-e.mailbox:
		return msg, ok
	case <-ctx.Done():
		return nil, false
	}
}

// drainForRestart hands back every message this incarnation had not yet
// processed, in redelivery order, for a supervisor to feed to the next
// incarnation's mailbox (§4.6).
func (e *Entity) drainForRestart() []any {
	return e.stash.drainForRestart()
}
