package actor

// dualStash implements §4.4: a core-owned internal stash used to defer
// messages while the entity is not in ProcessingCommands, and a user stash
// exposed to user code for its own deferral patterns. All incoming
// messages are ultimately fed back through the internal stash, so
// UnstashAll must not bypass in-flight core scheduling — it only ever
// moves user-stashed messages into the internal stash, never straight onto
// the processing queue.
type dualStash struct {
	pending  []any // messages ready to be processed next, ahead of the mailbox
	internal []any // messages the core deferred, awaiting a drain
	user     []any // messages the user deferred via Stash()
}

// stashInternal defers msg until the next drain.
func (s *dualStash) stashInternal(msg any) {
	s.internal = append(s.internal, msg)
}

// stashUser defers msg on the user-facing stash.
func (s *dualStash) stashUser(msg any) {
	s.user = append(s.user, msg)
}

// drainInternal prepends the internal stash, in order, to the front of the
// processing queue and clears it. Called whenever the lifecycle state
// machine re-enters ProcessingCommands.
func (s *dualStash) drainInternal() {
	if len(s.internal) == 0 {
		return
	}
	s.pending = append(append(make([]any, 0, len(s.internal)+len(s.pending)), s.internal...), s.pending...)
	s.internal = nil
}

// unstashAll prepends the user stash, in order, to the front of the
// internal stash and clears the user stash (§4.4).
func (s *dualStash) unstashAll() {
	if len(s.user) == 0 {
		return
	}
	s.internal = append(append(make([]any, 0, len(s.user)+len(s.internal)), s.user...), s.internal...)
	s.user = nil
}

// requeueFront pushes msg directly to the very front of the processing
// queue, ahead of the internal stash. Used only by ReplayFailed to
// re-deliver the failing envelope at the mailbox head (§4.1).
func (s *dualStash) requeueFront(msg any) {
	s.pending = append([]any{msg}, s.pending...)
}

func (s *dualStash) popPending() (any, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, true
}

// drainForRestart returns every message that should be redelivered to a
// fresh incarnation's mailbox, in the order a restarted actor would see
// them: the internal stash unconditionally, then the still-pending queue,
// then the user stash filtered to exclude WriteMessageSuccess and
// ReplayedMessage — those are internal journal replies addressed to the
// incarnation that died and must never reach user code (§4.4).
func (s *dualStash) drainForRestart() []any {
	out := make([]any, 0, len(s.internal)+len(s.pending)+len(s.user))
	out = append(out, s.internal...)
	out = append(out, s.pending...)
	for _, msg := range s.user {
		switch msg.(type) {
		case WriteMessageSuccess, ReplayedMessage:
			continue
		default:
			out = append(out, msg)
		}
	}
	s.internal = nil
	s.pending = nil
	s.user = nil
	return out
}
