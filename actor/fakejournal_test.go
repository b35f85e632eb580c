package actor

import (
	"context"
	"errors"
	"sort"
)

// errStop is the cause a stopCmd panic carries, letting tests distinguish a
// deliberate test-harness stop from a genuine failure.
var errStop = errors.New("actor test: stop")

// fakeStore is an in-memory Journal + SnapshotStore used only by this
// package's tests. Every method delivers its reply synchronously to replyTo
// before returning, which is sufficient to exercise the entity's dispatch
// logic without a real transport: the entity never observes the difference
// between a synchronous and an asynchronous collaborator.
type fakeStore struct {
	entries  map[PersistenceID][]PersistentRepr
	snapshot map[PersistenceID]*SelectedSnapshot

	// failNextWrite, when non-nil, is returned as the cause of the first
	// persistent envelope in the next WriteMessages call, then cleared.
	failNextWrite error
	// failReplay, when non-nil, makes the next ReplayMessages call report
	// ReplayMessagesFailure instead of replaying anything.
	failReplay error

	writeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:  make(map[PersistenceID][]PersistentRepr),
		snapshot: make(map[PersistenceID]*SelectedSnapshot),
	}
}

func (s *fakeStore) LoadSnapshot(ctx context.Context, id PersistenceID, fromSeq, toSeq SequenceNr, replyTo Inbox) {
	replyTo.Tell(LoadSnapshotResult{Selected: s.snapshot[id], ToSeq: toSeq})
}

func (s *fakeStore) ReplayMessages(ctx context.Context, id PersistenceID, fromSeq, toSeq SequenceNr, max uint64, replyTo Inbox) {
	if toSeq == 0 {
		// A zero ToSequenceNr means "replay everything" (see Recover's doc
		// comment); concrete journals are responsible for this translation.
		toSeq = MaxSequenceNr
	}
	if s.failReplay != nil {
		err := s.failReplay
		s.failReplay = nil
		replyTo.Tell(ReplayMessagesFailure{Cause: err})
		return
	}
	reprs := append([]PersistentRepr(nil), s.entries[id]...)
	sort.Slice(reprs, func(i, j int) bool { return reprs[i].SequenceNr < reprs[j].SequenceNr })
	var delivered uint64
	for _, repr := range reprs {
		if repr.SequenceNr < fromSeq || repr.SequenceNr > toSeq {
			continue
		}
		if max > 0 && delivered >= max {
			break
		}
		replyTo.Tell(ReplayedMessage{Persistent: repr})
		delivered++
	}
	replyTo.Tell(ReplayMessagesSuccess{})
}

func (s *fakeStore) ReadHighestSequenceNr(ctx context.Context, id PersistenceID, fromSeq SequenceNr, replyTo Inbox) {
	var highest SequenceNr
	for _, repr := range s.entries[id] {
		if repr.SequenceNr > highest {
			highest = repr.SequenceNr
		}
	}
	replyTo.Tell(ReadHighestSequenceNrSuccess{Highest: highest})
}

func (s *fakeStore) WriteMessages(ctx context.Context, batch []JournalEnvelope, instanceID InstanceID, replyTo Inbox) {
	s.writeCalls++
	for _, env := range batch {
		if env.Persistent {
			if s.failNextWrite != nil {
				cause := s.failNextWrite
				s.failNextWrite = nil
				replyTo.Tell(WriteMessageFailure{Persistent: env.Repr, Cause: cause, InstanceID: instanceID})
				continue
			}
			s.entries[env.Repr.PersistenceID] = append(s.entries[env.Repr.PersistenceID], env.Repr)
			replyTo.Tell(WriteMessageSuccess{Persistent: env.Repr, InstanceID: instanceID})
			continue
		}
		replyTo.Tell(LoopMessageSuccess{Message: env.NonPersistent, InstanceID: instanceID})
	}
	replyTo.Tell(WriteMessagesSuccessful{})
}

func (s *fakeStore) DeleteMessagesTo(ctx context.Context, id PersistenceID, toSeq SequenceNr, permanent bool, replyTo Inbox) {
	kept := s.entries[id][:0]
	for _, repr := range s.entries[id] {
		if repr.SequenceNr > toSeq {
			kept = append(kept, repr)
		}
	}
	s.entries[id] = kept
	replyTo.Tell(DeleteMessagesSuccess{ToSequenceNr: toSeq})
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, id PersistenceID, seq SequenceNr, snapshot any, replyTo Inbox) {
	meta := SnapshotMetadata{PersistenceID: id, SequenceNr: seq}
	s.snapshot[id] = &SelectedSnapshot{Metadata: meta, Snapshot: snapshot}
	replyTo.Tell(SaveSnapshotSuccess{Metadata: meta})
}

// stopCmd is a sentinel command the test handler panics on, giving tests a
// deterministic way to end an entity's Run loop (the panic propagates to
// Run's top-level recover exactly like any other command-processing panic,
// per §7, rather than racing a context cancellation against buffered acks).
type stopCmd struct{}

// recordingHandler is a minimal Handler used across this package's tests,
// with every optional hook wired to a settable field so each test only sets
// the ones it needs.
type recordingHandler struct {
	id PersistenceID

	recovered []any
	commands  []any

	onRecover func(e *Entity, event any) bool
	onCommand func(e *Entity, cmd any) bool
	preStart  func(e *Entity)
}

func (h *recordingHandler) PersistenceID() PersistenceID { return h.id }

func (h *recordingHandler) ReceiveRecover(e *Entity, event any) bool {
	h.recovered = append(h.recovered, event)
	if h.onRecover != nil {
		return h.onRecover(e, event)
	}
	return true
}

func (h *recordingHandler) ReceiveCommand(e *Entity, cmd any) bool {
	if _, ok := cmd.(stopCmd); ok {
		panic(errStop)
	}
	h.commands = append(h.commands, cmd)
	if h.onCommand != nil {
		return h.onCommand(e, cmd)
	}
	return true
}

func (h *recordingHandler) PreStart(e *Entity) {
	if h.preStart != nil {
		h.preStart(e)
		return
	}
	e.Tell(Recover{})
}
