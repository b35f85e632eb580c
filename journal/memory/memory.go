// Package memory implements an in-process actor.Journal and
// actor.SnapshotStore, used by the cmd/eventactord and journal/rpc tests and
// by cmd/eventactord when EVENTACTOR_JOURNAL_BACKEND=memory.
//
// Grounded on internal/events/stream.go: an ordered, mutex-protected log
// keyed by monotonic sequence number, adapted from pub/sub fan-out to
// direct replay/write/delete semantics per a Journal's request/response
// contract.
package memory

import (
	"context"
	"sort"
	"sync"

	"eventactor/runtime/actor"
)

// record is one stored event for a persistence id.
type record struct {
	seq     actor.SequenceNr
	payload any
	deleted bool
}

type entityLog struct {
	mu      sync.Mutex
	records []record
}

// Journal is a goroutine-safe, in-memory actor.Journal and
// actor.SnapshotStore keyed by persistence id. Every method delivers its
// result via Inbox.Tell rather than as a return value, calling Tell before
// it returns, matching the external journal contract even though nothing
// here actually leaves the process.
type Journal struct {
	mu        sync.Mutex
	logs      map[actor.PersistenceID]*entityLog
	snapshots map[actor.PersistenceID]*actor.SelectedSnapshot
}

// New constructs an empty in-memory journal and snapshot store.
func New() *Journal {
	return &Journal{
		logs:      make(map[actor.PersistenceID]*entityLog),
		snapshots: make(map[actor.PersistenceID]*actor.SelectedSnapshot),
	}
}

func (j *Journal) logFor(id actor.PersistenceID) *entityLog {
	j.mu.Lock()
	defer j.mu.Unlock()
	log, ok := j.logs[id]
	if !ok {
		log = &entityLog{}
		j.logs[id] = log
	}
	return log
}

// LoadSnapshot implements actor.Journal.
func (j *Journal) LoadSnapshot(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, replyTo actor.Inbox) {
	j.mu.Lock()
	snap, ok := j.snapshots[id]
	j.mu.Unlock()
	result := actor.LoadSnapshotResult{ToSeq: toSeq}
	if ok && snap.Metadata.SequenceNr >= fromSeq && (toSeq == 0 || snap.Metadata.SequenceNr <= toSeq) {
		selected := *snap
		result.Selected = &selected
	}
	replyTo.Tell(result)
}

// SaveSnapshot implements actor.SnapshotStore.
func (j *Journal) SaveSnapshot(ctx context.Context, id actor.PersistenceID, seq actor.SequenceNr, snapshot any, replyTo actor.Inbox) {
	meta := actor.SnapshotMetadata{PersistenceID: id, SequenceNr: seq}
	j.mu.Lock()
	j.snapshots[id] = &actor.SelectedSnapshot{Metadata: meta, Snapshot: snapshot}
	j.mu.Unlock()
	replyTo.Tell(actor.SaveSnapshotSuccess{Metadata: meta})
}

// ReplayMessages implements actor.Journal: delivers one ReplayedMessage
// per live (non-deleted) record in [fromSeq, toSeq], bounded by max, in
// sequence order, then exactly one terminal signal.
func (j *Journal) ReplayMessages(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, max uint64, replyTo actor.Inbox) {
	log := j.logFor(id)
	log.mu.Lock()
	var toSend []record
	for _, rec := range log.records {
		if rec.deleted {
			continue
		}
		if rec.seq < fromSeq {
			continue
		}
		if toSeq != 0 && rec.seq > toSeq {
			continue
		}
		toSend = append(toSend, rec)
		if max != 0 && uint64(len(toSend)) >= max {
			break
		}
	}
	log.mu.Unlock()

	for _, rec := range toSend {
		select {
		case <-ctx.Done():
			replyTo.Tell(actor.ReplayMessagesFailure{Cause: ctx.Err()})
			return
		default:
		}
		replyTo.Tell(actor.ReplayedMessage{Persistent: actor.PersistentRepr{
			Payload:       rec.payload,
			SequenceNr:    rec.seq,
			PersistenceID: id,
		}})
	}
	replyTo.Tell(actor.ReplayMessagesSuccess{})
}

// ReadHighestSequenceNr implements actor.Journal.
func (j *Journal) ReadHighestSequenceNr(ctx context.Context, id actor.PersistenceID, fromSeq actor.SequenceNr, replyTo actor.Inbox) {
	log := j.logFor(id)
	log.mu.Lock()
	var highest actor.SequenceNr
	for _, rec := range log.records {
		if rec.seq > highest {
			highest = rec.seq
		}
	}
	log.mu.Unlock()
	replyTo.Tell(actor.ReadHighestSequenceNrSuccess{Highest: highest})
}

// WriteMessages implements actor.Journal: appends batch atomically, then
// delivers one per-envelope acknowledgement in order followed by exactly
// one batch-level acknowledgement.
func (j *Journal) WriteMessages(ctx context.Context, batch []actor.JournalEnvelope, instanceID actor.InstanceID, replyTo actor.Inbox) {
	if len(batch) == 0 {
		replyTo.Tell(actor.WriteMessagesSuccessful{})
		return
	}
	id := batch[0].Repr.PersistenceID
	for _, env := range batch {
		if env.Persistent && env.Repr.PersistenceID != "" {
			id = env.Repr.PersistenceID
			break
		}
	}
	log := j.logFor(id)

	log.mu.Lock()
	for _, env := range batch {
		if env.Persistent {
			log.records = append(log.records, record{seq: env.Repr.SequenceNr, payload: env.Repr.Payload})
		}
	}
	log.mu.Unlock()

	for _, env := range batch {
		if env.Persistent {
			replyTo.Tell(actor.WriteMessageSuccess{Persistent: env.Repr, InstanceID: instanceID})
		} else {
			replyTo.Tell(actor.LoopMessageSuccess{Message: env.NonPersistent, InstanceID: instanceID})
		}
	}
	replyTo.Tell(actor.WriteMessagesSuccessful{})
}

// DeleteMessagesTo implements actor.Journal. Permanent deletion removes
// the records outright; logical deletion only marks them deleted so a
// later ReplayMessages call with a lower fromSeq still skips them, the way
// file.Journal's tombstone cursor does.
func (j *Journal) DeleteMessagesTo(ctx context.Context, id actor.PersistenceID, toSeq actor.SequenceNr, permanent bool, replyTo actor.Inbox) {
	log := j.logFor(id)
	log.mu.Lock()
	if permanent {
		kept := log.records[:0]
		for _, rec := range log.records {
			if rec.seq > toSeq {
				kept = append(kept, rec)
			}
		}
		log.records = kept
	} else {
		for i := range log.records {
			if log.records[i].seq <= toSeq {
				log.records[i].deleted = true
			}
		}
	}
	log.mu.Unlock()
	replyTo.Tell(actor.DeleteMessagesSuccess{ToSequenceNr: toSeq})
}

// Snapshot returns a defensive copy of everything currently stored for id,
// sorted by sequence number. Test/debug helper only.
func (j *Journal) Snapshot(id actor.PersistenceID) []actor.PersistentRepr {
	log := j.logFor(id)
	log.mu.Lock()
	defer log.mu.Unlock()
	out := make([]actor.PersistentRepr, 0, len(log.records))
	for _, rec := range log.records {
		if rec.deleted {
			continue
		}
		out = append(out, actor.PersistentRepr{Payload: rec.payload, SequenceNr: rec.seq, PersistenceID: id})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].SequenceNr < out[k].SequenceNr })
	return out
}
