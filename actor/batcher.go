package actor

import (
	"context"

	"eventactor/runtime/internal/logging"
)

// flushCommandBatch converts the events queued by the command just
// processed into journal envelopes, assigning sequence numbers in order
// (§4.3), then offers the accumulated batch to the journal subject to the
// single-write-in-flight rule (C3's flow control).
//
// Rule 1 of §4.3's flush policy: if this command issued a Stashing persist
// and the journal already carries unflushed envelopes from earlier async
// activity, that earlier batch must reach the journal as its own write
// before this command's group joins the queue, so the group's atomicity
// isn't diluted by being folded into someone else's round trip.
// journalBoundary records where the earlier backlog ends so maybeFlush
// stops there even if a write is in flight when this command runs and the
// backlog is still sitting unflushed when the in-flight write completes.
func (e *Entity) flushCommandBatch() {
	if e.commandHasStashing && e.journalBoundary == 0 && len(e.journalBatch) > 0 {
		e.journalBoundary = len(e.journalBatch)
	}
	for _, env := range e.eventBatch {
		if env.persistent {
			e.nextSeq++
			e.journalBatch = append(e.journalBatch, JournalEnvelope{
				Persistent: true,
				Repr: PersistentRepr{
					Payload:       env.payload,
					SequenceNr:    e.nextSeq,
					PersistenceID: e.id,
				},
			})
		} else {
			e.journalBatch = append(e.journalBatch, JournalEnvelope{
				NonPersistent: NonPersistentRepr{Payload: env.payload},
			})
		}
	}
	e.eventBatch = e.eventBatch[:0]
	e.maybeFlush(context.Background())
}

// maybeFlush sends at most maxBatchSize queued envelopes to the journal, if
// none is currently in flight, capped further to journalBoundary (when set)
// so an atomic persist group recorded by flushCommandBatch always reaches
// the journal in a write of its own rather than merged with whatever
// preceded it. WriteMessagesSuccessful/Failed clears writeInFlight and
// calls this again so a deep backlog drains in bounded chunks (§4.3).
func (e *Entity) maybeFlush(ctx context.Context) {
	if e.writeInFlight || len(e.journalBatch) == 0 || e.journal == nil {
		return
	}
	limit := e.maxBatchSize
	if e.journalBoundary > 0 && e.journalBoundary < limit {
		limit = e.journalBoundary
	}
	n := len(e.journalBatch)
	if n > limit {
		n = limit
	}
	batch := e.journalBatch[:n]
	e.journalBatch = e.journalBatch[n:]
	if e.journalBoundary > 0 {
		e.journalBoundary -= n
		if e.journalBoundary < 0 {
			e.journalBoundary = 0
		}
	}
	e.log.Debug("flushing journal batch",
		logging.Int("batch_size", len(batch)),
		logging.Int("backlog_remaining", len(e.journalBatch)))
	e.writeInFlight = true
	e.journal.WriteMessages(ctx, batch, e.instanceID, e)
}
