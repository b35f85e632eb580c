package main

import (
	"eventactor/runtime/actor"
	"eventactor/runtime/internal/logging"
)

// snapshotEveryNEvents controls how often CounterHandler checkpoints its
// value, bounding how many events any future recovery has to replay.
const snapshotEveryNEvents = 5

// ValueChanged is the single event type a counter entity persists, tagged
// by Kind rather than split into Incremented/Decremented types: journal/file
// and journal/rpc both JSON round-trip event payloads, which would otherwise
// collapse two same-shaped structs into indistinguishable maps on replay.
type ValueChanged struct {
	Kind string `json:"kind"`
	By   int64  `json:"by"`
}

// Increment and Decrement are commands; By defaults to 1 when zero or
// negative.
type Increment struct{ By int64 }
type Decrement struct{ By int64 }

// GetValue reports the current value on Reply without persisting anything.
type GetValue struct{ Reply chan int64 }

// Flush demonstrates Defer (SPEC_FULL.md §1): Done is closed only after
// every persist callback already queued ahead of it has run, even though
// Flush itself is never persisted.
type Flush struct{ Done chan struct{} }

// CounterHandler is an actor.Handler backing one named counter entity.
// Increment persists via Persist (stashing: later commands wait for the
// journal ack), Decrement persists via PersistAsync (non-stashing: later
// commands may be dispatched before the ack lands), demonstrating both
// persistence modes side by side.
type CounterHandler struct {
	id actor.PersistenceID

	value               int64
	eventsSinceSnapshot int
	log                 *logging.Logger
}

// NewCounterFactory returns an actor.Factory producing a fresh
// CounterHandler for id on every restart, per actor.Supervisor's contract.
func NewCounterFactory(id actor.PersistenceID, log *logging.Logger) actor.Factory {
	return func() actor.Handler {
		return &CounterHandler{id: id, log: log}
	}
}

func (h *CounterHandler) PersistenceID() actor.PersistenceID { return h.id }

// ReceiveRecover applies events and snapshots observed during recovery.
// Replayed events arrive as either the native ValueChanged struct (the
// in-memory backend never round-trips payloads) or a map[string]any (the
// file and rpc backends JSON-encode and decode them), so both shapes are
// handled.
func (h *CounterHandler) ReceiveRecover(e *actor.Entity, event any) bool {
	switch ev := event.(type) {
	case ValueChanged:
		h.apply(ev.Kind, ev.By)
		return true
	case map[string]any:
		kind, _ := ev["kind"].(string)
		by, _ := ev["by"].(float64)
		if kind == "" {
			return false
		}
		h.apply(kind, int64(by))
		return true
	case actor.SnapshotOffer:
		h.restore(ev.Snapshot)
		return true
	case actor.RecoveryCompleted:
		h.log.Debug("counter recovered", logging.String("persistence_id", string(h.id)), logging.Int64("value", h.value))
		return true
	default:
		return false
	}
}

// ReceiveCommand dispatches Increment/Decrement/GetValue/Flush. Any other
// message is left unhandled: an unhandled PersistenceFailure kills the
// entity, anything else only reaches the entity's Unhandled path.
func (h *CounterHandler) ReceiveCommand(e *actor.Entity, cmd any) bool {
	switch c := cmd.(type) {
	case Increment:
		by := c.By
		if by <= 0 {
			by = 1
		}
		return h.persistStashing(e, ValueChanged{Kind: "incremented", By: by})
	case Decrement:
		by := c.By
		if by <= 0 {
			by = 1
		}
		return h.persistAsync(e, ValueChanged{Kind: "decremented", By: by})
	case GetValue:
		c.Reply <- h.value
		return true
	case Flush:
		if err := e.Defer(struct{}{}, func(any) { close(c.Done) }); err != nil {
			h.log.Warn("flush defer rejected", logging.Error(err))
			close(c.Done)
		}
		return true
	default:
		return false
	}
}

func (h *CounterHandler) persistStashing(e *actor.Entity, event ValueChanged) bool {
	err := e.Persist(event, func(persisted any) {
		h.onPersisted(e, persisted)
	})
	return err == nil
}

func (h *CounterHandler) persistAsync(e *actor.Entity, event ValueChanged) bool {
	err := e.PersistAsync(event, func(persisted any) {
		h.onPersisted(e, persisted)
	})
	return err == nil
}

func (h *CounterHandler) onPersisted(e *actor.Entity, persisted any) {
	change, ok := persisted.(ValueChanged)
	if !ok {
		return
	}
	h.apply(change.Kind, change.By)
	h.eventsSinceSnapshot++
	if h.eventsSinceSnapshot < snapshotEveryNEvents {
		return
	}
	h.eventsSinceSnapshot = 0
	if err := e.SaveSnapshot(h.snapshotPayload()); err != nil {
		h.log.Warn("counter snapshot rejected", logging.Error(err))
	}
}

func (h *CounterHandler) apply(kind string, by int64) {
	switch kind {
	case "incremented":
		h.value += by
	case "decremented":
		h.value -= by
	}
}

// snapshotPayload is always a map[string]any so the same value round-trips
// identically whether the backing journal JSON-encodes snapshots (file,
// rpc) or stores them as-is (memory): a native int64 would otherwise come
// back as float64 from the JSON-backed stores but not the in-memory one.
func (h *CounterHandler) snapshotPayload() map[string]any {
	return map[string]any{"value": float64(h.value)}
}

func (h *CounterHandler) restore(snapshot any) {
	fields, ok := snapshot.(map[string]any)
	if !ok {
		return
	}
	if value, ok := fields["value"].(float64); ok {
		h.value = int64(value)
	}
}

var _ actor.Handler = (*CounterHandler)(nil)
