package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"eventactor/runtime/actor"
	"eventactor/runtime/internal/logging"
)

// supervisedCounter pairs an actor.Supervisor with a stable Tell: the
// supervisor constructs a fresh Entity (and mailbox) on every restart, so
// callers need a forwarding point that always reaches whichever incarnation
// is currently live rather than one captured before a restart replaced it.
type supervisedCounter struct {
	supervisor *actor.Supervisor
}

func newSupervisedCounter(id actor.PersistenceID, cfg actor.Config, log *logging.Logger) *supervisedCounter {
	return &supervisedCounter{supervisor: actor.NewSupervisor(NewCounterFactory(id, log), cfg)}
}

// Tell forwards msg to the currently live incarnation, retrying briefly if
// a restart is in flight and no incarnation has started yet.
func (s *supervisedCounter) Tell(msg any) {
	for {
		if entity := s.supervisor.Current(); entity != nil {
			entity.Tell(msg)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *supervisedCounter) run(ctx context.Context, log *logging.Logger, id actor.PersistenceID) {
	if err := s.supervisor.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("counter supervisor exited", logging.String("persistence_id", string(id)), logging.Error(err))
	}
}

// Host lazily starts one supervisedCounter per persistence id on first use
// and keeps it running for the process lifetime — the HTTP surface's
// analogue of main.go's per-connection Broker.Client registry, scoped to
// counter entities instead of WebSocket clients.
type Host struct {
	ctx context.Context

	journal   actor.Journal
	snapshots actor.SnapshotStore
	cfg       actor.Config
	log       *logging.Logger

	mu        sync.Mutex
	counters  map[actor.PersistenceID]*supervisedCounter
	startedAt time.Time
}

// NewHost constructs a Host backed by journal/snapshots, sharing cfg across
// every counter entity it starts.
func NewHost(ctx context.Context, journal actor.Journal, snapshots actor.SnapshotStore, cfg actor.Config, log *logging.Logger) *Host {
	return &Host{
		ctx:       ctx,
		journal:   journal,
		snapshots: snapshots,
		cfg:       cfg,
		log:       log,
		counters:  make(map[actor.PersistenceID]*supervisedCounter),
		startedAt: time.Now(),
	}
}

// counterFor returns the running counter for id, starting it on first
// access.
func (h *Host) counterFor(id actor.PersistenceID) *supervisedCounter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.counters[id]; ok {
		return c
	}
	cfg := h.cfg
	cfg.Journal = h.journal
	cfg.Snapshots = h.snapshots
	cfg.Logger = h.log
	c := newSupervisedCounter(id, cfg, h.log)
	h.counters[id] = c
	go c.run(h.ctx, h.log, id)
	return c
}

// CounterCount reports how many distinct counter ids have been touched.
func (h *Host) CounterCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.counters)
}

// Uptime reports how long the host has been serving requests.
func (h *Host) Uptime() time.Duration { return time.Since(h.startedAt) }

func counterIDFromPath(prefix, path string) (actor.PersistenceID, bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", false
	}
	return actor.PersistenceID(parts[0]), true
}

type changeRequest struct {
	By int64 `json:"by"`
}

type counterResponse struct {
	PersistenceID string `json:"persistence_id"`
	Value         int64  `json:"value"`
}

// handleCounterChange services POST /v1/counters/{id}/increment and
// .../decrement: it tells the entity the command and waits for a GetValue
// round trip so the HTTP response reflects the post-command value.
func (h *Host) handleCounterChange(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.LoggerFromContext(r.Context()).With(logging.String("handler", "counter_"+kind))
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, ok := counterIDFromPath("/v1/counters/", strings.TrimSuffix(r.URL.Path, "/"+kind))
		if !ok {
			http.Error(w, "missing counter id", http.StatusBadRequest)
			return
		}
		var req changeRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		counter := h.counterFor(id)
		switch kind {
		case "increment":
			counter.Tell(Increment{By: req.By})
		case "decrement":
			counter.Tell(Decrement{By: req.By})
			// Decrement persists without stashing, so a GetValue right behind
			// it could be served before the event is applied; a Flush
			// completes only after the decrement's callback has run.
			done := make(chan struct{})
			counter.Tell(Flush{Done: done})
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				logger.Warn("counter flush timed out", logging.String("persistence_id", string(id)))
			}
		}

		writeCounterValue(w, logger, counter, id)
	}
}

// handleCounterGet services GET /v1/counters/{id}.
func (h *Host) handleCounterGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.LoggerFromContext(r.Context()).With(logging.String("handler", "counter_get"))
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, ok := counterIDFromPath("/v1/counters/", r.URL.Path)
		if !ok {
			http.Error(w, "missing counter id", http.StatusBadRequest)
			return
		}
		writeCounterValue(w, logger, h.counterFor(id), id)
	}
}

func writeCounterValue(w http.ResponseWriter, logger *logging.Logger, counter *supervisedCounter, id actor.PersistenceID) {
	reply := make(chan int64, 1)
	counter.Tell(GetValue{Reply: reply})
	var value int64
	select {
	case value = <-reply:
	case <-time.After(5 * time.Second):
		logger.Warn("counter value round trip timed out", logging.String("persistence_id", string(id)))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(counterResponse{PersistenceID: string(id), Value: value}); err != nil {
		logger.Error("encode counter response failed", logging.Error(err))
	}
}

func healthzHandler(h *Host) http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Counters      int     `json:"counters"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.LoggerFromContext(r.Context()).With(logging.String("handler", "healthz"))
		w.Header().Set("Content-Type", "application/json")
		resp := response{Status: "ok", UptimeSeconds: h.Uptime().Seconds(), Counters: h.CounterCount()}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("encode healthz response failed", logging.Error(err))
		}
	}
}
