package actor

import (
	"context"
	"sync"

	"eventactor/runtime/internal/logging"
)

// Factory builds a fresh Handler for a new incarnation. Supervisor calls it
// once per restart so every incarnation starts from a clean handler value.
type Factory func() Handler

// Supervisor runs one persistence id's entity across restarts, applying the
// default-kill policy (§4.6): any fatal error from Run causes an immediate
// restart with a freshly constructed Handler and a bumped instance id,
// redelivering any messages the dying incarnation had not yet processed
// (§4.5's instance-id fencing is what lets the new incarnation safely ignore
// stale acks addressed to the old one).
type Supervisor struct {
	factory Factory
	cfg     Config

	mu      sync.Mutex
	current *Entity
}

// NewSupervisor builds a Supervisor for one persistence id. cfg.Journal and
// cfg.Snapshots are shared across every incarnation.
func NewSupervisor(factory Factory, cfg Config) *Supervisor {
	return &Supervisor{factory: factory, cfg: cfg}
}

// Run drives incarnations until ctx is done or an incarnation stops cleanly
// (Run returning nil, meaning ctx was cancelled while idle). It returns the
// last non-restart error, if any.
func (s *Supervisor) Run(ctx context.Context) error {
	var carry []any
	for {
		entity := New(s.factory(), s.cfg)
		s.mu.Lock()
		s.current = entity
		s.mu.Unlock()

		for _, msg := range carry {
			entity.Tell(msg)
		}
		carry = nil

		err := entity.Run(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entity.log.Warn("entity incarnation failed, restarting", logging.Error(err))
		carry = entity.drainForRestart()
	}
}

// Current returns the presently live incarnation, or nil if Run has not yet
// constructed one (e.g. before the first call, or fleetingly between a
// restart and the next incarnation's construction). Callers that need a
// stable send point — an HTTP handler forwarding a command, for instance —
// should retry briefly rather than caching the result across restarts.
func (s *Supervisor) Current() *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
