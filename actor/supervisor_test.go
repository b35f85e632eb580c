package actor

import (
	"context"
	"fmt"
	"testing"
)

func TestSupervisorRestartsAndRedeliversQueuedMessages(t *testing.T) {
	//1.- A handler panic during command processing is not caught locally
	//(§7): it reaches Run's top-level recover, which kills the incarnation.
	//The supervisor must construct a fresh incarnation with a bumped
	//instance id and redeliver whatever that incarnation had not yet
	//processed — here, the "after" command queued right behind the one
	//that crashed.
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int
	var log []string
	factory := func() Handler {
		attempts++
		attempt := attempts
		h := &recordingHandler{id: "pid-sup-1"}
		h.onCommand = func(e *Entity, cmd any) bool {
			log = append(log, fmt.Sprintf("%d:%v", attempt, cmd))
			switch cmd {
			case "boom":
				panic(fmt.Errorf("boom on attempt %d", attempt))
			case "after":
				cancel()
			}
			return true
		}
		h.preStart = func(e *Entity) {
			e.Tell(Recover{})
			if attempt == 1 {
				e.Tell("boom")
				e.Tell("after")
			}
		}
		return h
	}

	sup := NewSupervisor(factory, Config{Journal: store, Snapshots: store})
	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if attempts != 2 {
		t.Fatalf("expected exactly one restart (2 incarnations), got %d", attempts)
	}
	want := []string{"1:boom", "2:after"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestSupervisorBumpsInstanceIDAcrossRestarts(t *testing.T) {
	//1.- Every fresh incarnation draws a new InstanceID (§4.5): stale acks
	//addressed to a dead incarnation must never be mistaken for the live
	//one's.
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int
	var seen []InstanceID
	factory := func() Handler {
		attempts++
		attempt := attempts
		h := &recordingHandler{id: "pid-sup-2"}
		h.onCommand = func(e *Entity, cmd any) bool {
			if cmd == "record" {
				seen = append(seen, e.InstanceID())
			}
			if cmd == "boom" {
				panic(fmt.Errorf("boom on attempt %d", attempt))
			}
			if cmd == "stop" {
				cancel()
			}
			return true
		}
		h.preStart = func(e *Entity) {
			e.Tell(Recover{})
			e.Tell("record")
			if attempt == 1 {
				e.Tell("boom")
			} else {
				e.Tell("stop")
			}
		}
		return h
	}

	sup := NewSupervisor(factory, Config{Journal: store, Snapshots: store})
	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two incarnations to record their instance id, got %d", len(seen))
	}
	if seen[0] == seen[1] {
		t.Fatalf("expected distinct instance ids across restarts, got %d twice", seen[0])
	}
}
