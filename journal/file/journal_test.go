package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"eventactor/runtime/actor"
)

func filepathGlobDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

type fakeInbox struct {
	messages []any
}

func (f *fakeInbox) Tell(msg any) { f.messages = append(f.messages, msg) }

func TestFileJournalWriteReplayRestart(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal"), nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	const id actor.PersistenceID = "order-1"
	inbox := &fakeInbox{}
	j.WriteMessages(context.Background(), []actor.JournalEnvelope{
		{Persistent: true, Repr: actor.PersistentRepr{Payload: map[string]any{"qty": float64(3)}, SequenceNr: 1, PersistenceID: id}},
		{Persistent: true, Repr: actor.PersistentRepr{Payload: map[string]any{"qty": float64(4)}, SequenceNr: 2, PersistenceID: id}},
	}, 1, inbox)
	if _, ok := inbox.messages[len(inbox.messages)-1].(actor.WriteMessagesSuccessful); !ok {
		t.Fatalf("expected trailing success, got %#v", inbox.messages)
	}

	// Reopening the journal (simulating a process restart) must still
	// replay what was durably written.
	j2, err := Open(filepath.Join(dir, "journal"), nil)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	replay := &fakeInbox{}
	j2.ReplayMessages(context.Background(), id, 1, 0, 0, replay)
	if len(replay.messages) != 3 {
		t.Fatalf("expected 2 replayed events + success, got %d: %#v", len(replay.messages), replay.messages)
	}
	first := replay.messages[0].(actor.ReplayedMessage)
	if first.Persistent.SequenceNr != 1 {
		t.Fatalf("expected first replayed seq 1, got %d", first.Persistent.SequenceNr)
	}

	readback := &fakeInbox{}
	j2.ReadHighestSequenceNr(context.Background(), id, 0, readback)
	success := readback.messages[0].(actor.ReadHighestSequenceNrSuccess)
	if success.Highest != 2 {
		t.Fatalf("expected highest=2, got %d", success.Highest)
	}
}

func TestFileJournalLogicalDeleteThenPermanent(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	const id actor.PersistenceID = "order-2"
	inbox := &fakeInbox{}
	j.WriteMessages(context.Background(), []actor.JournalEnvelope{
		{Persistent: true, Repr: actor.PersistentRepr{Payload: "a", SequenceNr: 1, PersistenceID: id}},
		{Persistent: true, Repr: actor.PersistentRepr{Payload: "b", SequenceNr: 2, PersistenceID: id}},
		{Persistent: true, Repr: actor.PersistentRepr{Payload: "c", SequenceNr: 3, PersistenceID: id}},
	}, 1, inbox)

	del := &fakeInbox{}
	j.DeleteMessagesTo(context.Background(), id, 1, false, del)
	if _, ok := del.messages[0].(actor.DeleteMessagesSuccess); !ok {
		t.Fatalf("expected success, got %#v", del.messages[0])
	}
	replay := &fakeInbox{}
	j.ReplayMessages(context.Background(), id, 1, 0, 0, replay)
	// logical delete hides seq 1; 2 events remain (b, c) + success
	if len(replay.messages) != 3 {
		t.Fatalf("expected b,c + success after logical delete, got %#v", replay.messages)
	}

	perm := &fakeInbox{}
	j.DeleteMessagesTo(context.Background(), id, 2, true, perm)
	if _, ok := perm.messages[0].(actor.DeleteMessagesSuccess); !ok {
		t.Fatalf("expected success, got %#v", perm.messages[0])
	}
	replay2 := &fakeInbox{}
	j.ReplayMessages(context.Background(), id, 0, 0, 0, replay2)
	if len(replay2.messages) != 2 {
		t.Fatalf("expected only c + success after permanent delete, got %#v", replay2.messages)
	}
	remaining := replay2.messages[0].(actor.ReplayedMessage)
	if remaining.Persistent.SequenceNr != 3 {
		t.Fatalf("expected seq 3 to survive, got %d", remaining.Persistent.SequenceNr)
	}
}

func TestFileJournalSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	const id actor.PersistenceID = "order-3"
	save := &fakeInbox{}
	j.SaveSnapshot(context.Background(), id, 5, map[string]any{"balance": float64(42)}, save)
	if _, ok := save.messages[0].(actor.SaveSnapshotSuccess); !ok {
		t.Fatalf("expected SaveSnapshotSuccess, got %#v", save.messages[0])
	}

	load := &fakeInbox{}
	j.LoadSnapshot(context.Background(), id, 0, 10, load)
	result := load.messages[0].(actor.LoadSnapshotResult)
	if result.Selected == nil {
		t.Fatalf("expected snapshot to be offered")
	}
	payload, ok := result.Selected.Snapshot.(map[string]any)
	if !ok || payload["balance"] != float64(42) {
		t.Fatalf("unexpected snapshot payload: %#v", result.Selected.Snapshot)
	}
}

func TestCleanerRetentionByCount(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	for _, id := range []actor.PersistenceID{"a", "b", "c"} {
		inbox := &fakeInbox{}
		j.WriteMessages(context.Background(), []actor.JournalEnvelope{
			{Persistent: true, Repr: actor.PersistentRepr{Payload: "x", SequenceNr: 1, PersistenceID: id}},
		}, 1, inbox)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	cleaner := NewCleaner(dir, RetentionPolicy{MaxEntities: 1}, nil)
	cleaner.RunOnce()

	entries, err := filepathGlobDirs(dir)
	if err != nil {
		t.Fatalf("list entity dirs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected retention to keep exactly 1 entity dir, got %d: %v", len(entries), entries)
	}
}
