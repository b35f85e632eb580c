// Package file implements a durable, on-disk actor.Journal and
// actor.SnapshotStore: one directory per persistence id holding a
// snappy-compressed JSONL event segment, a JSON header carrying a schema
// version and logical-delete tombstone, and a zstd-compressed snapshot.
//
// Grounded on internal/replay/{writer,loader,header,cleaner}.go: the same
// compressed-append-log-plus-manifest shape the teacher uses for gameplay
// replays, repurposed from a single shared match bundle to one segment per
// persistence id.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/klauspost/compress/zstd"

	"eventactor/runtime/actor"
	"eventactor/runtime/internal/logging"
)

var idCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitize(id actor.PersistenceID) string {
	cleaned := idCleaner.ReplaceAllString(string(id), "_")
	if cleaned == "" {
		cleaned = "_"
	}
	return cleaned
}

// entityState is the in-memory view of one persistence id's durable
// segment: the open append writer, the cached header, and the highest
// sequence number observed on disk so ReadHighestSequenceNr never has to
// rescan the segment.
type entityState struct {
	mu      sync.Mutex
	dir     string
	writer  *segmentWriter
	header  Header
	highest uint64
}

// Journal is a directory-backed actor.Journal and actor.SnapshotStore.
// Safe for concurrent use across multiple entities; each persistence id's
// own state is guarded independently so one entity's write never blocks
// another's replay.
type Journal struct {
	mu       sync.Mutex
	root     string
	entities map[actor.PersistenceID]*entityState
	log      *logging.Logger
}

// Open constructs a Journal rooted at dir, creating it if necessary.
func Open(dir string, log *logging.Logger) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("file journal: root directory must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file journal: %w", err)
	}
	if log == nil {
		log = logging.L()
	}
	return &Journal{root: dir, entities: make(map[actor.PersistenceID]*entityState), log: log}, nil
}

func (j *Journal) entityDir(id actor.PersistenceID) string {
	return filepath.Join(j.root, sanitize(id))
}

func (j *Journal) ensure(id actor.PersistenceID) (*entityState, error) {
	j.mu.Lock()
	st, ok := j.entities[id]
	j.mu.Unlock()
	if ok {
		return st, nil
	}

	dir := j.entityDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file journal: create entity dir: %w", err)
	}
	headerPath := filepath.Join(dir, "header.json")
	header, err := ReadHeader(headerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("file journal: read header: %w", err)
		}
		header = Header{SchemaVersion: HeaderSchemaVersion, PersistenceID: string(id), EventsFile: "events.jsonl.sz"}
		if err := WriteHeader(headerPath, header); err != nil {
			return nil, fmt.Errorf("file journal: write header: %w", err)
		}
	}

	eventsPath := filepath.Join(dir, header.EventsFile)
	records, err := loadSegment(eventsPath)
	if err != nil {
		return nil, fmt.Errorf("file journal: load segment: %w", err)
	}
	var highest uint64
	for _, rec := range records {
		if rec.Seq > highest {
			highest = rec.Seq
		}
	}

	writer, err := openSegmentWriter(eventsPath)
	if err != nil {
		return nil, err
	}

	st = &entityState{dir: dir, writer: writer, header: header, highest: highest}

	j.mu.Lock()
	defer j.mu.Unlock()
	if existing, ok := j.entities[id]; ok {
		writer.Close()
		return existing, nil
	}
	j.entities[id] = st
	return st, nil
}

// LoadSnapshot implements actor.Journal.
func (j *Journal) LoadSnapshot(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, replyTo actor.Inbox) {
	meta, payload, ok, err := j.readSnapshot(id)
	if err != nil {
		j.log.Warn("file journal: load snapshot failed", logging.String("persistence_id", string(id)), logging.Error(err))
		replyTo.Tell(actor.LoadSnapshotResult{ToSeq: toSeq})
		return
	}
	result := actor.LoadSnapshotResult{ToSeq: toSeq}
	if ok && meta.SequenceNr >= fromSeq && (toSeq == 0 || meta.SequenceNr <= toSeq) {
		result.Selected = &actor.SelectedSnapshot{Metadata: meta, Snapshot: payload}
	}
	replyTo.Tell(result)
}

// SaveSnapshot implements actor.SnapshotStore: the payload is JSON-encoded
// then zstd-compressed, exactly as replay.Writer's frame stream compresses
// its largest single writes.
func (j *Journal) SaveSnapshot(ctx context.Context, id actor.PersistenceID, seq actor.SequenceNr, snapshot any, replyTo actor.Inbox) {
	meta := actor.SnapshotMetadata{PersistenceID: id, SequenceNr: seq}
	if err := j.writeSnapshot(id, meta, snapshot); err != nil {
		replyTo.Tell(actor.SaveSnapshotFailure{Cause: err, Snapshot: snapshot})
		return
	}
	replyTo.Tell(actor.SaveSnapshotSuccess{Metadata: meta})
}

func (j *Journal) writeSnapshot(id actor.PersistenceID, meta actor.SnapshotMetadata, payload any) error {
	st, err := j.ensure(id)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	binPath := filepath.Join(st.dir, "snapshot.bin.zst")
	f, err := os.Create(binPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write snapshot payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close zstd encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}

	metaPath := filepath.Join(st.dir, "snapshot.json")
	metaJSON, err := json.MarshalIndent(struct {
		SequenceNr uint64 `json:"sequence_nr"`
	}{SequenceNr: uint64(meta.SequenceNr)}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, metaJSON, 0o644)
}

func (j *Journal) readSnapshot(id actor.PersistenceID) (actor.SnapshotMetadata, any, bool, error) {
	st, err := j.ensure(id)
	if err != nil {
		return actor.SnapshotMetadata{}, nil, false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	metaPath := filepath.Join(st.dir, "snapshot.json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return actor.SnapshotMetadata{}, nil, false, nil
		}
		return actor.SnapshotMetadata{}, nil, false, err
	}
	var metaRaw struct {
		SequenceNr uint64 `json:"sequence_nr"`
	}
	if err := json.Unmarshal(metaBytes, &metaRaw); err != nil {
		return actor.SnapshotMetadata{}, nil, false, err
	}

	binPath := filepath.Join(st.dir, "snapshot.bin.zst")
	f, err := os.Open(binPath)
	if err != nil {
		return actor.SnapshotMetadata{}, nil, false, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return actor.SnapshotMetadata{}, nil, false, err
	}
	defer dec.Close()

	var payload any
	decoder := json.NewDecoder(dec.IOReadCloser())
	if err := decoder.Decode(&payload); err != nil {
		return actor.SnapshotMetadata{}, nil, false, err
	}

	meta := actor.SnapshotMetadata{PersistenceID: id, SequenceNr: actor.SequenceNr(metaRaw.SequenceNr)}
	return meta, payload, true, nil
}

// ReplayMessages implements actor.Journal, filtering out anything at or
// below the persisted tombstone (logical deletes) before applying the
// caller's own [fromSeq, toSeq] window and max bound.
func (j *Journal) ReplayMessages(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, max uint64, replyTo actor.Inbox) {
	st, err := j.ensure(id)
	if err != nil {
		replyTo.Tell(actor.ReplayMessagesFailure{Cause: err})
		return
	}

	st.mu.Lock()
	eventsPath := filepath.Join(st.dir, st.header.EventsFile)
	tombstone := st.header.Tombstone
	st.mu.Unlock()

	records, err := loadSegment(eventsPath)
	if err != nil {
		replyTo.Tell(actor.ReplayMessagesFailure{Cause: err})
		return
	}

	var delivered uint64
	for _, rec := range records {
		if rec.Seq <= tombstone {
			continue
		}
		if actor.SequenceNr(rec.Seq) < fromSeq {
			continue
		}
		if toSeq != 0 && actor.SequenceNr(rec.Seq) > toSeq {
			continue
		}
		select {
		case <-ctx.Done():
			replyTo.Tell(actor.ReplayMessagesFailure{Cause: ctx.Err()})
			return
		default:
		}
		var payload any
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			replyTo.Tell(actor.ReplayMessagesFailure{Cause: fmt.Errorf("decode replayed payload: %w", err)})
			return
		}
		replyTo.Tell(actor.ReplayedMessage{Persistent: actor.PersistentRepr{
			Payload:       payload,
			SequenceNr:    actor.SequenceNr(rec.Seq),
			PersistenceID: id,
		}})
		delivered++
		if max != 0 && delivered >= max {
			break
		}
	}
	replyTo.Tell(actor.ReplayMessagesSuccess{})
}

// ReadHighestSequenceNr implements actor.Journal from the cached high-water
// mark maintained by ensure/WriteMessages, never rescanning the segment.
func (j *Journal) ReadHighestSequenceNr(ctx context.Context, id actor.PersistenceID, fromSeq actor.SequenceNr, replyTo actor.Inbox) {
	st, err := j.ensure(id)
	if err != nil {
		replyTo.Tell(actor.ReadHighestSequenceNrFailure{Cause: err})
		return
	}
	st.mu.Lock()
	highest := st.highest
	st.mu.Unlock()
	replyTo.Tell(actor.ReadHighestSequenceNrSuccess{Highest: actor.SequenceNr(highest)})
}

// WriteMessages implements actor.Journal: appends each persistent envelope
// to the segment in order, replying per envelope, then delivers the
// batch-level acknowledgement.
func (j *Journal) WriteMessages(ctx context.Context, batch []actor.JournalEnvelope, instanceID actor.InstanceID, replyTo actor.Inbox) {
	if len(batch) == 0 {
		replyTo.Tell(actor.WriteMessagesSuccessful{})
		return
	}
	var id actor.PersistenceID
	for _, env := range batch {
		if env.Persistent && env.Repr.PersistenceID != "" {
			id = env.Repr.PersistenceID
			break
		}
	}
	st, err := j.ensure(id)
	if err != nil {
		j.deliverWriteFailure(batch, err, instanceID, replyTo)
		replyTo.Tell(actor.WriteMessagesFailed{Cause: err})
		return
	}

	failed := false
	st.mu.Lock()
	for _, env := range batch {
		if !env.Persistent {
			continue
		}
		if err := st.writer.Append(uint64(env.Repr.SequenceNr), env.Repr.Payload); err != nil {
			st.mu.Unlock()
			failed = true
			j.deliverWriteFailure(batch, err, instanceID, replyTo)
			st.mu.Lock()
			break
		}
		if uint64(env.Repr.SequenceNr) > st.highest {
			st.highest = uint64(env.Repr.SequenceNr)
		}
	}
	st.mu.Unlock()

	if failed {
		replyTo.Tell(actor.WriteMessagesFailed{})
		return
	}

	for _, env := range batch {
		if env.Persistent {
			replyTo.Tell(actor.WriteMessageSuccess{Persistent: env.Repr, InstanceID: instanceID})
		} else {
			replyTo.Tell(actor.LoopMessageSuccess{Message: env.NonPersistent, InstanceID: instanceID})
		}
	}
	replyTo.Tell(actor.WriteMessagesSuccessful{})
}

// deliverWriteFailure gives every envelope of a failed batch its one reply:
// a WriteMessageFailure for each persistent envelope and a
// LoopMessageSuccess for each deferred one.
func (j *Journal) deliverWriteFailure(batch []actor.JournalEnvelope, cause error, instanceID actor.InstanceID, replyTo actor.Inbox) {
	for _, env := range batch {
		if env.Persistent {
			replyTo.Tell(actor.WriteMessageFailure{Persistent: env.Repr, Cause: cause, InstanceID: instanceID})
		} else {
			replyTo.Tell(actor.LoopMessageSuccess{Message: env.NonPersistent, InstanceID: instanceID})
		}
	}
}

// DeleteMessagesTo implements actor.Journal. Logical deletion advances the
// header's tombstone cursor; permanent deletion rewrites the segment with
// the deleted records dropped, the way Cleaner's sweep removes entity
// directories outright rather than marking them.
func (j *Journal) DeleteMessagesTo(ctx context.Context, id actor.PersistenceID, toSeq actor.SequenceNr, permanent bool, replyTo actor.Inbox) {
	st, err := j.ensure(id)
	if err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !permanent {
		if uint64(toSeq) > st.header.Tombstone {
			st.header.Tombstone = uint64(toSeq)
		}
		if err := WriteHeader(filepath.Join(st.dir, "header.json"), st.header); err != nil {
			replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
			return
		}
		replyTo.Tell(actor.DeleteMessagesSuccess{ToSequenceNr: toSeq})
		return
	}

	eventsPath := filepath.Join(st.dir, st.header.EventsFile)
	records, err := loadSegment(eventsPath)
	if err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}
	if err := st.writer.Close(); err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}

	writer, err := openSegmentWriter(eventsPath + ".rewrite")
	if err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}
	var highest uint64
	for _, rec := range records {
		if rec.Seq <= uint64(toSeq) {
			continue
		}
		var payload any
		if err := json.Unmarshal(rec.Payload, &payload); err == nil {
			_ = writer.Append(rec.Seq, payload)
		}
		if rec.Seq > highest {
			highest = rec.Seq
		}
	}
	writer.Close()
	if err := os.Rename(eventsPath+".rewrite", eventsPath); err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}
	newWriter, err := openSegmentWriter(eventsPath)
	if err != nil {
		replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
		return
	}
	st.writer = newWriter
	st.highest = highest
	if st.header.Tombstone <= uint64(toSeq) {
		st.header.Tombstone = 0
		if err := WriteHeader(filepath.Join(st.dir, "header.json"), st.header); err != nil {
			replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
			return
		}
	}
	replyTo.Tell(actor.DeleteMessagesSuccess{ToSequenceNr: toSeq})
}

// Close flushes and releases every open segment writer. Intended for
// graceful shutdown of cmd/eventactord.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for _, st := range j.entities {
		st.mu.Lock()
		if err := st.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		st.mu.Unlock()
	}
	return firstErr
}
