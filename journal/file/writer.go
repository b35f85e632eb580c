package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// eventRecord is one JSON line in a persistence id's compressed event
// segment. Payload is re-encoded through encoding/json, the same
// "serialization of payloads is an external collaborator's concern" split
// spec.md §1 draws around the journal.
type eventRecord struct {
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// segmentWriter appends events to one persistence id's snappy-compressed
// JSONL segment, keeping the file handle open across calls the way
// replay.Writer keeps eventStream open for the lifetime of a match.
// Concatenating independent snappy streams (one per process that opened
// the file) is valid per the framing format, so reopening after a restart
// never corrupts what a prior incarnation wrote.
type segmentWriter struct {
	mu     sync.Mutex
	file   *os.File
	stream *snappy.Writer
}

func openSegmentWriter(path string) (*segmentWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event segment: %w", err)
	}
	return &segmentWriter{file: f, stream: snappy.NewBufferedWriter(f)}, nil
}

// Append writes one event record and flushes, matching
// replay.Writer.AppendEvent's per-call flush (durability over throughput
// for a reference journal implementation).
func (w *segmentWriter) Append(seq uint64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	line, err := json.Marshal(eventRecord{Seq: seq, Payload: raw})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.stream.Write(line); err != nil {
		return err
	}
	if _, err := w.stream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.stream.Flush()
}

func (w *segmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.stream.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// loadSegment decodes every record in a persistence id's compressed event
// segment, in file order. Unlike replay.Loader (which merges three frame
// kinds and resorts by sim time), event sequence numbers are already
// monotonic on disk because WriteMessages only ever appends, so no sort is
// needed.
func loadSegment(path string) ([]eventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := snappy.NewReader(f)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []eventRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec eventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode event record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event segment: %w", err)
	}
	return records, nil
}
