// Package raftlog adapts the journal to hashicorp/raft's LogStore so a
// consensus layer can use it as the durable log of a partition replica.
package raftlog

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/downfa11-org/go-journal/pkg/journal"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/raft"
)

// LogStore stores raft log entries in a journal, one record per entry,
// with the raft index mapped one-to-one onto the journal index. Entries
// are msgpack-encoded the way raft's own stores encode them.
type LogStore struct {
	journal *journal.Journal

	mu     sync.Mutex
	reader *journal.Reader
}

func NewLogStore(j *journal.Journal) (*LogStore, error) {
	reader, err := j.OpenReader()
	if err != nil {
		return nil, err
	}
	return &LogStore{journal: j, reader: reader}, nil
}

// FirstIndex returns the first raft index in the store, 0 when empty.
func (s *LogStore) FirstIndex() (uint64, error) {
	if s.journal.IsEmpty() {
		return 0, nil
	}
	return s.journal.FirstIndex(), nil
}

// LastIndex returns the last raft index in the store, 0 when empty.
func (s *LogStore) LastIndex() (uint64, error) {
	if s.journal.IsEmpty() {
		return 0, nil
	}
	return s.journal.LastIndex(), nil
}

// GetLog reads the entry at index into out.
func (s *LogStore) GetLog(index uint64, out *raft.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reader.Seek(index); err != nil {
		if errors.Is(err, journal.ErrOutOfRange) {
			return raft.ErrLogNotFound
		}
		return err
	}
	record, err := s.reader.Next()
	if err != nil {
		if errors.Is(err, journal.ErrNoSuchIndex) {
			return raft.ErrLogNotFound
		}
		return err
	}
	return decodeLog(record.Payload, out)
}

// StoreLog appends a single entry.
func (s *LogStore) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs appends a batch of entries and flushes once at the end.
func (s *LogStore) StoreLogs(logs []*raft.Log) error {
	for _, log := range logs {
		if next := s.journal.NextIndex(); log.Index != next {
			return fmt.Errorf("raftlog: log index %d does not follow journal index %d", log.Index, next-1)
		}
		data, err := encodeLog(log)
		if err != nil {
			return err
		}
		if _, err := s.journal.Append(data); err != nil {
			return err
		}
	}
	return s.journal.Flush()
}

// DeleteRange removes entries in [min, max]. Raft only ever deletes a
// prefix (log compaction) or a suffix (conflict truncation); mid-range
// deletion is rejected.
func (s *LogStore) DeleteRange(min, max uint64) error {
	first := s.journal.FirstIndex()
	last := s.journal.LastIndex()

	switch {
	case min <= first:
		return s.journal.DeleteUntil(max + 1)
	case max >= last:
		return s.journal.DeleteAfter(min - 1)
	default:
		return fmt.Errorf("raftlog: cannot delete mid-range [%d, %d] of [%d, %d]", min, max, first, last)
	}
}

// Close releases the store's reader; the journal itself stays open.
func (s *LogStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader.Close()
}

func encodeLog(log *raft.Log) ([]byte, error) {
	var buf bytes.Buffer
	handle := codec.MsgpackHandle{}
	if err := codec.NewEncoder(&buf, &handle).Encode(log); err != nil {
		return nil, fmt.Errorf("raftlog: encode log %d: %w", log.Index, err)
	}
	return buf.Bytes(), nil
}

func decodeLog(data []byte, out *raft.Log) error {
	handle := codec.MsgpackHandle{}
	if err := codec.NewDecoder(bytes.NewReader(data), &handle).Decode(out); err != nil {
		return fmt.Errorf("raftlog: decode log: %w", err)
	}
	return nil
}
