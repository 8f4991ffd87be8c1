package raftlog_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/downfa11-org/go-journal/pkg/config"
	"github.com/downfa11-org/go-journal/pkg/journal"
	"github.com/downfa11-org/go-journal/pkg/raftlog"
	"github.com/hashicorp/raft"
)

func newStore(t *testing.T) *raftlog.LogStore {
	t.Helper()
	cfg := &config.Config{
		Name:           "raft",
		Directory:      t.TempDir(),
		MaxSegmentSize: 4096,
		IndexStride:    10,
	}
	j, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	store, err := raftlog.NewLogStore(j)
	if err != nil {
		t.Fatalf("new log store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestLogStoreEmpty(t *testing.T) {
	store := newStore(t)

	first, err := store.FirstIndex()
	if err != nil || first != 0 {
		t.Errorf("expected first index 0 on empty store, got %d err %v", first, err)
	}
	last, err := store.LastIndex()
	if err != nil || last != 0 {
		t.Errorf("expected last index 0 on empty store, got %d err %v", last, err)
	}

	var out raft.Log
	if err := store.GetLog(1, &out); !errors.Is(err, raft.ErrLogNotFound) {
		t.Errorf("expected log-not-found, got %v", err)
	}
}

func TestLogStoreRoundTrip(t *testing.T) {
	store := newStore(t)

	logs := []*raft.Log{
		{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("set x=1")},
		{Index: 2, Term: 1, Type: raft.LogCommand, Data: []byte("set y=2")},
		{Index: 3, Term: 2, Type: raft.LogNoop},
	}
	if err := store.StoreLogs(logs); err != nil {
		t.Fatalf("store logs: %v", err)
	}

	first, _ := store.FirstIndex()
	last, _ := store.LastIndex()
	if first != 1 || last != 3 {
		t.Errorf("expected range [1, 3], got [%d, %d]", first, last)
	}

	var out raft.Log
	if err := store.GetLog(2, &out); err != nil {
		t.Fatalf("get log 2: %v", err)
	}
	if out.Index != 2 || out.Term != 1 || !bytes.Equal(out.Data, []byte("set y=2")) {
		t.Errorf("unexpected log entry: %+v", out)
	}

	if err := store.GetLog(9, &out); !errors.Is(err, raft.ErrLogNotFound) {
		t.Errorf("expected log-not-found past the end, got %v", err)
	}
}

func TestLogStoreRejectsGaps(t *testing.T) {
	store := newStore(t)
	if err := store.StoreLog(&raft.Log{Index: 5, Term: 1, Data: []byte("x")}); err == nil {
		t.Fatal("expected gap to be rejected")
	}
}

func TestLogStoreDeleteSuffix(t *testing.T) {
	store := newStore(t)
	for i := uint64(1); i <= 5; i++ {
		if err := store.StoreLog(&raft.Log{Index: i, Term: 1, Data: []byte("entry")}); err != nil {
			t.Fatalf("store log %d: %v", i, err)
		}
	}

	// Conflict truncation drops the suffix.
	if err := store.DeleteRange(3, 5); err != nil {
		t.Fatalf("delete range: %v", err)
	}
	last, _ := store.LastIndex()
	if last != 2 {
		t.Errorf("expected last index 2, got %d", last)
	}

	// The leader's entries replace it.
	if err := store.StoreLog(&raft.Log{Index: 3, Term: 2, Data: []byte("replacement")}); err != nil {
		t.Fatalf("store after truncation: %v", err)
	}
	var out raft.Log
	if err := store.GetLog(3, &out); err != nil {
		t.Fatalf("get log 3: %v", err)
	}
	if out.Term != 2 {
		t.Errorf("expected replaced entry with term 2, got %+v", out)
	}
}

func TestLogStoreDeleteMidRangeRejected(t *testing.T) {
	store := newStore(t)
	for i := uint64(1); i <= 5; i++ {
		if err := store.StoreLog(&raft.Log{Index: i, Term: 1, Data: []byte("entry")}); err != nil {
			t.Fatalf("store log %d: %v", i, err)
		}
	}
	if err := store.DeleteRange(2, 3); err == nil {
		t.Fatal("expected mid-range deletion to be rejected")
	}
}
