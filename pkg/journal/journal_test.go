package journal_test

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/go-journal/pkg/config"
	"github.com/downfa11-org/go-journal/pkg/journal"
	"github.com/downfa11-org/go-journal/pkg/types"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Name:           "test",
		Directory:      dir,
		MaxSegmentSize: 1024,
		IndexStride:    10,
	}
}

func openJournal(t *testing.T, cfg *config.Config) *journal.Journal {
	t.Helper()
	j, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func appendN(t *testing.T, j *journal.Journal, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if _, err := j.Append([]byte(fmt.Sprintf("record-%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, testConfig(dir))

	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for i, payload := range payloads {
		record, err := j.Append(payload)
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if record.Index != uint64(i+1) {
			t.Errorf("expected index %d, got %d", i+1, record.Index)
		}
		if record.ASQN != types.ASQNIgnore {
			t.Errorf("expected ignored asqn, got %d", record.ASQN)
		}
	}
	if j.LastIndex() != 3 || j.NextIndex() != 4 {
		t.Errorf("expected last 3 next 4, got last %d next %d", j.LastIndex(), j.NextIndex())
	}

	files, _ := filepath.Glob(filepath.Join(dir, "test-*.log"))
	if len(files) != 1 {
		t.Errorf("expected one segment on disk, got %v", files)
	}

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	for i, want := range payloads {
		if !reader.HasNext() {
			t.Fatalf("expected record %d to be readable", i+1)
		}
		record, err := reader.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !bytes.Equal(record.Payload, want) {
			t.Errorf("record %d: expected %q, got %q", i+1, want, record.Payload)
		}
	}
	if reader.HasNext() {
		t.Error("expected reader to be exhausted")
	}
	if reader.CurrentIndex() != 3 {
		t.Errorf("expected current index 3, got %d", reader.CurrentIndex())
	}
}

func TestSegmentRollover(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentSize = 128
	j := openJournal(t, cfg)

	// descriptor(64) + one 56-byte frame fills segment 1.
	payload := make([]byte, 32)
	count := 0
	for j.SegmentCount() < 2 {
		if _, err := j.Append(payload); err != nil {
			t.Fatalf("append: %v", err)
		}
		count++
		if count > 100 {
			t.Fatal("journal never rolled")
		}
	}
	if count != 2 {
		t.Errorf("expected the second append to roll, rolled after %d", count)
	}

	// Reopening validates the first-index chain between the segments.
	j.Close()
	reopened := openJournal(t, cfg)
	if reopened.FirstIndex() != 1 || reopened.LastIndex() != uint64(count) {
		t.Errorf("expected [1, %d] after reopen, got [%d, %d]",
			count, reopened.FirstIndex(), reopened.LastIndex())
	}
}

func TestDeleteAfterRewindsReaders(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 10)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	for i := 0; i < 7; i++ {
		if _, err := reader.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	// The reader now sits at index 8.

	if err := j.DeleteAfter(5); err != nil {
		t.Fatalf("deleteAfter: %v", err)
	}
	if j.LastIndex() != 5 {
		t.Errorf("expected last index 5, got %d", j.LastIndex())
	}
	if reader.HasNext() {
		t.Error("rewound reader must see no records past the new tail")
	}

	record, err := j.Append([]byte("resumed"))
	if err != nil {
		t.Fatalf("append after truncation: %v", err)
	}
	if record.Index != 6 {
		t.Errorf("expected append to continue at 6, got %d", record.Index)
	}
	if !reader.HasNext() {
		t.Fatal("reader should see the new record")
	}
	got, err := reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Index != 6 || !bytes.Equal(got.Payload, []byte("resumed")) {
		t.Errorf("expected record 6 %q, got %d %q", "resumed", got.Index, got.Payload)
	}
}

func TestDeleteAfterBelowFirstIndex(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 4)

	if err := j.DeleteAfter(0); err != nil {
		t.Fatalf("deleteAfter: %v", err)
	}
	if !j.IsEmpty() {
		t.Errorf("expected empty journal, last index %d", j.LastIndex())
	}
	if j.LastIndex() != j.FirstIndex()-1 {
		t.Errorf("expected last == first-1, got first %d last %d", j.FirstIndex(), j.LastIndex())
	}
}

func TestSeekWithSparseIndex(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentSize = 2048
	cfg.IndexStride = 10
	j := openJournal(t, cfg)
	appendN(t, j, 100)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if err := reader.Seek(73); err != nil {
		t.Fatalf("seek: %v", err)
	}
	record, err := reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if record.Index != 73 || !bytes.Equal(record.Payload, []byte("record-73")) {
		t.Errorf("expected record 73, got %d %q", record.Index, record.Payload)
	}
	record, err = reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if record.Index != 74 {
		t.Errorf("expected record 74 after 73, got %d", record.Index)
	}
}

func TestSeekOutOfRange(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 5)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if err := reader.Seek(0); !errors.Is(err, journal.ErrOutOfRange) {
		t.Errorf("expected out of range below first index, got %v", err)
	}
	if err := reader.Seek(7); !errors.Is(err, journal.ErrOutOfRange) {
		t.Errorf("expected out of range past next index, got %v", err)
	}
	// One past the last record is the end position.
	if err := reader.Seek(6); err != nil {
		t.Errorf("seek to next index should succeed, got %v", err)
	}
	if reader.HasNext() {
		t.Error("expected no records at the end position")
	}
}

func TestSeekToLast(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 9)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	reader.SeekToLast()
	record, err := reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if record.Index != 9 {
		t.Errorf("expected last record 9, got %d", record.Index)
	}
	if reader.HasNext() {
		t.Error("expected nothing after the last record")
	}

	reader.SeekToFirst()
	record, err = reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if record.Index != 1 {
		t.Errorf("expected first record 1, got %d", record.Index)
	}
}

func TestSeekToAsqn(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))

	asqns := []int64{10, types.ASQNIgnore, 20, types.ASQNIgnore, 30}
	for i, asqn := range asqns {
		if _, err := j.AppendWithASQN(asqn, []byte(fmt.Sprintf("r%d", i+1))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	index, err := reader.SeekToAsqn(25)
	if err != nil {
		t.Fatalf("seekToAsqn: %v", err)
	}
	if index != 3 {
		t.Errorf("expected index 3 (asqn 20), got %d", index)
	}
	record, err := reader.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if record.ASQN != 20 {
		t.Errorf("expected record with asqn 20, got %d", record.ASQN)
	}

	if _, err := reader.SeekToAsqn(5); !errors.Is(err, journal.ErrOutOfRange) {
		t.Errorf("expected out of range below the smallest asqn, got %v", err)
	}
}

func TestOutOfDiskSpace(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentSize = 256
	cfg.MinFreeDiskSpace = math.MaxUint64
	j := openJournal(t, cfg)

	// Fill the initial segment; the roll for the next append must hit the
	// disk-space policy.
	payload := make([]byte, 64)
	var appended uint64
	for {
		_, err := j.Append(payload)
		if err == nil {
			appended++
			continue
		}
		if !errors.Is(err, journal.ErrOutOfDiskSpace) {
			t.Fatalf("expected out-of-disk-space, got %v", err)
		}
		break
	}
	if appended == 0 {
		t.Fatal("expected at least one append to fit the initial segment")
	}
	if j.LastIndex() != appended {
		t.Errorf("failed roll must not advance last index: %d vs %d", j.LastIndex(), appended)
	}

	// The journal stays readable.
	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	var read uint64
	for reader.HasNext() {
		if _, err := reader.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
		read++
	}
	if read != appended {
		t.Errorf("expected %d readable records, got %d", appended, read)
	}
}

func TestCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	j := openJournal(t, cfg)

	payload := make([]byte, 16) // frame is 40 bytes
	for i := 0; i < 5; i++ {
		payload[0] = byte(i + 1)
		if _, err := j.Append(payload); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	j.Close()

	// Crash mid-write of the fourth frame.
	path := filepath.Join(dir, "test-00000000000000000001.log")
	if err := os.Truncate(path, 64+3*40+10); err != nil {
		t.Fatalf("truncate segment file: %v", err)
	}

	reopened := openJournal(t, cfg)
	if reopened.LastIndex() != 3 {
		t.Fatalf("expected last index 3 after recovery, got %d", reopened.LastIndex())
	}
	record, err := reopened.Append([]byte("continued"))
	if err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if record.Index != 4 {
		t.Errorf("expected append to continue at 4, got %d", record.Index)
	}

	reader, err := reopened.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	count := 0
	for reader.HasNext() {
		if _, err := reader.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
		count++
	}
	if count != 4 {
		t.Errorf("expected 4 records after recovery, got %d", count)
	}
}

func TestReset(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 10)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	if _, err := reader.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}

	if err := j.Reset(50); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if j.FirstIndex() != 50 || j.LastIndex() != 49 || j.NextIndex() != 50 {
		t.Errorf("expected first 50 last 49 next 50, got %d %d %d",
			j.FirstIndex(), j.LastIndex(), j.NextIndex())
	}
	if !j.IsEmpty() {
		t.Error("expected empty journal after reset")
	}
	if j.SegmentCount() != 1 {
		t.Errorf("expected exactly one segment, got %d", j.SegmentCount())
	}
	if reader.HasNext() {
		t.Error("expected rewound reader to see nothing")
	}

	record, err := j.Append([]byte("fresh"))
	if err != nil {
		t.Fatalf("append after reset: %v", err)
	}
	if record.Index != 50 {
		t.Errorf("expected index 50, got %d", record.Index)
	}

	if err := j.Reset(0); !errors.Is(err, journal.ErrOutOfRange) {
		t.Errorf("expected reset(0) to be rejected, got %v", err)
	}
}

func TestDeleteUntil(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentSize = 128 // one 56-byte frame per segment
	j := openJournal(t, cfg)

	payload := make([]byte, 32)
	for i := 0; i < 5; i++ {
		if _, err := j.Append(payload); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if j.SegmentCount() != 5 {
		t.Fatalf("expected 5 single-record segments, got %d", j.SegmentCount())
	}

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	if err := j.DeleteUntil(4); err != nil {
		t.Fatalf("deleteUntil: %v", err)
	}
	if j.FirstIndex() != 4 {
		t.Errorf("expected first index 4, got %d", j.FirstIndex())
	}
	if j.SegmentCount() != 2 {
		t.Errorf("expected 2 segments, got %d", j.SegmentCount())
	}

	record, err := reader.Next()
	if err != nil {
		t.Fatalf("rewound reader failed: %v", err)
	}
	if record.Index != 4 {
		t.Errorf("expected rewound reader to start at 4, got %d", record.Index)
	}
}

func TestAppendRecordFollowerPath(t *testing.T) {
	leader := openJournal(t, testConfig(t.TempDir()))
	follower := openJournal(t, testConfig(t.TempDir()))

	for i := 1; i <= 3; i++ {
		if _, err := leader.AppendWithASQN(int64(i*100), []byte(fmt.Sprintf("entry-%d", i))); err != nil {
			t.Fatalf("leader append: %v", err)
		}
	}

	reader, err := leader.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	for reader.HasNext() {
		record, err := reader.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if err := follower.AppendRecord(record); err != nil {
			t.Fatalf("follower append of %d: %v", record.Index, err)
		}
	}
	if follower.LastIndex() != 3 {
		t.Errorf("expected follower at index 3, got %d", follower.LastIndex())
	}

	// Gaps are rejected.
	err = follower.AppendRecord(types.Record{Index: 9, ASQN: types.ASQNIgnore, Payload: []byte("gap")})
	if !errors.Is(err, journal.ErrInvalidIndex) {
		t.Errorf("expected invalid index, got %v", err)
	}

	// Tampered payloads are rejected before hitting disk.
	bad := types.Record{Index: 4, ASQN: types.ASQNIgnore, Payload: []byte("tampered"), Checksum: 12345}
	if err := follower.AppendRecord(bad); !errors.Is(err, journal.ErrCorruptedRecord) {
		t.Errorf("expected corrupted record, got %v", err)
	}
}

func TestClosedJournal(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	appendN(t, j, 2)

	reader, err := j.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close must be idempotent: %v", err)
	}
	if j.IsOpen() {
		t.Error("expected closed journal")
	}

	if _, err := j.Append([]byte("x")); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("expected closed error on append, got %v", err)
	}
	if err := j.Flush(); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("expected closed error on flush, got %v", err)
	}
	if err := j.DeleteAfter(1); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("expected closed error on deleteAfter, got %v", err)
	}
	if _, err := j.OpenReader(); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("expected closed error on openReader, got %v", err)
	}
	if reader.HasNext() {
		t.Error("expected reader on closed journal to report no records")
	}
	if _, err := reader.Next(); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("expected closed error on reader next, got %v", err)
	}
}

func TestEmptyPayloadRejected(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	if _, err := j.Append(nil); !errors.Is(err, journal.ErrEmptyPayload) {
		t.Errorf("expected empty payload rejection, got %v", err)
	}
}

func TestIsEmpty(t *testing.T) {
	j := openJournal(t, testConfig(t.TempDir()))
	if !j.IsEmpty() {
		t.Error("fresh journal must be empty")
	}
	appendN(t, j, 1)
	if j.IsEmpty() {
		t.Error("journal with a record must not be empty")
	}
}

func TestRecordTooLarge(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentSize = 128
	j := openJournal(t, cfg)

	// 24-byte header + 41-byte payload + 64-byte descriptor > 128.
	if _, err := j.Append(make([]byte, 41)); !errors.Is(err, journal.ErrRecordTooLarge) {
		t.Errorf("expected record-too-large, got %v", err)
	}
}
