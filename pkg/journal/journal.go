// Package journal implements a segmented append-only journal: the durable
// log of a replicated workflow-engine partition. Records carry a journal
// index, an optional application sequence number, and an opaque payload,
// and are persisted across rolling fixed-size segment files.
package journal

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/downfa11-org/go-journal/pkg/config"
	"github.com/downfa11-org/go-journal/pkg/types"
	"github.com/downfa11-org/go-journal/util"
	"github.com/google/uuid"
)

// Journal is the facade over one journal directory. A single goroutine
// appends; any number of goroutines read through Readers. Truncations and
// resets take the exclusive lock and rewind readers left past the new
// tail.
type Journal struct {
	cfg      *config.Config
	segments *segmentsManager
	index    *sparseIndex
	writer   writer
	metrics  MetricsSink
	clock    Clock

	mu      sync.RWMutex
	lastIdx atomic.Uint64
	opened  atomic.Bool

	readersMu sync.Mutex
	readers   map[uuid.UUID]*Reader

	closeOnce sync.Once
}

// Option customizes a Journal beyond its file configuration.
type Option func(*Journal)

// WithMetrics routes the journal's counters and timers to sink.
func WithMetrics(sink MetricsSink) Option {
	return func(j *Journal) { j.metrics = sink }
}

// WithClock replaces the wall clock used for metric timers.
func WithClock(clock Clock) Option {
	return func(j *Journal) { j.clock = clock }
}

// Open loads or initializes the journal in cfg.Directory. All state is
// recovered by scanning the segment files; partially written tails are
// trimmed.
func Open(cfg *config.Config, opts ...Option) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("journal directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("journal directory %s is not a directory", cfg.Directory)
	}
	if int64(cfg.MaxSegmentSize) <= descriptorSize+frameHeaderSize {
		return nil, fmt.Errorf("journal: max segment size %d cannot hold a single record", cfg.MaxSegmentSize)
	}

	j := &Journal{
		cfg:     cfg,
		index:   newSparseIndex(cfg.IndexStride),
		metrics: noopMetrics{},
		clock:   wallClock{},
		readers: make(map[uuid.UUID]*Reader),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.segments = newSegmentsManager(cfg, j.index)
	j.writer = writer{journal: j}

	if err := j.segments.open(); err != nil {
		return nil, err
	}
	j.lastIdx.Store(j.segments.lastSegment().lastIndex())
	j.opened.Store(true)

	j.metrics.SetSegmentCount(j.segments.count())
	j.metrics.SetFirstIndex(j.FirstIndex())
	j.metrics.SetLastIndex(j.lastIdx.Load())

	util.Info("Opened journal %q in %s: indexes [%d, %d], %d segment(s)",
		cfg.Name, cfg.Directory, j.FirstIndex(), j.lastIdx.Load(), j.segments.count())
	return j, nil
}

// Append appends a record without an application sequence number.
func (j *Journal) Append(payload []byte) (types.Record, error) {
	return j.AppendWithASQN(types.ASQNIgnore, payload)
}

// AppendWithASQN appends a record carrying the given application sequence
// number. Appends must come from a single goroutine.
func (j *Journal) AppendWithASQN(asqn int64, payload []byte) (types.Record, error) {
	if !j.isOpen() {
		return types.Record{}, ErrClosed
	}
	if len(payload) == 0 {
		return types.Record{}, ErrEmptyPayload
	}

	start := j.clock.Now()
	record, err := j.writer.append(j.lastIdx.Load()+1, asqn, payload)
	if err != nil {
		return types.Record{}, err
	}

	j.metrics.RecordAppend(len(payload), j.clock.Now().Sub(start))
	j.metrics.SetLastIndex(record.Index)
	return record, nil
}

// AppendRecord replays a record received from the replication leader. The
// record's index must be the journal's next index and its checksum must
// match its contents, so frames are preserved verbatim across replicas.
func (j *Journal) AppendRecord(record types.Record) error {
	if !j.isOpen() {
		return ErrClosed
	}
	if len(record.Payload) == 0 {
		return ErrEmptyPayload
	}
	if next := j.lastIdx.Load() + 1; record.Index != next {
		return fmt.Errorf("%w: got %d, expected %d", ErrInvalidIndex, record.Index, next)
	}
	expected := checksum(record.Index, record.ASQN, uint32(frameLength(record.Payload)), record.Payload)
	if record.Checksum != expected {
		return fmt.Errorf("%w: index %d", ErrCorruptedRecord, record.Index)
	}

	start := j.clock.Now()
	if _, err := j.writer.append(record.Index, record.ASQN, record.Payload); err != nil {
		return err
	}
	j.metrics.RecordAppend(len(record.Payload), j.clock.Now().Sub(start))
	j.metrics.SetLastIndex(record.Index)
	return nil
}

// DeleteAfter truncates every record with an index greater than
// indexExclusive and rewinds readers that were past it.
func (j *Journal) DeleteAfter(indexExclusive uint64) error {
	if !j.isOpen() {
		return ErrClosed
	}

	start := j.clock.Now()
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.deleteAfter(indexExclusive); err != nil {
		return err
	}
	j.rewindReaders(indexExclusive + 1)

	j.metrics.ObserveSegmentTruncation(j.clock.Now().Sub(start))
	j.metrics.SetSegmentCount(j.segments.count())
	j.metrics.SetLastIndex(j.lastIdx.Load())
	return nil
}

// DeleteUntil removes whole segments whose records all have indexes below
// index. The first retained index may stay below index: deletion happens
// at segment granularity and never touches the writable segment.
func (j *Journal) DeleteUntil(index uint64) error {
	if !j.isOpen() {
		return ErrClosed
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.segments.deleteUntil(index); err != nil {
		return err
	}
	first := j.firstIndex()
	j.index.deleteUntil(first)
	firstSegID := j.segments.firstSegment().id
	for _, reader := range j.listReaders() {
		if reader.next < first {
			reader.unsafeSeek(first)
		} else if reader.segment.id < firstSegID {
			// Logical position survives, but the segment under the
			// cursor is gone.
			reader.unsafeSeek(reader.next)
		}
	}

	j.metrics.SetSegmentCount(j.segments.count())
	j.metrics.SetFirstIndex(first)
	return nil
}

// Reset clears the journal as if it had always started at nextIndex.
func (j *Journal) Reset(nextIndex uint64) error {
	if !j.isOpen() {
		return ErrClosed
	}
	if nextIndex == 0 {
		return fmt.Errorf("%w: next index must be at least 1", ErrOutOfRange)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.reset(nextIndex); err != nil {
		return err
	}
	// Every prior position is gone, not just the ones past the tail.
	for _, reader := range j.listReaders() {
		reader.unsafeSeek(nextIndex)
	}

	j.metrics.SetSegmentCount(j.segments.count())
	j.metrics.SetFirstIndex(nextIndex)
	j.metrics.SetLastIndex(nextIndex - 1)
	return nil
}

// Flush forces durability: once it returns, every append that returned
// before the call survives a crash. Appends themselves do not sync.
func (j *Journal) Flush() error {
	if !j.isOpen() {
		return ErrClosed
	}
	return j.writer.flush()
}

// OpenReader registers and returns a new reader positioned at the first
// retained record.
func (j *Journal) OpenReader() (*Reader, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.isOpen() {
		return nil, ErrClosed
	}

	reader := &Reader{journal: j, id: uuid.New()}
	reader.unsafeSeek(j.firstIndex())

	j.readersMu.Lock()
	j.readers[reader.id] = reader
	j.readersMu.Unlock()
	return reader, nil
}

func (j *Journal) closeReader(reader *Reader) {
	j.readersMu.Lock()
	delete(j.readers, reader.id)
	j.readersMu.Unlock()
}

// FirstIndex returns the index of the earliest retained record.
func (j *Journal) FirstIndex() uint64 {
	return j.firstIndex()
}

// LastIndex returns the index of the most recent record, or FirstIndex-1
// when the journal is empty.
func (j *Journal) LastIndex() uint64 {
	return j.lastIdx.Load()
}

// NextIndex returns the index the next appended record will get.
func (j *Journal) NextIndex() uint64 {
	return j.lastIdx.Load() + 1
}

// IsEmpty reports whether the journal holds no records.
func (j *Journal) IsEmpty() bool {
	return j.NextIndex() == j.firstIndex()
}

// SegmentCount returns the number of segment files.
func (j *Journal) SegmentCount() int {
	return j.segments.count()
}

// IsOpen reports whether the journal accepts operations.
func (j *Journal) IsOpen() bool {
	return j.isOpen()
}

// Close closes all segments. Idempotent; afterwards appends, flushes,
// truncations, resets, OpenReader and reader Next/Seek/SeekToAsqn fail
// with ErrClosed, and Reader.HasNext reports false.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		j.opened.Store(false)
		j.segments.close()
		util.Info("Closed journal %q", j.cfg.Name)
	})
	return nil
}

func (j *Journal) isOpen() bool {
	return j.opened.Load()
}

// firstIndex reads the first segment's start index. Safe without a
// lock: the segment list is swapped atomically.
func (j *Journal) firstIndex() uint64 {
	first := j.segments.firstSegment()
	if first == nil {
		return 1
	}
	return first.firstIndex
}

func (j *Journal) listReaders() []*Reader {
	j.readersMu.Lock()
	defer j.readersMu.Unlock()
	readers := make([]*Reader, 0, len(j.readers))
	for _, reader := range j.readers {
		readers = append(readers, reader)
	}
	return readers
}

// rewindReaders resets every reader whose cursor points at or past index
// back to index. Cursors exactly at index are re-seeked too: the segment
// they point into may just have been removed. Runs under the write lock
// so readers observe either the old or the rewound position, never a torn
// one.
func (j *Journal) rewindReaders(index uint64) {
	for _, reader := range j.listReaders() {
		if reader.next >= index {
			reader.unsafeSeek(index)
		}
	}
}
