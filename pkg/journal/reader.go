package journal

import (
	"errors"
	"fmt"

	"github.com/downfa11-org/go-journal/pkg/types"
	"github.com/google/uuid"
)

// Reader is a forward cursor over committed records. Readers are owned by
// the caller; the journal keeps only a registry entry so truncations can
// rewind cursors that point past the new tail. All operations take the
// journal's shared lock and may run concurrently with appends, but a
// Reader itself is not safe for concurrent use.
type Reader struct {
	journal *Journal
	id      uuid.UUID

	segment  *segment
	offset   int64
	next     uint64
	lastRead uint64
}

// HasNext reports whether a record is available at the cursor.
func (r *Reader) HasNext() bool {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()

	if !r.journal.isOpen() {
		return false
	}
	return r.next <= r.journal.lastIdx.Load()
}

// Next returns the record at the cursor and advances past it.
func (r *Reader) Next() (types.Record, error) {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()

	if !r.journal.isOpen() {
		return types.Record{}, ErrClosed
	}
	if r.next > r.journal.lastIdx.Load() {
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNoSuchIndex, r.next)
	}

	for {
		record, nextOffset, err := r.segment.readAt(r.offset)
		if errors.Is(err, errEndOfData) {
			following := r.journal.segments.getNextSegment(r.segment.id)
			if following == nil {
				return types.Record{}, fmt.Errorf("%w: index %d", ErrNoSuchIndex, r.next)
			}
			r.segment = following
			r.offset = descriptorSize
			continue
		}
		if err != nil {
			return types.Record{}, err
		}
		if record.Index != r.next {
			return types.Record{}, fmt.Errorf("%w: index %d, found %d", ErrNoSuchIndex, r.next, record.Index)
		}

		r.offset = nextOffset
		r.lastRead = record.Index
		r.next = record.Index + 1
		return record, nil
	}
}

// Seek positions the cursor at index. Valid positions run from the
// journal's first index to one past its last.
func (r *Reader) Seek(index uint64) error {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()

	if !r.journal.isOpen() {
		return ErrClosed
	}
	first := r.journal.firstIndex()
	last := r.journal.lastIdx.Load()
	if index < first || index > last+1 {
		return fmt.Errorf("%w: index %d not in [%d, %d]", ErrOutOfRange, index, first, last+1)
	}

	r.unsafeSeek(index)
	return nil
}

// SeekToFirst positions the cursor at the earliest retained record.
func (r *Reader) SeekToFirst() {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()
	r.unsafeSeek(r.journal.firstIndex())
}

// SeekToLast positions the cursor on the most recent record, so that Next
// returns it.
func (r *Reader) SeekToLast() {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()

	last := r.journal.lastIdx.Load()
	first := r.journal.firstIndex()
	if last < first {
		r.unsafeSeek(first)
		return
	}
	r.unsafeSeek(last)
}

// SeekToAsqn positions the cursor on the record with the greatest index
// whose ASQN is at most asqn, so that Next returns it. ASQNs are monotonic
// only if the caller made them so; the scan is linear from the first
// retained record.
func (r *Reader) SeekToAsqn(asqn int64) (uint64, error) {
	r.journal.mu.RLock()
	defer r.journal.mu.RUnlock()

	if !r.journal.isOpen() {
		return 0, ErrClosed
	}

	seg := r.journal.segments.firstSegment()
	offset := int64(descriptorSize)
	var best uint64
	found := false

	for seg != nil {
		record, n, err := readFrameAt(seg.file, seg.committed.Load(), offset)
		if errors.Is(err, errEndOfData) {
			seg = r.journal.segments.getNextSegment(seg.id)
			offset = descriptorSize
			continue
		}
		if err != nil {
			return 0, err
		}
		if record.ASQN != types.ASQNIgnore && record.ASQN <= asqn && (!found || record.Index > best) {
			best = record.Index
			found = true
		}
		offset += n
	}

	if !found {
		return 0, fmt.Errorf("%w: no record with asqn <= %d", ErrOutOfRange, asqn)
	}
	r.unsafeSeek(best)
	return best, nil
}

// CurrentIndex returns the index of the most recently returned record, or
// zero when nothing has been read since the reader was opened or last
// positioned by a seek.
func (r *Reader) CurrentIndex() uint64 {
	return r.lastRead
}

// Close deregisters the reader from the journal.
func (r *Reader) Close() {
	r.journal.closeReader(r)
}

// unsafeSeek repositions the cursor without taking the lock. The facade
// calls it under the write lock when rewinding readers past a truncation;
// every other caller must hold at least the read lock.
func (r *Reader) unsafeSeek(index uint64) {
	seg := r.journal.segments.getSegment(index)
	if seg == nil {
		return
	}

	offset := int64(descriptorSize)
	if entry, ok := r.journal.index.floorEntry(index); ok && entry.SegmentID == seg.id {
		offset = entry.Position
	}

	// Scan forward to the frame with the target index; lands at the
	// segment end when the target is past the last record.
	for {
		record, nextOffset, err := seg.readAt(offset)
		if err != nil || record.Index >= index {
			break
		}
		offset = nextOffset
	}

	r.segment = seg
	r.offset = offset
	r.next = index
	r.lastRead = 0
}
