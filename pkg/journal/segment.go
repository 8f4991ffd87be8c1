package journal

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/downfa11-org/go-journal/pkg/disk"
	"github.com/downfa11-org/go-journal/pkg/types"
)

// truncateZeroBound limits how many bytes past a truncation point are
// zeroed. Clearing the first frame length is what stops a scan; the rest
// is cleared lazily by later appends overwriting it.
const truncateZeroBound = 4096

// segment is one fixed-size journal file. The writer appends through
// WriteAt and publishes the new write offset afterwards, so concurrent
// readers only ever observe fully written frames.
type segment struct {
	id         uint64
	firstIndex uint64
	maxSize    uint32
	path       string
	file       *os.File

	// committed is the write offset; frames below it are readable.
	committed atomic.Int64
	// last is the index of the most recent record, firstIndex-1 when the
	// segment is empty.
	last atomic.Uint64

	scratch []byte
}

func newSegment(file *os.File, path string, desc segmentDescriptor) *segment {
	s := &segment{
		id:         desc.segmentID,
		firstIndex: desc.firstIndex,
		maxSize:    desc.maxSize,
		path:       path,
		file:       file,
	}
	s.committed.Store(descriptorSize)
	s.last.Store(desc.firstIndex - 1)
	return s
}

func (s *segment) lastIndex() uint64 { return s.last.Load() }

func (s *segment) isEmpty() bool { return s.last.Load() < s.firstIndex }

// size is the byte offset one past the last committed frame.
func (s *segment) size() int64 { return s.committed.Load() }

// append writes one frame at the current write offset and returns the
// record view and the offset the frame starts at.
func (s *segment) append(index uint64, asqn int64, payload []byte) (types.Record, int64, error) {
	offset := s.committed.Load()
	length := frameLength(payload)
	if offset+int64(length) > int64(s.maxSize) {
		return types.Record{}, 0, errSegmentFull
	}

	if len(s.scratch) < length {
		s.scratch = make([]byte, length)
	}
	record, err := encodeFrame(s.scratch, index, asqn, payload)
	if err != nil {
		return types.Record{}, 0, err
	}
	if _, err := s.file.WriteAt(s.scratch[:length], offset); err != nil {
		return types.Record{}, 0, fmt.Errorf("write frame to %s at %d: %w", s.path, offset, err)
	}

	s.committed.Store(offset + int64(length))
	s.last.Store(index)
	return record, offset, nil
}

// readAt decodes the frame at the given offset and returns it together
// with the offset of the following frame.
func (s *segment) readAt(offset int64) (types.Record, int64, error) {
	record, n, err := readFrameAt(s.file, s.committed.Load(), offset)
	if err != nil {
		return types.Record{}, 0, err
	}
	return record, offset + n, nil
}

// truncateTo drops every frame with an index greater than index and zeros
// the tail so that a later scan stops at the new end. A no-op when index
// is at or past the segment's last record.
func (s *segment) truncateTo(index uint64) error {
	if index >= s.last.Load() {
		return nil
	}

	newOffset := int64(descriptorSize)
	newLast := s.firstIndex - 1
	if index >= s.firstIndex {
		for {
			record, next, err := s.readAt(newOffset)
			if err != nil {
				return fmt.Errorf("truncate %s to index %d: %w", s.path, index, err)
			}
			newOffset = next
			newLast = record.Index
			if record.Index == index {
				break
			}
		}
	}

	if err := s.zeroFrom(newOffset); err != nil {
		return err
	}

	s.committed.Store(newOffset)
	s.last.Store(newLast)
	return nil
}

// zeroFrom clears up to truncateZeroBound bytes starting at offset so that
// a forward scan stops there.
func (s *segment) zeroFrom(offset int64) error {
	zeroLen := int64(s.maxSize) - offset
	if zeroLen > truncateZeroBound {
		zeroLen = truncateZeroBound
	}
	if zeroLen <= 0 {
		return nil
	}
	if _, err := s.file.WriteAt(make([]byte, zeroLen), offset); err != nil {
		return fmt.Errorf("zero tail of %s at %d: %w", s.path, offset, err)
	}
	return nil
}

// flush forces all appended frames to durable storage.
func (s *segment) flush() error {
	if err := disk.Flush(s.file); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

func (s *segment) close() error {
	return s.file.Close()
}
