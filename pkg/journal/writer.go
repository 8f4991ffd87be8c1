package journal

import (
	"errors"
	"fmt"

	"github.com/downfa11-org/go-journal/pkg/disk"
	"github.com/downfa11-org/go-journal/pkg/types"
)

// segmentBufferFactor reserves room for the new segment, the still-open
// current segment, and allocation overhead during a roll.
const segmentBufferFactor = 3

// writer performs all journal mutations. Single-writer discipline: the
// caller must not run append or flush concurrently with DeleteAfter,
// DeleteUntil or Reset; the facade takes its write lock for the latter.
type writer struct {
	journal *Journal
}

// append encodes one frame into the current segment, rolling to a new
// segment when the frame does not fit.
func (w *writer) append(index uint64, asqn int64, payload []byte) (types.Record, error) {
	j := w.journal
	seg := j.segments.lastSegment()

	if frameLength(payload) > int(j.cfg.MaxSegmentSize)-descriptorSize {
		return types.Record{}, fmt.Errorf("%w: %d payload bytes", ErrRecordTooLarge, len(payload))
	}

	record, position, err := seg.append(index, asqn, payload)
	if errors.Is(err, errSegmentFull) {
		seg, err = w.roll(seg, index)
		if err != nil {
			return types.Record{}, err
		}
		record, position, err = seg.append(index, asqn, payload)
		if errors.Is(err, errSegmentFull) {
			return types.Record{}, fmt.Errorf("%w: %d payload bytes", ErrRecordTooLarge, len(payload))
		}
	}
	if err != nil {
		return types.Record{}, err
	}

	j.index.maybePut(record, seg.id, position, seg.firstIndex)
	j.lastIdx.Store(index)
	return record, nil
}

// roll seals the current segment and creates its successor. The sealed
// segment is flushed so the roll is the durability boundary between
// segments.
func (w *writer) roll(current *segment, firstIndex uint64) (*segment, error) {
	j := w.journal
	start := j.clock.Now()

	if err := w.assertDiskSpace(); err != nil {
		return nil, err
	}
	if err := current.flush(); err != nil {
		return nil, err
	}

	seg, err := j.segments.createNext(firstIndex)
	if err != nil {
		return nil, err
	}

	j.metrics.ObserveSegmentRoll(j.clock.Now().Sub(start))
	j.metrics.SetSegmentCount(j.segments.count())
	return seg, nil
}

// assertDiskSpace enforces the disk-space policy before any new segment
// is allocated.
func (w *writer) assertDiskSpace() error {
	j := w.journal
	usable, err := disk.UsableSpace(j.cfg.Directory)
	if err != nil {
		return fmt.Errorf("probe usable space of %s: %w", j.cfg.Directory, err)
	}
	required := uint64(j.cfg.MaxSegmentSize) * segmentBufferFactor
	if j.cfg.MinFreeDiskSpace > required {
		required = j.cfg.MinFreeDiskSpace
	}
	if usable < required {
		return fmt.Errorf("%w: %d usable, %d required", ErrOutOfDiskSpace, usable, required)
	}
	return nil
}

// deleteAfter truncates every record with an index greater than
// indexExclusive. Called under the journal's write lock.
func (w *writer) deleteAfter(indexExclusive uint64) error {
	j := w.journal
	j.index.deleteAfter(indexExclusive)

	target := j.segments.getSegment(indexExclusive)
	if target == nil {
		return nil
	}
	if err := j.segments.removeSegmentsAfter(target); err != nil {
		return err
	}
	if err := target.truncateTo(indexExclusive); err != nil {
		return err
	}
	if err := target.flush(); err != nil {
		return err
	}

	j.lastIdx.Store(target.lastIndex())
	return nil
}

// reset clears the journal so that the next appended record gets
// nextIndex.
func (w *writer) reset(nextIndex uint64) error {
	j := w.journal
	j.index.clear()

	if _, err := j.segments.resetSegments(nextIndex); err != nil {
		return err
	}
	j.lastIdx.Store(nextIndex - 1)
	return nil
}

// flush forces durability of every append that returned so far.
func (w *writer) flush() error {
	return w.journal.segments.lastSegment().flush()
}
