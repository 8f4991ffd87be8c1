package journal

import (
	"sort"

	"github.com/downfa11-org/go-journal/pkg/types"
)

// sparseIndex maps selected record indexes to their physical positions.
// Entries are added at a configured stride plus one per segment start, so
// any lookup lands at most one stride of frames before the target. Purely
// in-memory: rebuilt from segment scans on open.
type sparseIndex struct {
	stride  uint64
	entries []types.IndexEntry
}

func newSparseIndex(stride uint64) *sparseIndex {
	if stride == 0 {
		stride = 1
	}
	return &sparseIndex{stride: stride}
}

// maybePut stores the position if the record index falls on the stride or
// starts a segment.
func (x *sparseIndex) maybePut(record types.Record, segmentID uint64, position int64, segmentFirst uint64) {
	if record.Index%x.stride == 0 || record.Index == segmentFirst {
		x.put(record.Index, segmentID, position)
	}
}

func (x *sparseIndex) put(index, segmentID uint64, position int64) {
	if n := len(x.entries); n > 0 {
		if x.entries[n-1].Index == index {
			x.entries[n-1] = types.IndexEntry{Index: index, SegmentID: segmentID, Position: position}
			return
		}
		if x.entries[n-1].Index > index {
			// Stale entry from before a truncation; the writer deletes
			// those first, so this only guards against misuse.
			return
		}
	}
	x.entries = append(x.entries, types.IndexEntry{Index: index, SegmentID: segmentID, Position: position})
}

// floorEntry returns the entry with the largest stored index <= index.
func (x *sparseIndex) floorEntry(index uint64) (types.IndexEntry, bool) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Index > index
	})
	if i == 0 {
		return types.IndexEntry{}, false
	}
	return x.entries[i-1], true
}

// deleteAfter removes every entry with an index strictly greater than
// index.
func (x *sparseIndex) deleteAfter(index uint64) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Index > index
	})
	x.entries = x.entries[:i]
}

// deleteUntil removes every entry with an index strictly below index.
func (x *sparseIndex) deleteUntil(index uint64) {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Index >= index
	})
	x.entries = x.entries[i:]
}

func (x *sparseIndex) clear() {
	x.entries = x.entries[:0]
}
