package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/downfa11-org/go-journal/pkg/config"
	"github.com/downfa11-org/go-journal/pkg/disk"
	"github.com/downfa11-org/go-journal/util"
	"golang.org/x/exp/mmap"
)

// segmentsManager owns the segment files of one journal directory. The
// ordered segment list is swapped wholesale on every mutation, so readers
// traverse a consistent snapshot while the writer rolls. Mutations rely on
// the journal's single-writer and write-lock discipline.
type segmentsManager struct {
	name        string
	directory   string
	maxSize     uint32
	preallocate bool
	lastWritten uint64 // recovery hint, 0 = none
	index       *sparseIndex

	list atomic.Pointer[[]*segment]
}

func newSegmentsManager(cfg *config.Config, index *sparseIndex) *segmentsManager {
	return &segmentsManager{
		name:        cfg.Name,
		directory:   cfg.Directory,
		maxSize:     cfg.MaxSegmentSize,
		preallocate: cfg.PreallocateSegmentFiles,
		lastWritten: cfg.LastWrittenIndex,
		index:       index,
	}
}

func (m *segmentsManager) segments() []*segment {
	if p := m.list.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *segmentsManager) store(segs []*segment) {
	m.list.Store(&segs)
}

func (m *segmentsManager) segmentPath(id uint64) string {
	return filepath.Join(m.directory, fmt.Sprintf("%s-%020d.log", m.name, id))
}

// open discovers and loads all segment files, trimming partial tails, and
// creates segment 1 when the directory holds none.
func (m *segmentsManager) open() error {
	paths, err := filepath.Glob(filepath.Join(m.directory, m.name+"-*.log"))
	if err != nil {
		return fmt.Errorf("scan journal directory %s: %w", m.directory, err)
	}
	sort.Strings(paths)

	var segs []*segment
	for _, path := range paths {
		expectedFirst := uint64(1)
		expectedAfter := uint64(0)
		if n := len(segs); n > 0 {
			expectedFirst = segs[n-1].lastIndex() + 1
			expectedAfter = segs[n-1].id
		}

		seg, err := m.loadSegment(path)
		if err != nil {
			return err
		}
		if seg == nil {
			util.Warn("Deleting segment %s: incomplete or unreadable descriptor", path)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove partial segment %s: %w", path, err)
			}
			continue
		}
		if seg.id <= expectedAfter {
			seg.close()
			return fmt.Errorf("journal: segment %s has non-monotonic id %d", path, seg.id)
		}
		if seg.firstIndex != expectedFirst {
			if seg.isEmpty() {
				// Leftover from a roll that never got its first append.
				util.Warn("Deleting segment %s: first index %d does not follow %d", path, seg.firstIndex, expectedFirst)
				seg.close()
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove partial segment %s: %w", path, err)
				}
				continue
			}
			seg.close()
			return fmt.Errorf("journal: segment %s starts at index %d, expected %d", path, seg.firstIndex, expectedFirst)
		}
		segs = append(segs, seg)
	}

	// A trailing frameless segment means the process died between
	// creating it and the first append. The prior segment, empty or not,
	// becomes the writable tail again.
	if n := len(segs); n > 1 && segs[n-1].isEmpty() {
		tail := segs[n-1]
		util.Info("Deleting empty trailing segment %s", tail.path)
		tail.close()
		if err := os.Remove(tail.path); err != nil {
			return fmt.Errorf("remove empty segment %s: %w", tail.path, err)
		}
		segs = segs[:n-1]
	}

	if len(segs) == 0 {
		seg, err := m.create(1, 1)
		if err != nil {
			return err
		}
		segs = []*segment{seg}
	}

	m.store(segs)
	return nil
}

// loadSegment opens one segment file, scans it to rebuild its in-memory
// state and the sparse index, and trims any partially written tail. A nil
// segment (without error) marks a file the caller should delete.
func (m *segmentsManager) loadSegment(path string) (*segment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if info.Size() < descriptorSize {
		return nil, nil
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}

	var head [descriptorSize]byte
	if _, err := file.ReadAt(head[:], 0); err != nil {
		file.Close()
		return nil, nil
	}
	desc, err := decodeDescriptor(head[:])
	if err != nil || desc.maxSize == 0 || desc.firstIndex == 0 {
		file.Close()
		return nil, nil
	}

	disk.AdviseSequential(file)
	seg := newSegment(file, path, desc)

	limit := int64(desc.maxSize)
	if info.Size() < limit {
		limit = info.Size()
	}

	// Sealed data is scanned through a read-only memory map; the file
	// handle stays for writes.
	var reader io.ReaderAt = file
	mapped, err := mmap.Open(path)
	if err == nil {
		defer mapped.Close()
		reader = mapped
	}

	offset := int64(descriptorSize)
	for {
		record, n, err := readFrameAt(reader, limit, offset)
		if errors.Is(err, errEndOfData) {
			break
		}
		if err != nil {
			util.Warn("Trimming segment %s at offset %d: %v", path, offset, err)
			break
		}
		if m.lastWritten > 0 && record.Index > m.lastWritten {
			util.Info("Dropping uncommitted record %d from %s", record.Index, path)
			break
		}
		m.index.maybePut(record, seg.id, offset, seg.firstIndex)
		seg.last.Store(record.Index)
		offset += n
	}
	seg.committed.Store(offset)

	if err := seg.zeroFrom(offset); err != nil {
		seg.close()
		return nil, err
	}
	return seg, nil
}

// create allocates a fresh segment file with a durable descriptor.
func (m *segmentsManager) create(id, firstIndex uint64) (*segment, error) {
	path := m.segmentPath(id)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}

	if m.preallocate {
		if err := disk.Preallocate(file, int64(m.maxSize)); err != nil {
			file.Close()
			os.Remove(path)
			return nil, fmt.Errorf("preallocate segment %s: %w", path, err)
		}
	}

	desc := segmentDescriptor{segmentID: id, firstIndex: firstIndex, maxSize: m.maxSize}
	head := desc.encode()
	if _, err := file.WriteAt(head[:], 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write descriptor of %s: %w", path, err)
	}
	if err := disk.Flush(file); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("flush descriptor of %s: %w", path, err)
	}

	return newSegment(file, path, desc), nil
}

// createNext rolls: allocates the successor of the current tail segment
// and appends it to the list.
func (m *segmentsManager) createNext(firstIndex uint64) (*segment, error) {
	segs := m.segments()
	id := uint64(1)
	if n := len(segs); n > 0 {
		id = segs[n-1].id + 1
	}

	seg, err := m.create(id, firstIndex)
	if err != nil {
		return nil, err
	}

	next := make([]*segment, len(segs)+1)
	copy(next, segs)
	next[len(segs)] = seg
	m.store(next)
	return seg, nil
}

func (m *segmentsManager) firstSegment() *segment {
	segs := m.segments()
	if len(segs) == 0 {
		return nil
	}
	return segs[0]
}

func (m *segmentsManager) lastSegment() *segment {
	segs := m.segments()
	if len(segs) == 0 {
		return nil
	}
	return segs[len(segs)-1]
}

func (m *segmentsManager) count() int {
	return len(m.segments())
}

// getSegment returns the segment whose index range contains index, or the
// tail segment when index lies past the end.
func (m *segmentsManager) getSegment(index uint64) *segment {
	segs := m.segments()
	if len(segs) == 0 {
		return nil
	}
	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].firstIndex > index
	})
	if i == 0 {
		return segs[0]
	}
	return segs[i-1]
}

// getNextSegment returns the segment following the one with the given id.
func (m *segmentsManager) getNextSegment(id uint64) *segment {
	segs := m.segments()
	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].id > id
	})
	if i == len(segs) {
		return nil
	}
	return segs[i]
}

// removeSegmentsAfter deletes every segment following target.
func (m *segmentsManager) removeSegmentsAfter(target *segment) error {
	segs := m.segments()
	keep := 0
	for i, seg := range segs {
		if seg == target {
			keep = i + 1
			break
		}
	}
	if keep == 0 || keep == len(segs) {
		return nil
	}

	dropped := segs[keep:]
	m.store(append([]*segment(nil), segs[:keep]...))

	for _, seg := range dropped {
		seg.close()
		if err := os.Remove(seg.path); err != nil {
			return fmt.Errorf("remove segment %s: %w", seg.path, err)
		}
	}
	return nil
}

// deleteUntil removes every segment whose last index is below index. The
// current (writable) segment is never deleted.
func (m *segmentsManager) deleteUntil(index uint64) error {
	segs := m.segments()
	keepFrom := 0
	for i, seg := range segs {
		if i == len(segs)-1 || seg.lastIndex() >= index {
			keepFrom = i
			break
		}
	}
	if keepFrom == 0 {
		return nil
	}

	dropped := segs[:keepFrom]
	m.store(append([]*segment(nil), segs[keepFrom:]...))

	for _, seg := range dropped {
		seg.close()
		if err := os.Remove(seg.path); err != nil {
			return fmt.Errorf("remove segment %s: %w", seg.path, err)
		}
	}
	return nil
}

// resetSegments deletes all segments and creates a fresh segment 1
// starting at firstIndex.
func (m *segmentsManager) resetSegments(firstIndex uint64) (*segment, error) {
	for _, seg := range m.segments() {
		seg.close()
		if err := os.Remove(seg.path); err != nil {
			return nil, fmt.Errorf("remove segment %s: %w", seg.path, err)
		}
	}

	seg, err := m.create(1, firstIndex)
	if err != nil {
		return nil, err
	}
	m.store([]*segment{seg})
	return seg, nil
}

func (m *segmentsManager) close() {
	for _, seg := range m.segments() {
		if err := seg.close(); err != nil {
			util.Error("close segment %s: %v", seg.path, err)
		}
	}
}
