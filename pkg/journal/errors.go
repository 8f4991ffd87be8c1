package journal

import "errors"

var (
	// ErrOutOfDiskSpace is returned when the disk-space policy refuses to
	// allocate a new segment. Retryable once space is reclaimed.
	ErrOutOfDiskSpace = errors.New("journal: not enough disk space to allocate a new segment")

	// ErrCorruptedRecord is returned when a frame fails checksum
	// verification.
	ErrCorruptedRecord = errors.New("journal: record failed checksum verification")

	// ErrInvalidIndex is returned when a record append is attempted with a
	// non-contiguous index.
	ErrInvalidIndex = errors.New("journal: record index is not contiguous")

	// ErrOutOfRange is returned when seeking below the first or past the
	// last position of the journal.
	ErrOutOfRange = errors.New("journal: index out of range")

	// ErrClosed is returned by any operation on a closed journal.
	ErrClosed = errors.New("journal: closed")

	// ErrNoSuchIndex is returned by a reader whose cursor points past the
	// journal tail after a truncation, before the facade rewinds it.
	ErrNoSuchIndex = errors.New("journal: no record at reader position")

	// ErrRecordTooLarge is returned when a single frame cannot fit into an
	// empty segment.
	ErrRecordTooLarge = errors.New("journal: record exceeds maximum segment size")

	// ErrEmptyPayload is returned when appending a zero-length payload.
	ErrEmptyPayload = errors.New("journal: payload must not be empty")

	// errSegmentFull signals that the current segment cannot hold the next
	// frame and the writer must roll.
	errSegmentFull = errors.New("journal: segment full")

	// errEndOfData marks the physical end of valid frames in a segment.
	errEndOfData = errors.New("journal: end of segment data")
)
