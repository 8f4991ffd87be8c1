package types

// ASQNIgnore is the application sequence number of records appended
// without one.
const ASQNIgnore int64 = -1

// Record is a single journal entry as it exists on disk.
type Record struct {
	// Index assigned by the journal, strictly increasing by one.
	Index uint64
	// ASQN is the caller-supplied application sequence number, or
	// ASQNIgnore.
	ASQN int64
	// Payload is the opaque record data, never empty.
	Payload []byte
	// Checksum covers index, asqn, frame length and payload.
	Checksum uint32
}

// IndexEntry maps a record index to its physical location.
type IndexEntry struct {
	Index     uint64
	SegmentID uint64
	Position  int64
}
