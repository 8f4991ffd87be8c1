package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/downfa11-org/go-journal/pkg/types"
)

// Frame layout, little-endian:
//
//	[ length:i32 | index:i64 | asqn:i64 | checksum:u32 | payload ]
//
// length covers the entire frame including itself. A zero length marks the
// physical end of valid frames in a segment.
const (
	frameLengthSize   = 4
	frameHeaderSize   = frameLengthSize + 8 + 8 + 4
	frameIndexOffset  = 4
	frameASQNOffset   = 12
	frameCRCOffset    = 20
	framePayloadStart = frameHeaderSize
)

// Checksums use CRC32-C (Castagnoli) over index || asqn || length || payload.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

func frameLength(payload []byte) int {
	return frameHeaderSize + len(payload)
}

func checksum(index uint64, asqn int64, length uint32, payload []byte) uint32 {
	var head [20]byte
	binary.LittleEndian.PutUint64(head[0:], index)
	binary.LittleEndian.PutUint64(head[8:], uint64(asqn))
	binary.LittleEndian.PutUint32(head[16:], length)
	crc := crc32.Update(0, crcTable, head[:])
	return crc32.Update(crc, crcTable, payload)
}

// encodeFrame writes one frame into buf and returns the record view. buf
// must hold at least frameLength(payload) bytes.
func encodeFrame(buf []byte, index uint64, asqn int64, payload []byte) (types.Record, error) {
	length := frameLength(payload)
	if len(buf) < length {
		return types.Record{}, fmt.Errorf("journal: frame of %d bytes exceeds buffer of %d bytes", length, len(buf))
	}

	binary.LittleEndian.PutUint32(buf[0:], uint32(length))
	binary.LittleEndian.PutUint64(buf[frameIndexOffset:], index)
	binary.LittleEndian.PutUint64(buf[frameASQNOffset:], uint64(asqn))
	crc := checksum(index, asqn, uint32(length), payload)
	binary.LittleEndian.PutUint32(buf[frameCRCOffset:], crc)
	copy(buf[framePayloadStart:], payload)

	return types.Record{
		Index:    index,
		ASQN:     asqn,
		Payload:  payload,
		Checksum: crc,
	}, nil
}

// readFrameAt decodes the frame starting at offset. Reads never cross
// limit; a zero length, a length running past limit, or a short read all
// report errEndOfData, which callers treat as the end of valid records.
// A checksum mismatch reports ErrCorruptedRecord.
func readFrameAt(r io.ReaderAt, limit int64, offset int64) (types.Record, int64, error) {
	if offset+frameLengthSize > limit {
		return types.Record{}, 0, errEndOfData
	}

	var head [frameHeaderSize]byte
	if _, err := r.ReadAt(head[:frameLengthSize], offset); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Record{}, 0, errEndOfData
		}
		return types.Record{}, 0, fmt.Errorf("journal: read frame length at %d: %w", offset, err)
	}

	length := int64(binary.LittleEndian.Uint32(head[:frameLengthSize]))
	if length == 0 {
		return types.Record{}, 0, errEndOfData
	}
	if length < frameHeaderSize+1 || offset+length > limit {
		// Either garbage or a frame that was being written when the
		// process died. Both end the valid region.
		return types.Record{}, 0, errEndOfData
	}

	if _, err := r.ReadAt(head[frameLengthSize:], offset+frameLengthSize); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Record{}, 0, errEndOfData
		}
		return types.Record{}, 0, fmt.Errorf("journal: read frame header at %d: %w", offset, err)
	}

	index := binary.LittleEndian.Uint64(head[frameIndexOffset:])
	asqn := int64(binary.LittleEndian.Uint64(head[frameASQNOffset:]))
	crc := binary.LittleEndian.Uint32(head[frameCRCOffset:])

	payload := make([]byte, length-frameHeaderSize)
	if _, err := r.ReadAt(payload, offset+framePayloadStart); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Record{}, 0, errEndOfData
		}
		return types.Record{}, 0, fmt.Errorf("journal: read frame payload at %d: %w", offset, err)
	}

	if checksum(index, asqn, uint32(length), payload) != crc {
		return types.Record{}, 0, fmt.Errorf("%w: index %d at offset %d", ErrCorruptedRecord, index, offset)
	}

	return types.Record{
		Index:    index,
		ASQN:     asqn,
		Payload:  payload,
		Checksum: crc,
	}, length, nil
}
