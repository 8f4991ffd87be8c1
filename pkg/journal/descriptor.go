package journal

import (
	"encoding/binary"
	"fmt"
)

// Segment files start with a fixed 64-byte descriptor:
//
//	 0  magic:u32   = 0x5A454542
//	 4  version:u16 = 1
//	 6  flags:u16   = 0
//	 8  segmentId:u64
//	16  firstIndex:u64
//	24  maxSize:u32
//	28  reserved[36]
const (
	descriptorSize    = 64
	descriptorMagic   = 0x5A454542
	descriptorVersion = 1
)

type segmentDescriptor struct {
	segmentID  uint64
	firstIndex uint64
	maxSize    uint32
}

func (d segmentDescriptor) encode() [descriptorSize]byte {
	var buf [descriptorSize]byte
	binary.LittleEndian.PutUint32(buf[0:], descriptorMagic)
	binary.LittleEndian.PutUint16(buf[4:], descriptorVersion)
	binary.LittleEndian.PutUint16(buf[6:], 0)
	binary.LittleEndian.PutUint64(buf[8:], d.segmentID)
	binary.LittleEndian.PutUint64(buf[16:], d.firstIndex)
	binary.LittleEndian.PutUint32(buf[24:], d.maxSize)
	return buf
}

func decodeDescriptor(buf []byte) (segmentDescriptor, error) {
	if len(buf) < descriptorSize {
		return segmentDescriptor{}, fmt.Errorf("journal: descriptor truncated at %d bytes", len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:]); magic != descriptorMagic {
		return segmentDescriptor{}, fmt.Errorf("journal: bad segment magic %#x", magic)
	}
	if version := binary.LittleEndian.Uint16(buf[4:]); version != descriptorVersion {
		return segmentDescriptor{}, fmt.Errorf("journal: unsupported segment version %d", version)
	}
	return segmentDescriptor{
		segmentID:  binary.LittleEndian.Uint64(buf[8:]),
		firstIndex: binary.LittleEndian.Uint64(buf[16:]),
		maxSize:    binary.LittleEndian.Uint32(buf[24:]),
	}, nil
}
