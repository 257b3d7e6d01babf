package block

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// HeaderMagic is the sentinel value stored at the start of every instrumented
// block. A header whose magic field does not match is considered corrupt
// without consulting the checksum.
const HeaderMagic uint32 = 0x03ca80e7

// HeaderSize is the encoded size in bytes of a block header. It is a multiple
// of the shadow ratio so block bodies begin on a shadow-unit boundary when the
// header itself does.
const HeaderSize = 16

// Encoded header layout, little-endian:
//
//	[0:4]   magic
//	[4:8]   checksum
//	[8:12]  body size
//	[12:14] trailer size
//	[14]    state
//	[15]    reserved
const (
	offMagic       = 0
	offChecksum    = 4
	offBodySize    = 8
	offTrailerSize = 12
	offState       = 14
)

type State uint8

const (
	// StateAllocated marks a block that is live and still being mutated by the
	// program. Allocated blocks are not subject to corruption scanning.
	StateAllocated State = iota
	// StateQuarantined marks a freed block held back from reuse so its
	// contents can still be validated.
	StateQuarantined
)

var stateMapping = map[State]string{
	StateAllocated:   "StateAllocated",
	StateQuarantined: "StateQuarantined",
}

func (s State) String() string {
	return stateMapping[s]
}

// Header is the decoded form of the metadata record embedded at the start of
// every instrumented block. It is written by the allocator when the block is
// created, and rewritten (with a fresh checksum) when the block transitions
// to quarantine.
type Header struct {
	Magic       uint32
	Checksum    uint32
	BodySize    int
	TrailerSize int
	State       State
}

// ReadHeader decodes the header stored at offset within the arena. It returns
// an error only when the header record does not fit in the arena; it does not
// judge the decoded contents, since reading suspect headers is the point.
func ReadHeader(arena []byte, offset int) (Header, error) {
	if offset < 0 || offset+HeaderSize > len(arena) {
		return Header{}, errors.Newf("header at offset %d does not fit in an arena of %d bytes", offset, len(arena))
	}

	raw := arena[offset : offset+HeaderSize]
	return Header{
		Magic:       binary.LittleEndian.Uint32(raw[offMagic:]),
		Checksum:    binary.LittleEndian.Uint32(raw[offChecksum:]),
		BodySize:    int(binary.LittleEndian.Uint32(raw[offBodySize:])),
		TrailerSize: int(binary.LittleEndian.Uint16(raw[offTrailerSize:])),
		State:       State(raw[offState]),
	}, nil
}

// WriteHeader encodes the header at offset within the arena.
func WriteHeader(arena []byte, offset int, header Header) error {
	if offset < 0 || offset+HeaderSize > len(arena) {
		return errors.Newf("header at offset %d does not fit in an arena of %d bytes", offset, len(arena))
	}
	if header.BodySize < 0 || header.BodySize > maxBodySize {
		return errors.Newf("body size %d is outside the encodable range", header.BodySize)
	}
	if header.TrailerSize < 0 || header.TrailerSize > maxTrailerSize {
		return errors.Newf("trailer size %d is outside the encodable range", header.TrailerSize)
	}

	raw := arena[offset : offset+HeaderSize]
	binary.LittleEndian.PutUint32(raw[offMagic:], header.Magic)
	binary.LittleEndian.PutUint32(raw[offChecksum:], header.Checksum)
	binary.LittleEndian.PutUint32(raw[offBodySize:], uint32(header.BodySize))
	binary.LittleEndian.PutUint16(raw[offTrailerSize:], uint16(header.TrailerSize))
	raw[offState] = uint8(header.State)
	raw[offState+1] = 0
	return nil
}

// StoreChecksum overwrites only the checksum field of the header at
// headerOffset, leaving the rest of the record untouched.
func StoreChecksum(arena []byte, headerOffset int, checksum uint32) {
	binary.LittleEndian.PutUint32(arena[headerOffset+offChecksum:], checksum)
}

const (
	maxBodySize    = 1<<32 - 1
	maxTrailerSize = 1<<16 - 1
)
