package block

import (
	"github.com/cockroachdb/errors"
)

// Info is a read-only view of one block's geometry within the arena: the
// header record, the body the program was handed, and the trailing redzone.
// It is derived from the shadow encoding and the header's own size fields and
// is rebuilt on every walk, never cached across scans.
type Info struct {
	HeaderOffset  int
	HeaderSize    int
	BodyOffset    int
	BodySize      int
	TrailerOffset int
	TrailerSize   int

	// State is the block's lifecycle stage as recorded in shadow memory,
	// which stays trustworthy when the header itself has been stomped.
	State State
}

// EndOffset returns the offset one past the block's trailing redzone.
func (i *Info) EndOffset() int {
	return i.TrailerOffset + i.TrailerSize
}

// BlockSize returns the full extent of the block in bytes, header and
// redzone included.
func (i *Info) BlockSize() int {
	return i.EndOffset() - i.HeaderOffset
}

// InfoFromHeader builds the geometry view for the block whose header sits at
// headerOffset, using the header's size fields. limit is the exclusive upper
// bound of the walked range; a header whose recorded sizes would place any
// part of the block at or past limit is rejected, since size fields read from
// untrusted memory may be garbage.
func InfoFromHeader(arena []byte, headerOffset int, limit int) (Info, error) {
	if limit > len(arena) {
		limit = len(arena)
	}
	if headerOffset < 0 || headerOffset+HeaderSize > limit {
		return Info{}, errors.Newf("header at offset %d does not fit below limit %d", headerOffset, limit)
	}

	header, err := ReadHeader(arena, headerOffset)
	if err != nil {
		return Info{}, err
	}

	// The size fields come from untrusted memory. Bound the body before any
	// offset arithmetic: a stomped field decoded on a 32-bit int could wrap
	// negative and slip past the end-of-block check below.
	if header.BodySize < 0 || header.BodySize > limit-(headerOffset+HeaderSize) {
		return Info{}, errors.Newf(
			"block at offset %d claims a %d-byte body, which extends past limit %d",
			headerOffset, header.BodySize, limit)
	}

	info := Info{
		HeaderOffset:  headerOffset,
		HeaderSize:    HeaderSize,
		BodyOffset:    headerOffset + HeaderSize,
		BodySize:      header.BodySize,
		TrailerOffset: headerOffset + HeaderSize + header.BodySize,
		TrailerSize:   header.TrailerSize,
	}
	if info.EndOffset() > limit {
		return Info{}, errors.Newf(
			"block at offset %d claims %d bytes, which extends past limit %d",
			headerOffset, info.BlockSize(), limit)
	}

	return info, nil
}
