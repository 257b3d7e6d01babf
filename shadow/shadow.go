package shadow

import (
	"github.com/heapguard/heapguard/block"
)

// Each shadow byte describes Ratio bytes of tracked heap memory.
const (
	RatioLog = 3
	Ratio    = 1 << RatioLog
)

// A Byte is one unit of shadow memory. The block-start families reserve their
// low bits for the header's byte offset within the unit, so the header
// address is recovered exactly as unit*Ratio+offset even when blocks are not
// unit-aligned.
type Byte uint8

const (
	// Addressable marks a unit inside a live block's body.
	Addressable Byte = 0x00
	// Unaddressable marks memory outside any tracked block.
	Unaddressable Byte = 0xf0
	// LeftRedzone marks header padding units between a block's header and body.
	LeftRedzone Byte = 0xf8
	// RightRedzone marks units of a block's trailing redzone.
	RightRedzone Byte = 0xf9
	// Quarantined marks a unit inside a freed block's body while the block is
	// held in quarantine.
	Quarantined Byte = 0xfb

	blockStartAllocated   Byte = 0xe0
	blockStartQuarantined Byte = 0xd0
	blockStartFamilyMask  Byte = 0xf8
	headerOffsetMask      Byte = Ratio - 1
)

// IsBlockStart reports whether b is a block-start marker of either flavor.
func (b Byte) IsBlockStart() bool {
	family := b & blockStartFamilyMask
	return family == blockStartAllocated || family == blockStartQuarantined
}

// HeaderOffset returns the header's byte offset within the marked unit. Only
// meaningful when IsBlockStart is true.
func (b Byte) HeaderOffset() int {
	return int(b & headerOffsetMask)
}

// BlockState returns the lifecycle stage a block-start marker records. Only
// meaningful when IsBlockStart is true.
func (b Byte) BlockState() block.State {
	if b&blockStartFamilyMask == blockStartQuarantined {
		return block.StateQuarantined
	}
	return block.StateAllocated
}

// BlockStartMarker builds the block-start shadow byte for a header located
// headerOffset bytes into its unit.
func BlockStartMarker(state block.State, headerOffset int) Byte {
	marker := blockStartAllocated
	if state == block.StateQuarantined {
		marker = blockStartQuarantined
	}
	return marker | (Byte(headerOffset) & headerOffsetMask)
}

// HeapToShadow returns the index of the shadow byte describing the given heap
// offset. All address<->shadow arithmetic in the package funnels through
// these two helpers.
func HeapToShadow(heapOffset int) int {
	return heapOffset >> RatioLog
}

// ShadowToHeap returns the heap offset of the first byte described by the
// given shadow index.
func ShadowToHeap(shadowIndex int) int {
	return shadowIndex << RatioLog
}
