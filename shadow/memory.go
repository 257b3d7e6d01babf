package shadow

import (
	"github.com/cockroachdb/errors"

	"github.com/heapguard/heapguard/block"
	"github.com/heapguard/heapguard/memutil"
)

// Memory is the parallel metadata region for one tracked heap extent, one
// shadow byte per Ratio heap bytes. The scan engine only reads it; the
// marking methods are the surface the instrumentation layer uses when it
// creates, frees, and recycles blocks.
type Memory struct {
	bytes    []Byte
	heapSize int
}

// NewMemory creates shadow memory describing a heap extent of heapSize bytes,
// with every unit initially unaddressable.
func NewMemory(heapSize int) (*Memory, error) {
	memutil.DebugCheckPow2(uint(Ratio), "shadow.Ratio")

	if heapSize <= 0 {
		return nil, errors.Newf("heap size %d must be positive", heapSize)
	}

	mem := &Memory{
		bytes:    make([]Byte, memutil.DivideRoundUp(heapSize, Ratio)),
		heapSize: heapSize,
	}
	for i := range mem.bytes {
		mem.bytes[i] = Unaddressable
	}
	return mem, nil
}

// HeapSize returns the size in bytes of the heap extent this shadow describes.
func (m *Memory) HeapSize() int {
	return m.heapSize
}

// ShadowSize returns the number of shadow bytes backing this extent.
func (m *Memory) ShadowSize() int {
	return len(m.bytes)
}

// At returns the shadow byte at the given shadow index.
func (m *Memory) At(shadowIndex int) Byte {
	return m.bytes[shadowIndex]
}

// StateAt returns the shadow byte describing the given heap offset.
func (m *Memory) StateAt(heapOffset int) Byte {
	return m.bytes[HeapToShadow(heapOffset)]
}

// MarkBlockStart records a block-start marker for a header at headerOffset.
// The marker carries the header's sub-unit offset so the walker can recover
// the exact header address. Transitioning a block to quarantine rewrites the
// same marker with block.StateQuarantined.
func (m *Memory) MarkBlockStart(headerOffset int, state block.State) error {
	if headerOffset < 0 || headerOffset >= m.heapSize {
		return errors.Newf("header offset %d is outside the tracked extent of %d bytes", headerOffset, m.heapSize)
	}

	m.bytes[HeapToShadow(headerOffset)] = BlockStartMarker(state, headerOffset&(Ratio-1))
	return nil
}

// MarkLeftRedzone paints the units overlapping [begin, end) as header padding.
func (m *Memory) MarkLeftRedzone(begin, end int) error {
	return m.markRange(begin, end, LeftRedzone)
}

// MarkRightRedzone paints the units overlapping [begin, end) as trailing
// redzone.
func (m *Memory) MarkRightRedzone(begin, end int) error {
	return m.markRange(begin, end, RightRedzone)
}

// MarkAllocated paints the units overlapping [begin, end) as live block body.
func (m *Memory) MarkAllocated(begin, end int) error {
	return m.markRange(begin, end, Addressable)
}

// MarkQuarantined paints the units overlapping [begin, end) as quarantined
// block body.
func (m *Memory) MarkQuarantined(begin, end int) error {
	return m.markRange(begin, end, Quarantined)
}

// Clear returns the units overlapping [begin, end) to the unaddressable
// state, as when a quarantined block is recycled.
func (m *Memory) Clear(begin, end int) error {
	return m.markRange(begin, end, Unaddressable)
}

func (m *Memory) markRange(begin, end int, value Byte) error {
	if begin < 0 || end < begin || end > m.heapSize {
		return errors.Newf("range [%d, %d) is not contained in the tracked extent of %d bytes", begin, end, m.heapSize)
	}

	firstIndex := HeapToShadow(memutil.AlignDown(begin, Ratio))
	lastIndex := HeapToShadow(memutil.AlignUp(end, Ratio))
	for i := firstIndex; i < lastIndex; i++ {
		m.bytes[i] = value
	}
	return nil
}

// Validate performs internal consistency checks on the shadow encoding. When
// the instrumentation layer is functioning correctly it should not be
// possible for this method to return an error, but it may assist in
// diagnosing marking bugs. It pairs with memutil.DebugValidate.
func (m *Memory) Validate() error {
	for i, b := range m.bytes {
		if !b.IsBlockStart() {
			continue
		}

		headerOffset := ShadowToHeap(i) + b.HeaderOffset()
		if headerOffset+block.HeaderSize > m.heapSize {
			return errors.Newf(
				"block-start marker at shadow index %d recovers header offset %d, which does not fit in the tracked extent of %d bytes",
				i, headerOffset, m.heapSize)
		}
	}
	return nil
}
