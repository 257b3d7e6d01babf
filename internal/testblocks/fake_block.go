// Package testblocks lays out instrumented blocks in plain byte arenas the
// way the external allocator would, so engine tests can exercise the walker
// and checker against realistic shadow state.
package testblocks

import (
	"github.com/cockroachdb/errors"

	"github.com/heapguard/heapguard/block"
	"github.com/heapguard/heapguard/memutil"
	"github.com/heapguard/heapguard/shadow"
)

// TrailerSize is the trailing redzone written after every fixture block.
const TrailerSize = 16

// FakeBlock is one instrumented block inside an arena, with its shadow marks
// and checksum maintained across state transitions the way the allocator
// maintains them.
type FakeBlock struct {
	Arena []byte
	Mem   *shadow.Memory
	Info  block.Info
}

// Allocate writes a block with a bodySize-byte body at headerOffset: header,
// body, trailing redzone, shadow marks, and a fresh content checksum. The
// block starts in the allocated state.
func Allocate(mem *shadow.Memory, arena []byte, headerOffset, bodySize int) (*FakeBlock, error) {
	header := block.Header{
		Magic:       block.HeaderMagic,
		BodySize:    bodySize,
		TrailerSize: TrailerSize,
		State:       block.StateAllocated,
	}

	info := block.Info{
		HeaderOffset:  headerOffset,
		HeaderSize:    block.HeaderSize,
		BodyOffset:    headerOffset + block.HeaderSize,
		BodySize:      bodySize,
		TrailerOffset: headerOffset + block.HeaderSize + bodySize,
		TrailerSize:   TrailerSize,
		State:         block.StateAllocated,
	}
	if info.EndOffset() > mem.HeapSize() || info.EndOffset() > len(arena) {
		return nil, errors.Newf("block at offset %d does not fit in the arena", headerOffset)
	}

	err := block.WriteHeader(arena, headerOffset, header)
	if err != nil {
		return nil, err
	}

	// Shadow paint order matters only for the unit a partial body shares with
	// the trailer; painting the body last leaves that unit marked as body.
	err = mem.MarkRightRedzone(info.TrailerOffset, info.EndOffset())
	if err != nil {
		return nil, err
	}
	if block.HeaderSize > shadow.Ratio {
		err = mem.MarkLeftRedzone(headerOffset+shadow.Ratio, headerOffset+block.HeaderSize)
		if err != nil {
			return nil, err
		}
	}
	err = mem.MarkAllocated(info.BodyOffset, info.TrailerOffset)
	if err != nil {
		return nil, err
	}
	err = mem.MarkBlockStart(headerOffset, block.StateAllocated)
	if err != nil {
		return nil, err
	}

	block.SetChecksum(arena, info)
	memutil.DebugValidate(mem)

	return &FakeBlock{
		Arena: arena,
		Mem:   mem,
		Info:  info,
	}, nil
}

// Quarantine transitions the block to the quarantined state: the header's
// state field is rewritten, the checksum is recomputed over the frozen
// contents, and the shadow marks flip to their quarantined flavors.
func (b *FakeBlock) Quarantine() error {
	header, err := block.ReadHeader(b.Arena, b.Info.HeaderOffset)
	if err != nil {
		return err
	}

	header.State = block.StateQuarantined
	err = block.WriteHeader(b.Arena, b.Info.HeaderOffset, header)
	if err != nil {
		return err
	}

	err = b.Mem.MarkQuarantined(b.Info.BodyOffset, b.Info.TrailerOffset)
	if err != nil {
		return err
	}
	err = b.Mem.MarkBlockStart(b.Info.HeaderOffset, block.StateQuarantined)
	if err != nil {
		return err
	}

	b.Info.State = block.StateQuarantined
	block.SetChecksum(b.Arena, b.Info)
	memutil.DebugValidate(b.Mem)
	return nil
}

// AllocateRun writes count back-to-back blocks of equal body size starting at
// offset 0, each block beginning where the previous one ended.
func AllocateRun(mem *shadow.Memory, arena []byte, count, bodySize int) ([]*FakeBlock, error) {
	blocks := make([]*FakeBlock, 0, count)

	offset := 0
	for i := 0; i < count; i++ {
		fakeBlock, err := Allocate(mem, arena, offset, bodySize)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, fakeBlock)
		offset = fakeBlock.Info.EndOffset()
	}
	return blocks, nil
}

// ArenaSizeFor returns an arena size large enough for count back-to-back
// blocks of the given body size, rounded up to a whole shadow unit.
func ArenaSizeFor(count, bodySize int) int {
	blockSize := block.HeaderSize + bodySize + TrailerSize
	return memutil.AlignUp(count*blockSize, shadow.Ratio)
}
