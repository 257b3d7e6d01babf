package block_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heapguard/heapguard/block"
)

func buildBlock(t *testing.T, bodySize int) ([]byte, block.Info) {
	arena := make([]byte, block.HeaderSize+bodySize+16)

	err := block.WriteHeader(arena, 0, block.Header{
		Magic:       block.HeaderMagic,
		BodySize:    bodySize,
		TrailerSize: 16,
		State:       block.StateQuarantined,
	})
	require.NoError(t, err)

	info, err := block.InfoFromHeader(arena, 0, len(arena))
	require.NoError(t, err)

	rand.New(rand.NewSource(1)).Read(arena[info.BodyOffset:info.TrailerOffset])
	block.SetChecksum(arena, info)

	return arena, info
}

func TestValidateIntactBlock(t *testing.T) {
	arena, info := buildBlock(t, 100)
	require.True(t, block.Validate(arena, info))
}

func TestValidateDetectsBodyFlip(t *testing.T) {
	arena, info := buildBlock(t, 100)

	for _, offset := range []int{0, 1, 50, 99} {
		original := arena[info.BodyOffset+offset]
		arena[info.BodyOffset+offset] ^= 0x01
		require.False(t, block.Validate(arena, info), "flip at body offset %d went undetected", offset)

		arena[info.BodyOffset+offset] = original
		require.True(t, block.Validate(arena, info))
	}
}

func TestValidateDetectsMagicInversion(t *testing.T) {
	arena, info := buildBlock(t, 100)

	header, err := block.ReadHeader(arena, info.HeaderOffset)
	require.NoError(t, err)

	header.Magic = ^header.Magic
	require.NoError(t, block.WriteHeader(arena, info.HeaderOffset, header))
	require.False(t, block.Validate(arena, info))

	header.Magic = ^header.Magic
	require.NoError(t, block.WriteHeader(arena, info.HeaderOffset, header))
	require.True(t, block.Validate(arena, info))
}

func TestChecksumCoversStateField(t *testing.T) {
	arena, info := buildBlock(t, 32)

	header, err := block.ReadHeader(arena, info.HeaderOffset)
	require.NoError(t, err)

	// The state transition rewrites the header, so a stale checksum must be
	// caught until the allocator refreshes it.
	header.State = block.StateAllocated
	require.NoError(t, block.WriteHeader(arena, info.HeaderOffset, header))
	require.False(t, block.Validate(arena, info))

	block.SetChecksum(arena, info)
	require.True(t, block.Validate(arena, info))
}

func TestChecksumExcludesStoredField(t *testing.T) {
	arena, info := buildBlock(t, 32)

	before := block.ComputeChecksum(arena, info)
	block.StoreChecksum(arena, info.HeaderOffset, ^before)
	require.Equal(t, before, block.ComputeChecksum(arena, info))
	require.False(t, block.Validate(arena, info))

	block.StoreChecksum(arena, info.HeaderOffset, before)
	require.True(t, block.Validate(arena, info))
}
