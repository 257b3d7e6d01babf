package block

import (
	"github.com/cespare/xxhash/v2"
)

// ComputeChecksum digests the block's header and body, skipping the stored
// checksum field so the digest can be compared against it. A single-bit
// change anywhere in the covered bytes changes the result with overwhelming
// probability, which is the only property the corruption scan relies on.
func ComputeChecksum(arena []byte, info Info) uint32 {
	digest := xxhash.New()
	_, _ = digest.Write(arena[info.HeaderOffset : info.HeaderOffset+offChecksum])
	_, _ = digest.Write(arena[info.HeaderOffset+offChecksum+4 : info.HeaderOffset+HeaderSize])
	_, _ = digest.Write(arena[info.BodyOffset : info.BodyOffset+info.BodySize])

	sum := digest.Sum64()
	// Fold to the 32-bit stored field without discarding the high half.
	return uint32(sum) ^ uint32(sum>>32)
}

// SetChecksum recomputes the block's content checksum and stores it in the
// header. The allocator calls this when a block is created and again when it
// transitions to quarantine, since the state field is covered by the digest.
func SetChecksum(arena []byte, info Info) {
	StoreChecksum(arena, info.HeaderOffset, ComputeChecksum(arena, info))
}

// Validate reports whether the block's integrity metadata is intact: the
// magic sentinel must match and the recomputed content checksum must equal
// the stored one. It reads but never writes the arena. Callers that need to
// know which of the two checks failed must perform them separately.
func Validate(arena []byte, info Info) bool {
	header, err := ReadHeader(arena, info.HeaderOffset)
	if err != nil {
		return false
	}
	if header.Magic != HeaderMagic {
		return false
	}
	return header.Checksum == ComputeChecksum(arena, info)
}
