package shadow

import (
	"github.com/cockroachdb/errors"

	"github.com/heapguard/heapguard/block"
	"github.com/heapguard/heapguard/memutil"
)

// Walker is a one-shot forward iterator over the blocks whose start markers
// lie within a heap range [begin, end). It reconstructs each block's geometry
// from the shadow encoding plus the header's own size fields and yields the
// blocks in strictly increasing address order.
//
// A walker is used for exactly one pass: once Next returns false, every later
// call returns false too, and a fresh walker must be constructed to re-scan.
// Shadow memory may change between scans, so nothing reconstructed by one
// walker may be reused by another.
type Walker struct {
	mem   *Memory
	arena []byte

	begin int
	end   int

	cursor    int
	endIndex  int
	exhausted bool
}

// NewWalker creates a walker over the heap range [begin, end) of the tracked
// extent. The caller supplies heap bounds; the walker maps them to shadow
// indices internally.
func NewWalker(mem *Memory, arena []byte, begin, end int) (*Walker, error) {
	if mem == nil {
		return nil, errors.New("a walker requires shadow memory to walk")
	}
	if begin < 0 || end < begin || end > mem.HeapSize() {
		return nil, errors.Newf("range [%d, %d) is not contained in the tracked extent of %d bytes", begin, end, mem.HeapSize())
	}
	if len(arena) < end {
		return nil, errors.Newf("arena of %d bytes does not back the range [%d, %d)", len(arena), begin, end)
	}

	return &Walker{
		mem:   mem,
		arena: arena,

		begin: begin,
		end:   end,

		cursor:   HeapToShadow(begin),
		endIndex: HeapToShadow(memutil.AlignUp(end, Ratio)),
	}, nil
}

// Next fills info with the next block whose start marker lies in the
// remaining range and advances the cursor past that block's full extent. It
// returns false when no block-start marker remains before the end of the
// range, leaving info untouched; the walker is then exhausted.
//
// Shadow bytes near a corrupted block may themselves be inconsistent, so an
// encoding Next does not recognize, or a header whose size fields do not
// describe a block contained in the range, is skipped one unit at a time
// rather than aborting the walk.
func (w *Walker) Next(info *block.Info) bool {
	if w.exhausted {
		return false
	}

	for w.cursor < w.endIndex {
		marker := w.mem.At(w.cursor)
		if !marker.IsBlockStart() {
			w.cursor++
			continue
		}

		headerOffset := ShadowToHeap(w.cursor) + marker.HeaderOffset()
		if headerOffset < w.begin {
			w.cursor++
			continue
		}

		candidate, err := block.InfoFromHeader(w.arena, headerOffset, w.end)
		if err != nil {
			// Untrustworthy size fields; treat the unit as unrecognized.
			w.cursor++
			continue
		}
		candidate.State = marker.BlockState()

		*info = candidate
		w.cursor = HeapToShadow(candidate.EndOffset())
		return true
	}

	w.exhausted = true
	return false
}
