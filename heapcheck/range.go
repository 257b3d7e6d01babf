package heapcheck

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// CorruptRange describes one maximal run of adjacent corrupt quarantined
// blocks: the offset of the first block's header, the byte length through the
// last block's trailing redzone, and how many corrupt blocks the run
// contains. Ranges produced by one scan are pairwise disjoint and ordered by
// increasing offset.
type CorruptRange struct {
	Offset     int
	Length     int
	BlockCount int
}

// RangeJsonData populates a json object with information about this range
func (r CorruptRange) RangeJsonData(json jwriter.ObjectState) {
	json.Name("Offset").Int(r.Offset)
	json.Name("Length").Int(r.Length)
	json.Name("CorruptBlocks").Int(r.BlockCount)
}
