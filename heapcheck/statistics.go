package heapcheck

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// ScanStatistics counts what one scan saw. A scan clears and repopulates the
// checker's statistics, so the counters always describe the most recent pass.
type ScanStatistics struct {
	// BlocksWalked is the number of blocks the walker reconstructed,
	// regardless of state.
	BlocksWalked int
	// QuarantinedBlocks is the number of blocks that were actually validated.
	QuarantinedBlocks int
	// CorruptBlocks is the number of quarantined blocks that failed
	// validation.
	CorruptBlocks int
	// RangeCount is the number of corrupt ranges the scan emitted.
	RangeCount int
}

func (s *ScanStatistics) Clear() {
	s.BlocksWalked = 0
	s.QuarantinedBlocks = 0
	s.CorruptBlocks = 0
	s.RangeCount = 0
}

func (s *ScanStatistics) AddStatistics(other *ScanStatistics) {
	s.BlocksWalked += other.BlocksWalked
	s.QuarantinedBlocks += other.QuarantinedBlocks
	s.CorruptBlocks += other.CorruptBlocks
	s.RangeCount += other.RangeCount
}

// StatsJsonData populates a json object with this scan's counters
func (s *ScanStatistics) StatsJsonData(json jwriter.ObjectState) {
	json.Name("BlocksWalked").Int(s.BlocksWalked)
	json.Name("QuarantinedBlocks").Int(s.QuarantinedBlocks)
	json.Name("CorruptBlocks").Int(s.CorruptBlocks)
	json.Name("CorruptRanges").Int(s.RangeCount)
}
