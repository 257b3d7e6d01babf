package heapcheck

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"

	"github.com/heapguard/heapguard/block"
	"github.com/heapguard/heapguard/memutil"
	"github.com/heapguard/heapguard/shadow"
)

// Checker scans a tracked heap extent for corrupt quarantined blocks. It
// performs a pure read traversal: it never creates, frees, or mutates blocks,
// and it performs no locking of its own. The caller must hold whatever
// exclusion keeps the arena and its shadow stable for the full duration of
// one scan.
type Checker struct {
	logger *slog.Logger
	mem    *shadow.Memory
	arena  []byte

	stats      ScanStatistics
	cumulative ScanStatistics
}

// CheckerOptions contains optional parameters for New: it is valid to leave
// all the fields blank.
type CheckerOptions struct {
	// Logger receives debug logging from the checker's entry points. When
	// nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates a Checker over the heap extent described by mem and backed by
// arena.
func New(mem *shadow.Memory, arena []byte, options CheckerOptions) (*Checker, error) {
	if mem == nil {
		return nil, errors.New("a checker requires shadow memory to scan")
	}
	if len(arena) < mem.HeapSize() {
		return nil, errors.Newf("arena of %d bytes does not back the tracked extent of %d bytes", len(arena), mem.HeapSize())
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		logger: logger,
		mem:    mem,
		arena:  arena,
	}, nil
}

// IsHeapCorrupt scans the entire tracked extent and reports whether any
// quarantined block fails validation. corruptRanges is cleared and
// repopulated with one record per maximal run of adjacent corrupt blocks, in
// increasing address order; records from an earlier scan are invalidated.
//
// Live allocated blocks are still under trusted mutation by the program and
// are not validated. Because they never enter the scan, an allocated block
// physically between two corrupt quarantined blocks does not break a run;
// only a valid quarantined block does. The merged range's byte length spans
// everything between its first and last corrupt block.
func (c *Checker) IsHeapCorrupt(corruptRanges *[]CorruptRange) bool {
	c.logger.Debug("Checker::IsHeapCorrupt")

	memutil.DebugValidate(c.mem)

	*corruptRanges = (*corruptRanges)[:0]
	c.stats.Clear()

	walker, err := shadow.NewWalker(c.mem, c.arena, 0, c.mem.HeapSize())
	if err != nil {
		// New validated the extent, so full-extent bounds cannot fail.
		panic(fmt.Sprintf("failed to construct a full-extent walker with unexpected error: %+v", err))
	}

	var openRange CorruptRange
	haveOpenRange := false

	var info block.Info
	for walker.Next(&info) {
		c.stats.BlocksWalked++

		if info.State != block.StateQuarantined {
			continue
		}
		c.stats.QuarantinedBlocks++

		if block.Validate(c.arena, info) {
			// A valid quarantined block ends any run of corrupt blocks.
			if haveOpenRange {
				*corruptRanges = append(*corruptRanges, openRange)
				haveOpenRange = false
			}
			continue
		}

		c.stats.CorruptBlocks++
		if haveOpenRange {
			openRange.Length = info.EndOffset() - openRange.Offset
			openRange.BlockCount++
			continue
		}

		openRange = CorruptRange{
			Offset:     info.HeaderOffset,
			Length:     info.BlockSize(),
			BlockCount: 1,
		}
		haveOpenRange = true
	}

	if haveOpenRange {
		*corruptRanges = append(*corruptRanges, openRange)
	}

	c.stats.RangeCount = len(*corruptRanges)
	c.cumulative.AddStatistics(&c.stats)
	return len(*corruptRanges) > 0
}

// ScanStatistics returns the counters populated by the most recent
// IsHeapCorrupt call.
func (c *Checker) ScanStatistics() ScanStatistics {
	return c.stats
}

// CumulativeStatistics returns counters summed across every scan this checker
// has run.
func (c *Checker) CumulativeStatistics() ScanStatistics {
	return c.cumulative
}

// BuildCorruptionReportString renders the most recent scan's statistics and
// the provided ranges as a json document for crash-reporting and logging
// consumers.
func (c *Checker) BuildCorruptionReportString(corruptRanges []CorruptRange) string {
	c.logger.Debug("Checker::BuildCorruptionReportString")

	writer := jwriter.NewWriter()

	rootObj := writer.Object()

	statsObj := rootObj.Name("Statistics").Object()
	c.stats.StatsJsonData(statsObj)
	statsObj.End()

	rangesArr := rootObj.Name("CorruptRanges").Array()
	for _, corruptRange := range corruptRanges {
		rangeObj := rangesArr.Object()
		corruptRange.RangeJsonData(rangeObj)
		rangeObj.End()
	}
	rangesArr.End()

	rootObj.End()

	return string(writer.Bytes())
}
