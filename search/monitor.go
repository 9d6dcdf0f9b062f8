package search

import "github.com/poiesic/policyrag/core"

// Monitor provides hooks to observe searches.
// Implementations must be safe for concurrent use.
type Monitor interface {
	Start(k int)
	SkippedChunk(err *core.CorruptChunkError)
	Finish(scanned int, results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = noopMonitor{}

func (noopMonitor) Start(_ int) {}
func (noopMonitor) SkippedChunk(_ *core.CorruptChunkError) {}
func (noopMonitor) Finish(_ int, _ []*core.SearchResult) {}
