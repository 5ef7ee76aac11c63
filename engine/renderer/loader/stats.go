package loader

import "sync/atomic"

/** @brief Counters collected by the resource loader. */
type Stats struct {
	Ticks                uint64
	RequestsProcessed    uint64
	InvalidRequests      uint64
	BytesStaged          uint64
	TempBuffersAllocated uint64
	TempBuffersReleased  uint64
	Flushes              uint64
}

type statsCounters struct {
	ticks                atomic.Uint64
	requestsProcessed    atomic.Uint64
	invalidRequests      atomic.Uint64
	bytesStaged          atomic.Uint64
	tempBuffersAllocated atomic.Uint64
	tempBuffersReleased  atomic.Uint64
	flushes              atomic.Uint64
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		Ticks:                s.ticks.Load(),
		RequestsProcessed:    s.requestsProcessed.Load(),
		InvalidRequests:      s.invalidRequests.Load(),
		BytesStaged:          s.bytesStaged.Load(),
		TempBuffersAllocated: s.tempBuffersAllocated.Load(),
		TempBuffersReleased:  s.tempBuffersReleased.Load(),
		Flushes:              s.flushes.Load(),
	}
}
