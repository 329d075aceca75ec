package utils

import (
	"runtime"
	"runtime/debug"

	"market-feed/src/logger"
)

// -----------------------------------------------------------------------------
// MemoryMonitor watches process heap usage during maintenance sweeps.
// -----------------------------------------------------------------------------

type MemoryMonitor struct {
	SoftLimitMB float64
	Logger      *logger.Logger
}

// -----------------------------------------------------------------------------

func NewMemoryMonitor(softLimitMB float64, log *logger.Logger) *MemoryMonitor {
	if softLimitMB <= 0 {
		softLimitMB = 512
	}
	return &MemoryMonitor{
		SoftLimitMB: softLimitMB,
		Logger:      log,
	}
}

// -----------------------------------------------------------------------------

// HeapMB returns the current heap allocation in MB.
func (mm *MemoryMonitor) HeapMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / 1024 / 1024
}

// -----------------------------------------------------------------------------

// Sweep logs heap usage and, past the soft limit, returns freed cache pages
// to the OS. Called from the periodic maintenance pass, right after the
// preload cache has been purged so the released entries actually count.
func (mm *MemoryMonitor) Sweep() {
	heap := mm.HeapMB()
	mm.Logger.Debug("MemoryMonitor: heap %.1fMB (soft limit %.0fMB)", heap, mm.SoftLimitMB)

	if heap > mm.SoftLimitMB {
		mm.Logger.Info("MemoryMonitor: heap %.1fMB exceeds %.0fMB, compacting", heap, mm.SoftLimitMB)
		runtime.GC()
		debug.FreeOSMemory()
	}
}
