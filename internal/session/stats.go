package session

import "log/slog"

// Estimation constants. The footprint figures are heuristics for capacity
// planning, not measurements of the Go heap.
const (
	indexEntryOverhead     = 24
	sessionMetadataBytes   = 512
	uncompressedBaseBytes  = 1024
	uncompressedPermission = 96
	uncompressedComponent  = 128
)

// MemoryStats summarizes estimated session memory.
type MemoryStats struct {
	TotalSessions    int     `json:"total_sessions"`
	TotalBytes       int64   `json:"total_bytes"`
	AverageBytes     float64 `json:"average_bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
	// LazyComponents counts stored components not yet decoded by a loader.
	LazyComponents int   `json:"lazy_components"`
	TargetBytes    int64 `json:"target_bytes"`
	OverTarget     bool  `json:"over_target"`
}

// estimateCompressed is bitmap bytes plus per-index-entry overhead plus fixed
// session metadata.
func estimateCompressed(sess *OptimizedSession) int64 {
	data := sess.Data
	return int64(data.Bitmap.Len()) + int64(len(data.Index))*indexEntryOverhead + sessionMetadataBytes
}

// estimateUncompressed approximates the same session held as plain
// permission objects and component lists.
func estimateUncompressed(sess *OptimizedSession) int64 {
	data := sess.Data
	total := int64(uncompressedBaseBytes)
	for _, key := range data.Index {
		total += uncompressedPermission + int64(len(key))
	}
	total += int64(len(data.Roles)+len(data.Organizations)+len(data.Projects)) * uncompressedComponent
	return total
}

// MemoryUsage reports estimated footprint across all sessions. Exceeding the
// soft memory target is logged and counted, never enforced.
func (m *Manager) MemoryUsage() MemoryStats {
	sessions := m.snapshot()
	stats := MemoryStats{TotalSessions: len(sessions), TargetBytes: m.cfg.MemoryTarget}

	var uncompressed int64
	for _, sess := range sessions {
		stats.TotalBytes += estimateCompressed(sess)
		uncompressed += estimateUncompressed(sess)
		for _, c := range allComponents {
			if sess.Data.present(c) && !sess.Data.isMaterialized(c) {
				stats.LazyComponents++
			}
		}
	}
	if stats.TotalSessions > 0 {
		stats.AverageBytes = float64(stats.TotalBytes) / float64(stats.TotalSessions)
	}
	if uncompressed > 0 {
		stats.CompressionRatio = float64(stats.TotalBytes) / float64(uncompressed)
	}
	stats.OverTarget = stats.AverageBytes > float64(m.cfg.MemoryTarget)

	m.metrics.observeMemory(stats.TotalBytes, stats.OverTarget)
	if stats.OverTarget {
		m.logger.Warn("session memory above target",
			slog.Float64("average_bytes", stats.AverageBytes),
			slog.Int64("target_bytes", m.cfg.MemoryTarget))
	}
	return stats
}
