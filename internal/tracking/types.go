package tracking

import (
	"time"

	"auralis.click/internal/engine"
)

// SessionInfo describes the engine run a Recorder belongs to
type SessionInfo struct {
	Mode       string // "render" or "play"
	Backend    string
	SampleRate int
	BlockSize  int
	HRTFSource string
}

// StatsRow is one render_stats record
type StatsRow struct {
	Blocks         uint64
	Overruns       uint64
	SkippedSwaps   uint64
	MaxBlockTime   time.Duration
	Sources        int
	CacheHits      uint64
	CacheMisses    uint64
	CacheOutOfPool uint64
	CacheClosed    uint64
}

// StatsFromEngine flattens an engine.Stats copy into a row
func StatsFromEngine(s engine.Stats) StatsRow {
	return StatsRow{
		Blocks:         s.Blocks,
		Overruns:       s.Overruns,
		SkippedSwaps:   s.SkippedSwaps,
		MaxBlockTime:   s.MaxBlockTime,
		Sources:        s.Sources,
		CacheHits:      s.Cache.Hits,
		CacheMisses:    s.Cache.Misses,
		CacheOutOfPool: s.Cache.OutOfPool,
		CacheClosed:    s.Cache.Closed,
	}
}

// AssetFailure aggregates failures for one asset path
type AssetFailure struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
	LastReason string `json:"last_reason"`
	LastSeen   int64  `json:"last_seen"` // Unix timestamp
}

// RenderSummary aggregates the final counters of every matching session
type RenderSummary struct {
	Sessions     int           `json:"sessions"`
	Blocks       int64         `json:"blocks"`
	Overruns     int64         `json:"overruns"`
	SkippedSwaps int64         `json:"skipped_swaps"`
	MaxBlockTime time.Duration `json:"max_block_time"`
	OutOfPool    int64         `json:"out_of_pool"`
}

// OverrunRate is the fraction of blocks that missed their deadline
func (s RenderSummary) OverrunRate() float64 {
	if s.Blocks == 0 {
		return 0
	}
	return float64(s.Overruns) / float64(s.Blocks)
}
