package tracking

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder writes telemetry for one session. After the first failed write
// it disables itself; telemetry never interrupts playback.
type Recorder struct {
	db        *sql.DB
	sessionID string
	now       func() time.Time

	mu       sync.Mutex
	disabled bool
}

// NewRecorder starts a session with a fresh identifier
func NewRecorder(db *sql.DB, info SessionInfo) (*Recorder, error) {
	r := &Recorder{
		db:        db,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}

	_, err := db.Exec(`
		INSERT INTO sessions (id, started_at, mode, backend, sample_rate, block_size, hrtf_source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID,
		r.now().Unix(),
		info.Mode,
		info.Backend,
		info.SampleRate,
		info.BlockSize,
		info.HRTFSource)
	if err != nil {
		return nil, fmt.Errorf("failed to start tracking session: %w", err)
	}

	slog.Debug("tracking session started", "session_id", r.sessionID, "mode", info.Mode)
	return r, nil
}

// SessionID returns the session identifier
func (r *Recorder) SessionID() string { return r.sessionID }

// Disabled reports whether a write error switched the recorder off
func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

// AssetFailed records an asset that degraded to silence. It has the shape of
// audio.FailureHook.
func (r *Recorder) AssetFailed(name, path string, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	r.exec("asset failure", `
		INSERT INTO asset_failures (timestamp, session_id, name, path, reason)
		VALUES (?, ?, ?, ?, ?)`,
		r.now().Unix(),
		r.sessionID,
		name,
		path,
		reason)
}

// RecordStats stores a copy of the engine counters
func (r *Recorder) RecordStats(s StatsRow) {
	r.exec("render stats", `
		INSERT INTO render_stats (timestamp, session_id, blocks, overruns, skipped_swaps,
			max_block_us, sources, cache_hits, cache_misses, cache_out_of_pool, cache_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.now().Unix(),
		r.sessionID,
		int64(s.Blocks),
		int64(s.Overruns),
		int64(s.SkippedSwaps),
		s.MaxBlockTime.Microseconds(),
		s.Sources,
		int64(s.CacheHits),
		int64(s.CacheMisses),
		int64(s.CacheOutOfPool),
		int64(s.CacheClosed))
}

// End marks the session finished
func (r *Recorder) End() {
	r.exec("session end", `UPDATE sessions SET ended_at = ? WHERE id = ?`, r.now().Unix(), r.sessionID)
}

func (r *Recorder) exec(what, query string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled {
		return
	}
	if _, err := r.db.Exec(query, args...); err != nil {
		slog.Warn("tracking failed, disabling for this session", "what", what, "session_id", r.sessionID, "error", err)
		r.disabled = true
		return
	}
	slog.Debug("tracking recorded", "what", what, "session_id", r.sessionID)
}
