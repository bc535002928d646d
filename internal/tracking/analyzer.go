package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/huandu/go-sqlbuilder"
)

// ErrNilDatabase is returned by the query helpers when no database is open
var ErrNilDatabase = errors.New("database connection is nil")

// Session is one sessions row with its failure count
type Session struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Backend    string `json:"backend"`
	SampleRate int    `json:"sample_rate"`
	StartedAt  int64  `json:"started_at"`
	EndedAt    int64  `json:"ended_at,omitempty"` // 0 while running or after a crash
	Failures   int    `json:"failures"`
}

// GetAssetFailures returns failing asset paths, most frequent first
func GetAssetFailures(db *sql.DB, filter QueryFilter) ([]AssetFailure, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	sb := sqlbuilder.NewSelectBuilder()
	// SQLite takes bare columns from the row that produced MAX()
	sb.Select("path", "name", sb.As("COUNT(*)", "failures"), "reason", sb.As("MAX(timestamp)", "last_seen"))
	sb.From("asset_failures")
	filter.applyTo(sb, "timestamp", "session_id", "path", time.Now())
	sb.GroupBy("path")
	sb.OrderBy("failures DESC", "path")

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	slog.Debug("querying asset failures", "query", query, "arg_count", len(args))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset failures: %w", err)
	}
	defer rows.Close()

	var results []AssetFailure
	for rows.Next() {
		var f AssetFailure
		if err := rows.Scan(&f.Path, &f.Name, &f.Count, &f.LastReason, &f.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan asset failure row: %w", err)
		}
		results = append(results, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset failure rows: %w", err)
	}

	return results, nil
}

// GetRenderSummary sums the last recorded counters of every matching
// session. Counters are cumulative, so earlier rows of a session are
// ignored.
func GetRenderSummary(db *sql.DB, filter QueryFilter) (RenderSummary, error) {
	var summary RenderSummary
	if db == nil {
		return summary, ErrNilDatabase
	}

	perSession := filter
	perSession.Limit = 0
	perSession.Path = ""

	latest := sqlbuilder.NewSelectBuilder()
	latest.Select("MAX(id)").From("render_stats")
	perSession.applyTo(latest, "timestamp", "session_id", "", time.Now())
	latest.GroupBy("session_id")

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(blocks), 0)",
		"COALESCE(SUM(overruns), 0)",
		"COALESCE(SUM(skipped_swaps), 0)",
		"COALESCE(MAX(max_block_us), 0)",
		"COALESCE(SUM(cache_out_of_pool), 0)",
	)
	sb.From("render_stats")
	sb.Where(sb.In("id", latest))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	slog.Debug("querying render summary", "query", query, "arg_count", len(args))

	var maxBlockMicros int64
	err := db.QueryRow(query, args...).Scan(
		&summary.Sessions,
		&summary.Blocks,
		&summary.Overruns,
		&summary.SkippedSwaps,
		&maxBlockMicros,
		&summary.OutOfPool)
	if err != nil {
		return summary, fmt.Errorf("failed to query render summary: %w", err)
	}
	summary.MaxBlockTime = time.Duration(maxBlockMicros) * time.Microsecond

	return summary, nil
}

// GetSessions lists sessions, newest first
func GetSessions(db *sql.DB, filter QueryFilter) ([]Session, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"id", "mode", "backend", "sample_rate", "started_at",
		"COALESCE(ended_at, 0)",
		"(SELECT COUNT(*) FROM asset_failures f WHERE f.session_id = sessions.id)",
	)
	sb.From("sessions")
	filter.applyTo(sb, "started_at", "id", "", time.Now())
	sb.OrderBy("started_at DESC", "id")

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Mode, &s.Backend, &s.SampleRate, &s.StartedAt, &s.EndedAt, &s.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return results, nil
}
