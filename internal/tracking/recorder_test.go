package tracking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis.click/internal/audio"
	"auralis.click/internal/engine"
)

var testInfo = SessionInfo{
	Mode:       "render",
	Backend:    "wav",
	SampleRate: 48000,
	BlockSize:  128,
	HRTFSource: "spherical",
}

func TestNewRecorderStartsSession(t *testing.T) {
	db := setupTestDB(t)

	rec, err := NewRecorder(db, testInfo)
	require.NoError(t, err)

	_, err = uuid.Parse(rec.SessionID())
	assert.NoError(t, err, "session id should be a UUID")

	var mode, hrtfSource string
	var rate int
	err = db.QueryRow("SELECT mode, sample_rate, hrtf_source FROM sessions WHERE id = ?", rec.SessionID()).
		Scan(&mode, &rate, &hrtfSource)
	require.NoError(t, err)
	assert.Equal(t, "render", mode)
	assert.Equal(t, 48000, rate)
	assert.Equal(t, "spherical", hrtfSource)
}

func TestRecorderSessionsAreDistinct(t *testing.T) {
	db := setupTestDB(t)

	a, err := NewRecorder(db, testInfo)
	require.NoError(t, err)
	b, err := NewRecorder(db, testInfo)
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestRecorderAssetFailed(t *testing.T) {
	db := setupTestDB(t)
	rec, err := NewRecorder(db, testInfo)
	require.NoError(t, err)

	var hook audio.FailureHook = rec.AssetFailed
	hook("rain.ogg", "/assets/rain.ogg", audio.ErrInvalidData)
	hook("wind.wav", "/assets/wind.wav", nil)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM asset_failures WHERE session_id = ?", rec.SessionID()).Scan(&count))
	assert.Equal(t, 2, count)

	var reason string
	require.NoError(t, db.QueryRow("SELECT reason FROM asset_failures WHERE name = 'rain.ogg'").Scan(&reason))
	assert.Equal(t, audio.ErrInvalidData.Error(), reason)
}

func TestRecorderRecordStats(t *testing.T) {
	db := setupTestDB(t)
	rec, err := NewRecorder(db, testInfo)
	require.NoError(t, err)

	stats := engine.Stats{
		Blocks:       1000,
		Overruns:     3,
		SkippedSwaps: 2,
		MaxBlockTime: 2500 * time.Microsecond,
		Sources:      4,
		Cache:        audio.CacheStats{Hits: 90, Misses: 10, OutOfPool: 1, Closed: 2},
	}
	rec.RecordStats(StatsFromEngine(stats))

	var blocks, overruns, maxBlock, hits, outOfPool int64
	err = db.QueryRow(`SELECT blocks, overruns, max_block_us, cache_hits, cache_out_of_pool
		FROM render_stats WHERE session_id = ?`, rec.SessionID()).
		Scan(&blocks, &overruns, &maxBlock, &hits, &outOfPool)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, blocks)
	assert.EqualValues(t, 3, overruns)
	assert.EqualValues(t, 2500, maxBlock)
	assert.EqualValues(t, 90, hits)
	assert.EqualValues(t, 1, outOfPool)
}

func TestRecorderEnd(t *testing.T) {
	db := setupTestDB(t)
	rec, err := NewRecorder(db, testInfo)
	require.NoError(t, err)
	rec.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	rec.End()

	var ended int64
	require.NoError(t, db.QueryRow("SELECT ended_at FROM sessions WHERE id = ?", rec.SessionID()).Scan(&ended))
	assert.EqualValues(t, 1_700_000_000, ended)
}

func TestRecorderDisablesAfterError(t *testing.T) {
	db := setupTestDB(t)
	rec, err := NewRecorder(db, testInfo)
	require.NoError(t, err)

	_, err = db.Exec("DROP TABLE asset_failures")
	require.NoError(t, err)

	rec.AssetFailed("a.wav", "/a.wav", errors.New("boom"))
	assert.True(t, rec.Disabled())

	// further writes are skipped rather than retried
	rec.RecordStats(StatsRow{Blocks: 1})
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM render_stats").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestNewRecorderFailsWithoutSchema(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Exec("DROP TABLE sessions")
	require.NoError(t, err)

	_, err = NewRecorder(db, testInfo)
	assert.Error(t, err)
}

func TestRenderSummaryOverrunRate(t *testing.T) {
	assert.Equal(t, 0.0, RenderSummary{}.OverrunRate())
	assert.InDelta(t, 0.01, RenderSummary{Blocks: 200, Overruns: 2}.OverrunRate(), 1e-12)
}
