package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuditLog(t *testing.T, capacity int) (*AuditLog, *memCollections, *fixedClock) {
	t.Helper()
	store := newMemCollections()
	clock := newFixedClock(1_700_000_000_000)
	l := NewAuditLog(store, capacity)
	l.nowFunc = clock.Now
	return l, store, clock
}

func sampleEntry(table, recordID string) ConflictLogEntry {
	return ConflictLogEntry{
		TableName: table,
		RecordID:  recordID,
		Resolutions: []FieldResolution{
			{Field: "status", Rule: RuleCompletionWins, LocalValue: "completed", ServerValue: "in_progress", FinalValue: "completed", Source: SourceLocal},
		},
		AutoResolved: true,
	}
}

func TestAuditLogAppendGeneratesIDAndTimestamp(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	id := l.Append(sampleEntry("work_orders", "wo-1"))
	require.NotEmpty(t, id)

	got := l.Recent(1)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, clock.Now().UnixMilli(), got[0].Timestamp)
}

func TestAuditLogCapEvictsOldest(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	for i := 0; i <= DefaultConflictLogCap; i++ {
		e := sampleEntry("work_orders", fmt.Sprintf("wo-%d", i))
		l.Append(e)
		clock.Advance(time.Millisecond)
	}

	stats := l.Stats()
	assert.Equal(t, DefaultConflictLogCap, stats.Total)

	// wo-0 was the first appended and must be gone
	assert.Empty(t, l.ForRecord("work_orders", "wo-0"))
	assert.Len(t, l.ForRecord("work_orders", fmt.Sprintf("wo-%d", DefaultConflictLogCap)), 1)
}

func TestAuditLogRecentOrderAndLimit(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	for i := 0; i < 60; i++ {
		l.Append(sampleEntry("work_orders", fmt.Sprintf("wo-%d", i)))
		clock.Advance(time.Second)
	}

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "wo-59", recent[0].RecordID)
	assert.Equal(t, "wo-58", recent[1].RecordID)
	assert.Equal(t, "wo-57", recent[2].RecordID)

	// Non-positive limit falls back to the default
	assert.Len(t, l.Recent(0), DefaultRecentLimit)
	assert.Len(t, l.Recent(-5), DefaultRecentLimit)

	// Limit larger than the log returns everything
	assert.Len(t, l.Recent(1000), 60)
}

func TestAuditLogForRecordInterleaved(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	l.Append(sampleEntry("work_orders", "wo-1"))
	clock.Advance(time.Second)
	l.Append(sampleEntry("assets", "as-1"))
	clock.Advance(time.Second)
	l.Append(sampleEntry("work_orders", "wo-1"))
	clock.Advance(time.Second)
	l.Append(sampleEntry("work_orders", "wo-2"))

	got := l.ForRecord("work_orders", "wo-1")
	require.Len(t, got, 2)
	assert.Greater(t, got[0].Timestamp, got[1].Timestamp)

	assert.Len(t, l.ForRecord("assets", "as-1"), 1)
	assert.Empty(t, l.ForRecord("work_orders", "wo-9"))
}

func TestAuditLogEscalated(t *testing.T) {
	l, _, _ := newTestAuditLog(t, 0)

	l.Append(sampleEntry("work_orders", "wo-1"))
	escalated := sampleEntry("work_orders", "wo-2")
	escalated.AutoResolved = false
	escalated.Escalations = []string{EscalationCompletionConflict}
	l.Append(escalated)

	got := l.Escalated()
	require.Len(t, got, 1)
	assert.Equal(t, "wo-2", got[0].RecordID)
	assert.Contains(t, got[0].Escalations, EscalationCompletionConflict)
}

func TestAuditLogByTimeRangeInclusive(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)
	start := clock.Now().UnixMilli()

	l.Append(sampleEntry("work_orders", "wo-1")) // at start
	clock.Advance(time.Minute)
	l.Append(sampleEntry("work_orders", "wo-2"))
	clock.Advance(time.Minute)
	end := clock.Now().UnixMilli()
	l.Append(sampleEntry("work_orders", "wo-3")) // at end
	clock.Advance(time.Minute)
	l.Append(sampleEntry("work_orders", "wo-4")) // past end

	got := l.ByTimeRange(start, end)
	require.Len(t, got, 3)
	for _, e := range got {
		assert.NotEqual(t, "wo-4", e.RecordID)
	}
}

func TestAuditLogPruneBoundary(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	l.Append(sampleEntry("work_orders", "old")) // will be 30d + 1ms old
	clock.Advance(time.Millisecond)
	l.Append(sampleEntry("work_orders", "edge")) // exactly 30d old
	clock.Advance(DefaultConflictRetention)

	removed := l.Prune(0)
	assert.Equal(t, 1, removed)
	assert.Empty(t, l.ForRecord("work_orders", "old"))
	assert.Len(t, l.ForRecord("work_orders", "edge"), 1)

	// Nothing left to remove
	assert.Equal(t, 0, l.Prune(0))
}

func TestAuditLogStats(t *testing.T) {
	l, _, clock := newTestAuditLog(t, 0)

	// Empty log reads as all zeros
	stats := l.Stats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.Escalated)
	assert.Empty(t, stats.ByTable)

	l.Append(sampleEntry("work_orders", "wo-old"))
	clock.Advance(3 * 24 * time.Hour)
	l.Append(sampleEntry("work_orders", "wo-1"))
	escalated := sampleEntry("assets", "as-1")
	escalated.AutoResolved = false
	l.Append(escalated)
	clock.Advance(time.Hour)

	stats = l.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.AutoResolved)
	assert.Equal(t, 1, stats.Escalated)
	assert.Equal(t, 2, stats.ByTable["work_orders"])
	assert.Equal(t, 1, stats.ByTable["assets"])
	assert.Equal(t, 2, stats.Last24Hours)
	assert.Equal(t, 3, stats.Last7Days)
}

func TestAuditLogGet(t *testing.T) {
	l, _, _ := newTestAuditLog(t, 0)

	id := l.Append(sampleEntry("work_orders", "wo-1"))
	l.Append(sampleEntry("assets", "as-1"))

	got, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, "work_orders", got.TableName)
	assert.Equal(t, "wo-1", got.RecordID)

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestAuditLogMarkReviewed(t *testing.T) {
	l, _, _ := newTestAuditLog(t, 0)

	// Empty log: unknown id is a clean false
	assert.False(t, l.MarkReviewed("missing", "rev-1", "n/a"))

	id := l.Append(sampleEntry("work_orders", "wo-1"))
	assert.False(t, l.MarkReviewed("still-missing", "rev-1", "n/a"))

	require.True(t, l.MarkReviewed(id, "rev-1", "checked on site"))
	got := l.Recent(1)[0]
	require.NotNil(t, got.ReviewedAt)
	assert.Equal(t, "rev-1", got.ReviewedBy)
	assert.Equal(t, "checked on site", got.ReviewNotes)
}

func TestAuditLogPersistenceRoundTrip(t *testing.T) {
	store := newMemCollections()
	l := NewAuditLog(store, 0)
	id := l.Append(sampleEntry("work_orders", "wo-1"))

	reloaded := NewAuditLog(store, 0)
	got := reloaded.Recent(1)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestAuditLogCorruptHistoryReadsEmpty(t *testing.T) {
	store := newMemCollections()
	store.data[conflictLogNamespace] = []byte("{not json")

	l := NewAuditLog(store, 0)
	assert.Equal(t, 0, l.Stats().Total)

	// The log still accepts new entries afterwards
	l.Append(sampleEntry("work_orders", "wo-1"))
	assert.Equal(t, 1, l.Stats().Total)
}

func TestAuditLogAppendSurvivesPersistFailure(t *testing.T) {
	l, store, _ := newTestAuditLog(t, 0)
	store.saveErr = fmt.Errorf("disk full")

	id := l.Append(sampleEntry("work_orders", "wo-1"))
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, l.Stats().Total)
}

func TestAuditLogClear(t *testing.T) {
	l, store, _ := newTestAuditLog(t, 0)
	l.Append(sampleEntry("work_orders", "wo-1"))

	l.Clear()
	assert.Equal(t, 0, l.Stats().Total)
	assert.Nil(t, store.data[conflictLogNamespace])
}
