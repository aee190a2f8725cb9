package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestErrorLog(t *testing.T) (*ErrorLog, *memCollections, *fixedClock) {
	t.Helper()
	store := newMemCollections()
	clock := newFixedClock(1_700_000_000_000)
	l := NewErrorLog(store, 0)
	l.nowFunc = clock.Now
	return l, store, clock
}

func TestErrorLogRecordAndRecent(t *testing.T) {
	l, _, clock := newTestErrorLog(t)

	l.Record(CategoryTransient, "connection timeout", "work_orders", "wo-1")
	clock.Advance(time.Second)
	l.Record(CategoryAuth, "session expired", "", "")

	got := l.Recent(10)
	require.Len(t, got, 2)
	assert.Equal(t, CategoryAuth, got[0].Category)
	assert.Equal(t, "connection timeout", got[1].Message)
	assert.Equal(t, "wo-1", got[1].RecordID)
}

func TestErrorLogCapEvictsOldest(t *testing.T) {
	l, _, clock := newTestErrorLog(t)

	for i := 0; i <= DefaultErrorLogCap; i++ {
		l.Record(CategoryTransient, fmt.Sprintf("failure %d", i), "", "")
		clock.Advance(time.Millisecond)
	}

	got := l.Recent(DefaultErrorLogCap + 10)
	require.Len(t, got, DefaultErrorLogCap)
	assert.Equal(t, fmt.Sprintf("failure %d", DefaultErrorLogCap), got[0].Message)
	assert.Equal(t, "failure 1", got[len(got)-1].Message)
}

func TestErrorLogRecentDefaultLimit(t *testing.T) {
	l, _, _ := newTestErrorLog(t)
	for i := 0; i < 30; i++ {
		l.Record(CategoryUnknown, "boom", "", "")
	}
	assert.Len(t, l.Recent(0), DefaultErrorReadLimit)
}

func TestErrorLogPrune(t *testing.T) {
	l, _, clock := newTestErrorLog(t)

	l.Record(CategoryTransient, "stale", "", "")
	clock.Advance(48 * time.Hour)
	l.Record(CategoryTransient, "fresh", "", "")

	removed := l.Prune(24 * time.Hour)
	assert.Equal(t, 1, removed)
	got := l.Recent(10)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Message)
}

func TestErrorLogCorruptHistoryReadsEmpty(t *testing.T) {
	store := newMemCollections()
	store.data[errorLogNamespace] = []byte("][")

	l := NewErrorLog(store, 0)
	assert.Empty(t, l.Recent(10))
}
