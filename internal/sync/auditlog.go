package sync

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	conflictLogNamespace = "conflict_log"

	// DefaultConflictLogCap bounds the stored history
	DefaultConflictLogCap = 500
	// DefaultRecentLimit is the read limit when the caller passes none
	DefaultRecentLimit = 50
	// DefaultConflictRetention is the prune horizon when none is given
	DefaultConflictRetention = 30 * 24 * time.Hour
)

// AuditStats summarizes the conflict history at a point in time
type AuditStats struct {
	Total        int            `json:"total"`
	AutoResolved int            `json:"autoResolved"`
	Escalated    int            `json:"escalated"`
	ByTable      map[string]int `json:"byTable"`
	Last24Hours  int            `json:"last24Hours"`
	Last7Days    int            `json:"last7Days"`
}

// AuditLog is the append-only, capped, queryable conflict history.
// The in-memory sequence is most-recent-first; every mutation re-persists
// the full sequence under its namespace, so the log owns all writes to it.
type AuditLog struct {
	mu      sync.Mutex
	store   CollectionStore
	entries []ConflictLogEntry
	cap     int
	nowFunc func() time.Time
}

// NewAuditLog loads the persisted history. A corrupt or unreadable
// sequence is treated as empty and logged, never surfaced as an error.
func NewAuditLog(store CollectionStore, capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultConflictLogCap
	}
	l := &AuditLog{
		store:   store,
		cap:     capacity,
		nowFunc: time.Now,
	}
	l.entries = l.loadEntries()
	return l
}

func (l *AuditLog) loadEntries() []ConflictLogEntry {
	data, err := l.store.Load(conflictLogNamespace)
	if err != nil {
		log.Printf("⚠️ Conflict log: failed to load history, starting empty: %v", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []ConflictLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("⚠️ Conflict log: corrupt history discarded: %v", err)
		return nil
	}
	return entries
}

// persist writes the full sequence; failures are logged and swallowed so
// audit logging never blocks the sync path.
func (l *AuditLog) persist() {
	data, err := json.Marshal(l.entries)
	if err != nil {
		log.Printf("⚠️ Conflict log: failed to marshal history: %v", err)
		return
	}
	if err := l.store.Save(conflictLogNamespace, data); err != nil {
		log.Printf("⚠️ Conflict log: failed to persist history: %v", err)
	}
}

// Append prepends an entry, generating id and timestamp when absent,
// truncates to the cap (oldest dropped first) and persists. Returns the
// entry id even when persistence failed.
func (l *AuditLog) Append(entry ConflictLogEntry) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == 0 {
		entry.Timestamp = nowMillis(l.nowFunc())
	}
	if entry.ID == "" {
		entry.ID = newEntryID(entry.Timestamp)
	}

	l.entries = append([]ConflictLogEntry{entry}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	l.persist()

	return entry.ID
}

// Recent returns up to limit entries, most recent first. A non-positive
// limit means the default of 50.
func (l *AuditLog) Recent(limit int) []ConflictLogEntry {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]ConflictLogEntry, limit)
	copy(out, l.entries[:limit])
	return out
}

// Get returns the entry with the given id
func (l *AuditLog) Get(id string) (ConflictLogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return ConflictLogEntry{}, false
}

// ForRecord returns all entries for one (table, record) pair in recency order
func (l *AuditLog) ForRecord(table, recordID string) []ConflictLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ConflictLogEntry
	for _, e := range l.entries {
		if e.TableName == table && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out
}

// Escalated returns all entries that were not auto-resolved
func (l *AuditLog) Escalated() []ConflictLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ConflictLogEntry
	for _, e := range l.entries {
		if !e.AutoResolved {
			out = append(out, e)
		}
	}
	return out
}

// ByTimeRange returns entries with start <= timestamp <= end, both inclusive
func (l *AuditLog) ByTimeRange(start, end int64) []ConflictLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ConflictLogEntry
	for _, e := range l.entries {
		if e.Timestamp >= start && e.Timestamp <= end {
			out = append(out, e)
		}
	}
	return out
}

// Stats computes summary counts relative to the clock at call time
func (l *AuditLog) Stats() AuditStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := AuditStats{ByTable: make(map[string]int)}
	now := nowMillis(l.nowFunc())
	dayAgo := now - 24*time.Hour.Milliseconds()
	weekAgo := now - 7*24*time.Hour.Milliseconds()

	for _, e := range l.entries {
		stats.Total++
		if e.AutoResolved {
			stats.AutoResolved++
		} else {
			stats.Escalated++
		}
		stats.ByTable[e.TableName]++
		if e.Timestamp >= dayAgo {
			stats.Last24Hours++
		}
		if e.Timestamp >= weekAgo {
			stats.Last7Days++
		}
	}
	return stats
}

// Prune removes entries strictly older than now - maxAge and returns the
// count removed. Entries exactly at the cutoff are retained. A
// non-positive maxAge means the default 30 day horizon.
func (l *AuditLog) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultConflictRetention
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := nowMillis(l.nowFunc()) - maxAge.Milliseconds()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}

	removed := len(l.entries) - len(kept)
	if removed > 0 {
		l.entries = kept
		l.persist()
	}
	return removed
}

// MarkReviewed attaches review metadata to an entry. Returns false when
// the id is unknown, including on an empty log; never fails otherwise.
func (l *AuditLog) MarkReviewed(id, reviewerID, notes string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			reviewedAt := nowMillis(l.nowFunc())
			l.entries[i].ReviewedAt = &reviewedAt
			l.entries[i].ReviewedBy = reviewerID
			l.entries[i].ReviewNotes = notes
			l.persist()
			return true
		}
	}
	return false
}

// Clear removes the entire history
func (l *AuditLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	if err := l.store.Delete(conflictLogNamespace); err != nil {
		log.Printf("⚠️ Conflict log: failed to clear history: %v", err)
	}
}
