package sync

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	errorLogNamespace = "sync_error_log"

	// DefaultErrorLogCap bounds the stored error history
	DefaultErrorLogCap = 100
	// DefaultErrorReadLimit is the read limit when the caller passes none
	DefaultErrorReadLimit = 20
)

// ErrorLogEntry is one recorded sync failure
type ErrorLogEntry struct {
	Timestamp int64         `json:"timestamp"` // epoch millis
	Message   string        `json:"message"`
	Category  ErrorCategory `json:"category"`
	TableName string        `json:"tableName,omitempty"`
	RecordID  string        `json:"recordId,omitempty"`
}

// ErrorLog is the bounded sync error history, same append/cap/prune shape
// as the conflict audit log but smaller.
type ErrorLog struct {
	mu      sync.Mutex
	store   CollectionStore
	entries []ErrorLogEntry
	cap     int
	nowFunc func() time.Time
}

// NewErrorLog loads the persisted history; corrupt data reads as empty
func NewErrorLog(store CollectionStore, capacity int) *ErrorLog {
	if capacity <= 0 {
		capacity = DefaultErrorLogCap
	}
	l := &ErrorLog{
		store:   store,
		cap:     capacity,
		nowFunc: time.Now,
	}

	data, err := store.Load(errorLogNamespace)
	if err != nil {
		log.Printf("⚠️ Error log: failed to load history, starting empty: %v", err)
		return l
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.entries); err != nil {
			log.Printf("⚠️ Error log: corrupt history discarded: %v", err)
			l.entries = nil
		}
	}
	return l
}

// Record appends a categorized failure. Best-effort: persistence errors
// are logged and swallowed.
func (l *ErrorLog) Record(category ErrorCategory, message, table, recordID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ErrorLogEntry{
		Timestamp: nowMillis(l.nowFunc()),
		Message:   message,
		Category:  category,
		TableName: table,
		RecordID:  recordID,
	}

	l.entries = append([]ErrorLogEntry{entry}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	l.persist()
}

// Recent returns up to limit entries, most recent first. A non-positive
// limit means the default of 20.
func (l *ErrorLog) Recent(limit int) []ErrorLogEntry {
	if limit <= 0 {
		limit = DefaultErrorReadLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]ErrorLogEntry, limit)
	copy(out, l.entries[:limit])
	return out
}

// Prune removes entries strictly older than now - maxAge
func (l *ErrorLog) Prune(maxAge time.Duration) int {
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

// Clear removes the entire history
func (l *ErrorLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	if err := l.store.Delete(errorLogNamespace); err != nil {
		log.Printf("⚠️ Error log: failed to clear history: %v", err)
	}
}

func (l *ErrorLog) persist() {
	data, err := json.Marshal(l.entries)
	if err != nil {
		log.Printf("⚠️ Error log: failed to marshal history: %v", err)
		return
	}
	if err := l.store.Save(errorLogNamespace, data); err != nil {
		log.Printf("⚠️ Error log: failed to persist history: %v", err)
	}
}
