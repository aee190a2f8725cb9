package sync

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/opslink-dev/fieldsync/internal/models"
)

// RetryStore persists queued operations so they survive restarts.
type RetryStore interface {
	LoadAll() ([]models.RetryOp, error)
	Save(op *models.RetryOp) error
	Delete(id string) error
}

// RetryQueueConfig bounds attempts and spaces them out.
type RetryQueueConfig struct {
	MaxRetries         int
	MinRetryIntervalMs int64
	MaxRetryIntervalMs int64
}

const (
	DefaultMaxRetries         = 5
	DefaultMinRetryIntervalMs = int64(30 * time.Second / time.Millisecond)
	DefaultMaxRetryIntervalMs = int64(time.Hour / time.Millisecond)
)

// RetryQueueStats summarizes the queue for diagnostics.
type RetryQueueStats struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	InProgress int            `json:"inProgress"`
	Failed     int            `json:"failed"`
	ByTable    map[string]int `json:"byTable"`
	OldestMs   int64          `json:"oldestMs"`
}

// RetryQueue holds failed sync operations and schedules re-attempts
// with exponential backoff. All mutations go through the store so the
// queue survives a process restart.
type RetryQueue struct {
	mu      sync.RWMutex
	store   RetryStore
	ops     map[string]*models.RetryOp
	cfg     RetryQueueConfig
	nowFunc func() time.Time
}

// NewRetryQueue loads persisted operations and recovers any that were
// mid-flight when the previous process died.
func NewRetryQueue(store RetryStore, cfg RetryQueueConfig) (*RetryQueue, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MinRetryIntervalMs <= 0 {
		cfg.MinRetryIntervalMs = DefaultMinRetryIntervalMs
	}
	if cfg.MaxRetryIntervalMs <= 0 {
		cfg.MaxRetryIntervalMs = DefaultMaxRetryIntervalMs
	}

	q := &RetryQueue{
		store:   store,
		ops:     make(map[string]*models.RetryOp),
		cfg:     cfg,
		nowFunc: time.Now,
	}

	loaded, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	recovered := 0
	for i := range loaded {
		op := loaded[i]
		if op.State == models.RetryStateInProgress {
			op.State = models.RetryStatePending
			if err := store.Save(&op); err != nil {
				log.Printf("⚠️ Failed to recover retry op %s: %v", op.ID, err)
			}
			recovered++
		}
		q.ops[op.ID] = &op
	}
	if recovered > 0 {
		log.Printf("🔄 Recovered %d stale retry operation(s) from previous run", recovered)
	}
	return q, nil
}

// Enqueue adds an operation, coalescing with an existing pending entry
// for the same record and direction so a record never queues twice.
// The server id travels with the op so a replay updates the existing
// remote record instead of creating a duplicate.
func (q *RetryQueue) Enqueue(table, recordID, operation string, serverID *int64, payload datatypes.JSON) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		if op.RecordTable == table && op.RecordID == recordID && op.Operation == operation &&
			op.State != models.RetryStateCompleted {
			op.Payload = payload
			op.ServerID = serverID
			if err := q.store.Save(op); err != nil {
				return "", fmt.Errorf("persist retry op: %w", err)
			}
			return op.ID, nil
		}
	}

	op := &models.RetryOp{
		ID:          uuid.New().String(),
		RecordTable: table,
		RecordID:    recordID,
		ServerID:    serverID,
		Operation:   operation,
		Payload:     payload,
		State:       models.RetryStatePending,
	}
	if err := q.store.Save(op); err != nil {
		return "", fmt.Errorf("persist retry op: %w", err)
	}
	q.ops[op.ID] = op
	return op.ID, nil
}

// Discard drops every non-completed operation queued for a record,
// returning how many were removed. Called when the ordinary push path
// has already reconciled the record, so a replay would duplicate it.
func (q *RetryQueue) Discard(table, recordID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, op := range q.ops {
		if op.RecordTable != table || op.RecordID != recordID || op.State == models.RetryStateCompleted {
			continue
		}
		if err := q.store.Delete(id); err != nil {
			log.Printf("⚠️ Failed to discard retry op %s: %v", id, err)
			continue
		}
		delete(q.ops, id)
		removed++
	}
	return removed
}

// Due returns pending operations whose backoff interval has elapsed,
// oldest attempt first.
func (q *RetryQueue) Due() []models.RetryOp {
	now := q.nowFunc().UnixMilli()

	q.mu.RLock()
	defer q.mu.RUnlock()

	var due []models.RetryOp
	for _, op := range q.ops {
		if op.State != models.RetryStatePending {
			continue
		}
		if op.LastAttemptAt == 0 || now-op.LastAttemptAt >= q.backoffDelay(op.Attempts) {
			due = append(due, *op)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].LastAttemptAt < due[j].LastAttemptAt })
	return due
}

// Begin marks an operation in-progress so concurrent drains skip it.
func (q *RetryQueue) Begin(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, ok := q.ops[id]
	if !ok {
		return fmt.Errorf("retry op %s not found", id)
	}
	if op.State != models.RetryStatePending {
		return fmt.Errorf("retry op %s is %s, not pending", id, op.State)
	}
	op.State = models.RetryStateInProgress
	return q.store.Save(op)
}

// Complete removes a finished operation from the queue.
func (q *RetryQueue) Complete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ops[id]; !ok {
		return fmt.Errorf("retry op %s not found", id)
	}
	delete(q.ops, id)
	return q.store.Delete(id)
}

// Fail records a failed attempt. Validation errors and exhausted
// attempts move the operation to the failed state; everything else
// goes back to pending for the next backoff window.
func (q *RetryQueue) Fail(id string, attemptErr error, category ErrorCategory) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, ok := q.ops[id]
	if !ok {
		return fmt.Errorf("retry op %s not found", id)
	}

	op.Attempts++
	op.LastAttemptAt = q.nowFunc().UnixMilli()
	msg := attemptErr.Error()
	op.LastError = &msg
	op.ErrorCategory = string(category)

	if category == CategoryValidation || op.Attempts >= q.cfg.MaxRetries {
		op.State = models.RetryStateFailed
		log.Printf("❌ Retry op %s (%s/%s) permanently failed after %d attempt(s): %v",
			op.ID, op.RecordTable, op.RecordID, op.Attempts, attemptErr)
	} else {
		op.State = models.RetryStatePending
	}
	return q.store.Save(op)
}

// Requeue moves a permanently failed operation back to pending with a
// fresh attempt budget, for operator-driven retries.
func (q *RetryQueue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, ok := q.ops[id]
	if !ok {
		return fmt.Errorf("retry op %s not found", id)
	}
	op.State = models.RetryStatePending
	op.Attempts = 0
	op.LastAttemptAt = 0
	return q.store.Save(op)
}

// Prune drops failed operations whose last attempt is older than the
// cutoff and returns how many were removed.
func (q *RetryQueue) Prune(cutoffMs int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, op := range q.ops {
		if op.State == models.RetryStateFailed && op.LastAttemptAt < cutoffMs {
			if err := q.store.Delete(id); err != nil {
				log.Printf("⚠️ Failed to prune retry op %s: %v", id, err)
				continue
			}
			delete(q.ops, id)
			removed++
		}
	}
	return removed
}

// Stats reports queue depth for diagnostics.
func (q *RetryQueue) Stats() RetryQueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := RetryQueueStats{ByTable: make(map[string]int)}
	for _, op := range q.ops {
		stats.Total++
		stats.ByTable[op.RecordTable]++
		switch op.State {
		case models.RetryStatePending:
			stats.Pending++
		case models.RetryStateInProgress:
			stats.InProgress++
		case models.RetryStateFailed:
			stats.Failed++
		}
		if op.LastAttemptAt > 0 && (stats.OldestMs == 0 || op.LastAttemptAt < stats.OldestMs) {
			stats.OldestMs = op.LastAttemptAt
		}
	}
	return stats
}

// backoffDelay doubles the wait per attempt, clamped to the maximum.
func (q *RetryQueue) backoffDelay(attempts int) int64 {
	delay := q.cfg.MinRetryIntervalMs
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= q.cfg.MaxRetryIntervalMs {
			return q.cfg.MaxRetryIntervalMs
		}
	}
	return delay
}
