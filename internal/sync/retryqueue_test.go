package sync

import (
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/opslink-dev/fieldsync/internal/models"
)

func newTestRetryQueue(t *testing.T) (*RetryQueue, *memRetryStore, *fixedClock) {
	t.Helper()
	store := newMemRetryStore()
	q, err := NewRetryQueue(store, RetryQueueConfig{})
	if err != nil {
		t.Fatalf("NewRetryQueue failed: %v", err)
	}
	clock := newFixedClock(1_700_000_000_000)
	q.nowFunc = clock.Now
	return q, store, clock
}

func TestRetryQueueEnqueueAndCoalesce(t *testing.T) {
	q, store, _ := newTestRetryQueue(t)

	id1, err := q.Enqueue("work_orders", "wo-1", "push", nil, datatypes.JSON(`{"status":"completed"}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	id2, err := q.Enqueue("work_orders", "wo-1", "push", nil, datatypes.JSON(`{"status":"cancelled"}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected coalesced enqueue to reuse id %s, got %s", id1, id2)
	}
	if got := q.Stats().Total; got != 1 {
		t.Errorf("expected 1 queued op, got %d", got)
	}
	if string(store.ops[id1].Payload) != `{"status":"cancelled"}` {
		t.Error("expected coalesce to keep the newest payload")
	}

	// A different record queues separately
	id3, _ := q.Enqueue("work_orders", "wo-2", "push", nil, nil)
	if id3 == id1 {
		t.Error("distinct records must not coalesce")
	}
}

func TestRetryQueueDueRespectsBackoff(t *testing.T) {
	q, _, clock := newTestRetryQueue(t)

	id, _ := q.Enqueue("work_orders", "wo-1", "push", nil, nil)

	// Never attempted: due immediately
	if len(q.Due()) != 1 {
		t.Fatal("fresh op should be due")
	}

	if err := q.Begin(id); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := q.Fail(id, errors.New("connection timeout"), CategoryTransient); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	// Backoff window not yet elapsed
	clock.Advance(10 * time.Second)
	if len(q.Due()) != 0 {
		t.Error("op should not be due inside the backoff window")
	}

	clock.Advance(55 * time.Second) // past 2x min interval after one attempt
	if len(q.Due()) != 1 {
		t.Error("op should be due after the backoff window")
	}
}

func TestRetryQueueBackoffIsMonotonicAndCapped(t *testing.T) {
	q, _, _ := newTestRetryQueue(t)

	prev := int64(0)
	for attempts := 0; attempts < 12; attempts++ {
		delay := q.backoffDelay(attempts)
		if delay < prev {
			t.Fatalf("backoff shrank: attempt %d gave %d after %d", attempts, delay, prev)
		}
		if delay > DefaultMaxRetryIntervalMs {
			t.Fatalf("backoff exceeded cap: %d", delay)
		}
		prev = delay
	}
	if q.backoffDelay(0) != DefaultMinRetryIntervalMs {
		t.Errorf("first delay should be the floor, got %d", q.backoffDelay(0))
	}
	if q.backoffDelay(20) != DefaultMaxRetryIntervalMs {
		t.Errorf("deep retries should hit the cap, got %d", q.backoffDelay(20))
	}
}

func TestRetryQueueLifecycle(t *testing.T) {
	q, store, _ := newTestRetryQueue(t)

	id, _ := q.Enqueue("assets", "as-1", "push", nil, nil)
	if err := q.Begin(id); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	// In-progress ops are not due and cannot begin twice
	if len(q.Due()) != 0 {
		t.Error("in-progress op must not be due")
	}
	if err := q.Begin(id); err == nil {
		t.Error("expected second Begin to fail")
	}

	if err := q.Complete(id); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if q.Stats().Total != 0 {
		t.Error("completed op should leave the queue")
	}
	if _, ok := store.ops[id]; ok {
		t.Error("completed op should leave the store")
	}
}

func TestRetryQueueValidationFailsImmediately(t *testing.T) {
	q, _, _ := newTestRetryQueue(t)

	id, _ := q.Enqueue("work_orders", "wo-1", "push", nil, nil)
	_ = q.Begin(id)
	if err := q.Fail(id, errors.New("invalid field: status"), CategoryValidation); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	stats := q.Stats()
	if stats.Failed != 1 || stats.Pending != 0 {
		t.Errorf("validation failure should be terminal, got %+v", stats)
	}
}

func TestRetryQueueExhaustsAttempts(t *testing.T) {
	q, _, clock := newTestRetryQueue(t)

	id, _ := q.Enqueue("work_orders", "wo-1", "push", nil, nil)
	for i := 0; i < DefaultMaxRetries; i++ {
		_ = q.Begin(id)
		if err := q.Fail(id, errors.New("connection timeout"), CategoryTransient); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
		clock.Advance(2 * time.Hour)
	}

	stats := q.Stats()
	if stats.Failed != 1 {
		t.Errorf("expected op failed after %d attempts, got %+v", DefaultMaxRetries, stats)
	}

	// Operator requeue gives it a fresh budget
	if err := q.Requeue(id); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if len(q.Due()) != 1 {
		t.Error("requeued op should be due immediately")
	}
}

func TestRetryQueueRecoversStaleOps(t *testing.T) {
	store := newMemRetryStore()
	store.ops["op-1"] = models.RetryOp{
		ID:          "op-1",
		RecordTable: "work_orders",
		RecordID:    "wo-1",
		Operation:   "push",
		State:       models.RetryStateInProgress,
	}

	q, err := NewRetryQueue(store, RetryQueueConfig{})
	if err != nil {
		t.Fatalf("NewRetryQueue failed: %v", err)
	}
	stats := q.Stats()
	if stats.Pending != 1 || stats.InProgress != 0 {
		t.Errorf("expected stale op recovered to pending, got %+v", stats)
	}
	if store.ops["op-1"].State != models.RetryStatePending {
		t.Error("recovery must be persisted")
	}
}

func TestRetryQueuePrune(t *testing.T) {
	q, _, clock := newTestRetryQueue(t)

	id, _ := q.Enqueue("work_orders", "wo-1", "push", nil, nil)
	_ = q.Begin(id)
	_ = q.Fail(id, errors.New("invalid field"), CategoryValidation)

	keep, _ := q.Enqueue("work_orders", "wo-2", "push", nil, nil)

	cutoff := clock.Now().UnixMilli() + 1
	if removed := q.Prune(cutoff); removed != 1 {
		t.Errorf("expected 1 pruned, got %d", removed)
	}
	if q.Stats().Total != 1 {
		t.Error("pending ops must survive pruning")
	}
	if _, ok := q.ops[keep]; !ok {
		t.Error("pending op was pruned")
	}
}

func TestRetryQueueCarriesServerID(t *testing.T) {
	q, store, _ := newTestRetryQueue(t)

	serverID := int64(42)
	id, err := q.Enqueue("work_orders", "wo-1", "push", &serverID, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	got := store.ops[id].ServerID
	if got == nil || *got != 42 {
		t.Fatalf("expected persisted op to carry server id 42, got %v", got)
	}

	// The server id sticks when a later failure coalesces onto the op
	if _, err := q.Enqueue("work_orders", "wo-1", "push", &serverID, datatypes.JSON(`{"status":"done"}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	got = store.ops[id].ServerID
	if got == nil || *got != 42 {
		t.Errorf("coalesce dropped the server id, got %v", got)
	}
}

func TestRetryQueueDiscardDropsSupersededOps(t *testing.T) {
	q, store, _ := newTestRetryQueue(t)

	id, _ := q.Enqueue("work_orders", "wo-1", "push", nil, nil)
	other, _ := q.Enqueue("work_orders", "wo-2", "push", nil, nil)

	if dropped := q.Discard("work_orders", "wo-1"); dropped != 1 {
		t.Fatalf("expected 1 discarded op, got %d", dropped)
	}
	if _, ok := q.ops[id]; ok {
		t.Error("discarded op still in the queue")
	}
	if _, ok := store.ops[id]; ok {
		t.Error("discarded op still persisted")
	}
	if _, ok := q.ops[other]; !ok {
		t.Error("unrelated op must survive a discard")
	}

	if dropped := q.Discard("work_orders", "wo-missing"); dropped != 0 {
		t.Errorf("expected no-op discard, got %d", dropped)
	}
}
