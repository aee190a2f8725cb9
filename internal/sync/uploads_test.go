package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/opslink-dev/fieldsync/internal/models"
)

func newTestUploadTracker(t *testing.T) (*UploadTracker, *memUploadStore, *fixedClock) {
	t.Helper()
	store := newMemUploadStore()
	tr, err := NewUploadTracker(store, UploadTrackerConfig{})
	if err != nil {
		t.Fatalf("NewUploadTracker failed: %v", err)
	}
	clock := newFixedClock(1_700_000_000_000)
	tr.nowFunc = clock.Now
	return tr, store, clock
}

func TestUploadTrackIsIdempotent(t *testing.T) {
	tr, _, _ := newTestUploadTracker(t)

	u1, err := tr.Track("ph-1", "/photos/a.jpg", "abc123", 2048)
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	_ = tr.Begin("ph-1")

	u2, err := tr.Track("ph-1", "/photos/other.jpg", "zzz", 1)
	if err != nil {
		t.Fatalf("second Track failed: %v", err)
	}
	if u1.PhotoID != u2.PhotoID || u2.FilePath != "/photos/a.jpg" {
		t.Error("re-tracking must return the existing entry unchanged")
	}
	if tr.Stats().Total != 1 {
		t.Errorf("expected 1 tracked upload, got %d", tr.Stats().Total)
	}
}

func TestUploadLifecycle(t *testing.T) {
	tr, store, _ := newTestUploadTracker(t)

	_, _ = tr.Track("ph-1", "/photos/a.jpg", "abc123", 2048)
	if err := tr.Begin("ph-1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	got, ok := tr.Get("ph-1")
	if !ok || got.State != models.UploadStateUploading || got.Attempts != 1 {
		t.Fatalf("unexpected state after Begin: %+v", got)
	}

	tr.Progress("ph-1", 1024)
	got, _ = tr.Get("ph-1")
	if got.BytesSent != 1024 {
		t.Errorf("expected 1024 bytes sent, got %d", got.BytesSent)
	}

	if err := tr.MarkCompleted("ph-1"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	got, _ = tr.Get("ph-1")
	if got.State != models.UploadStateCompleted || got.BytesSent != 2048 {
		t.Errorf("unexpected completed state: %+v", got)
	}
	if store.uploads["ph-1"].State != models.UploadStateCompleted {
		t.Error("completion must be persisted")
	}
}

func TestUploadMarkFailedRetryBudget(t *testing.T) {
	tr, _, clock := newTestUploadTracker(t)

	_, _ = tr.Track("ph-1", "/photos/a.jpg", "abc123", 2048)

	for i := 0; i < DefaultMaxUploadAttempts-1; i++ {
		_ = tr.Begin("ph-1")
		_ = tr.MarkFailed("ph-1", errors.New("connection reset"))
		got, _ := tr.Get("ph-1")
		if got.State != models.UploadStatePending {
			t.Fatalf("attempt %d: expected pending, got %s", i+1, got.State)
		}
		clock.Advance(time.Hour)
	}

	_ = tr.Begin("ph-1")
	_ = tr.MarkFailed("ph-1", errors.New("connection reset"))
	got, _ := tr.Get("ph-1")
	if got.State != models.UploadStateFailed {
		t.Errorf("expected failed after %d attempts, got %s", DefaultMaxUploadAttempts, got.State)
	}
	if tr.CanRetry("ph-1") {
		t.Error("exhausted upload must not be retryable")
	}
}

func TestUploadCanRetry(t *testing.T) {
	tr, _, clock := newTestUploadTracker(t)

	_, _ = tr.Track("ph-1", "/photos/a.jpg", "abc123", 2048)
	if !tr.CanRetry("ph-1") {
		t.Error("never-attempted upload should be retryable")
	}

	_ = tr.Begin("ph-1")
	if tr.CanRetry("ph-1") {
		t.Error("in-flight upload must not be retryable")
	}

	_ = tr.MarkFailed("ph-1", errors.New("timeout"))
	if tr.CanRetry("ph-1") {
		t.Error("retry inside the minimum interval must wait")
	}

	clock.Advance(time.Minute)
	if !tr.CanRetry("ph-1") {
		t.Error("retry past the minimum interval should be allowed")
	}

	if tr.CanRetry("ph-unknown") {
		t.Error("unknown photo must not be retryable")
	}
}

func TestUploadRetryableList(t *testing.T) {
	tr, _, _ := newTestUploadTracker(t)

	_, _ = tr.Track("ph-1", "/a.jpg", "h1", 1)
	_, _ = tr.Track("ph-2", "/b.jpg", "h2", 1)
	_ = tr.Begin("ph-2") // in flight

	got := tr.Retryable()
	if len(got) != 1 || got[0].PhotoID != "ph-1" {
		t.Errorf("expected only ph-1 retryable, got %+v", got)
	}
}

func TestUploadRecoverStale(t *testing.T) {
	tr, _, clock := newTestUploadTracker(t)

	_, _ = tr.Track("ph-stale", "/a.jpg", "h1", 100)
	_ = tr.Begin("ph-stale")
	tr.Progress("ph-stale", 50)

	_, _ = tr.Track("ph-fresh", "/b.jpg", "h2", 100)

	clock.Advance(11 * time.Minute)
	_ = tr.Begin("ph-fresh")

	if recovered := tr.RecoverStale(); recovered != 1 {
		t.Fatalf("expected 1 recovered, got %d", recovered)
	}

	got, _ := tr.Get("ph-stale")
	if got.State != models.UploadStatePending || got.BytesSent != 0 {
		t.Errorf("stale upload should reset to pending with no progress, got %+v", got)
	}
	got, _ = tr.Get("ph-fresh")
	if got.State != models.UploadStateUploading {
		t.Error("recent in-flight upload must be left alone")
	}
}

func TestUploadPruneRetention(t *testing.T) {
	tr, _, clock := newTestUploadTracker(t)

	_, _ = tr.Track("ph-done", "/a.jpg", "h1", 100)
	_ = tr.Begin("ph-done")
	_ = tr.MarkCompleted("ph-done")

	_, _ = tr.Track("ph-pending", "/b.jpg", "h2", 100)

	clock.Advance(8 * 24 * time.Hour)

	if removed := tr.Prune(); removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	if _, ok := tr.Get("ph-done"); ok {
		t.Error("old completed upload should be pruned")
	}
	if _, ok := tr.Get("ph-pending"); !ok {
		t.Error("pending upload must survive pruning regardless of age")
	}
}

func TestUploadTrackerLoadsPersistedState(t *testing.T) {
	store := newMemUploadStore()
	store.uploads["ph-1"] = models.Upload{
		PhotoID:  "ph-1",
		FilePath: "/a.jpg",
		State:    models.UploadStatePending,
	}

	tr, err := NewUploadTracker(store, UploadTrackerConfig{})
	if err != nil {
		t.Fatalf("NewUploadTracker failed: %v", err)
	}
	if _, ok := tr.Get("ph-1"); !ok {
		t.Error("tracker should load persisted uploads")
	}
}

func TestUploadStats(t *testing.T) {
	tr, _, _ := newTestUploadTracker(t)

	_, _ = tr.Track("ph-1", "/a.jpg", "h1", 100)
	_, _ = tr.Track("ph-2", "/b.jpg", "h2", 200)
	_ = tr.Begin("ph-2")
	_, _ = tr.Track("ph-3", "/c.jpg", "h3", 300)
	_ = tr.Begin("ph-3")
	_ = tr.MarkCompleted("ph-3")

	stats := tr.Stats()
	if stats.Total != 3 || stats.Pending != 1 || stats.Uploading != 1 || stats.Completed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.BytesTotal != 600 {
		t.Errorf("expected 600 bytes total, got %d", stats.BytesTotal)
	}
}
