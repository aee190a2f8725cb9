package sync

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opslink-dev/fieldsync/internal/models"
)

// UploadStore persists tracked photo uploads across restarts.
type UploadStore interface {
	LoadAll() ([]models.Upload, error)
	Save(u *models.Upload) error
	Delete(photoID string) error
}

// UploadTrackerConfig bounds attempts and defines staleness.
type UploadTrackerConfig struct {
	MaxAttempts        int
	MinRetryIntervalMs int64
	StaleThresholdMs   int64
	RetentionMs        int64
}

const (
	DefaultMaxUploadAttempts      = 5
	DefaultUploadStaleThresholdMs = int64(10 * time.Minute / time.Millisecond)
	DefaultUploadRetentionMs      = int64(7 * 24 * time.Hour / time.Millisecond)
)

// UploadStats summarizes tracked uploads for diagnostics.
type UploadStats struct {
	Total      int   `json:"total"`
	Pending    int   `json:"pending"`
	Uploading  int   `json:"uploading"`
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	BytesTotal int64 `json:"bytesTotal"`
}

// UploadTracker follows each photo upload through its lifecycle so an
// interrupted transfer is retried instead of lost.
type UploadTracker struct {
	mu      sync.RWMutex
	store   UploadStore
	uploads map[string]*models.Upload
	cfg     UploadTrackerConfig
	nowFunc func() time.Time
}

func NewUploadTracker(store UploadStore, cfg UploadTrackerConfig) (*UploadTracker, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxUploadAttempts
	}
	if cfg.MinRetryIntervalMs <= 0 {
		cfg.MinRetryIntervalMs = DefaultMinRetryIntervalMs
	}
	if cfg.StaleThresholdMs <= 0 {
		cfg.StaleThresholdMs = DefaultUploadStaleThresholdMs
	}
	if cfg.RetentionMs <= 0 {
		cfg.RetentionMs = DefaultUploadRetentionMs
	}

	t := &UploadTracker{
		store:   store,
		uploads: make(map[string]*models.Upload),
		cfg:     cfg,
		nowFunc: time.Now,
	}

	loaded, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load upload tracker: %w", err)
	}
	for i := range loaded {
		u := loaded[i]
		t.uploads[u.PhotoID] = &u
	}
	return t, nil
}

// Track registers a photo for upload. Tracking the same photo twice is
// a no-op that returns the existing entry.
func (t *UploadTracker) Track(photoID, filePath, contentHash string, sizeBytes int64) (*models.Upload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.uploads[photoID]; ok {
		return existing, nil
	}

	u := &models.Upload{
		PhotoID:     photoID,
		FilePath:    filePath,
		ContentHash: contentHash,
		SizeBytes:   sizeBytes,
		State:       models.UploadStatePending,
	}
	if err := t.store.Save(u); err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	t.uploads[photoID] = u
	return u, nil
}

// Begin marks an upload in-flight and counts the attempt.
func (t *UploadTracker) Begin(photoID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.uploads[photoID]
	if !ok {
		return fmt.Errorf("upload %s not tracked", photoID)
	}
	u.State = models.UploadStateUploading
	u.Attempts++
	u.LastAttemptAt = t.nowFunc().UnixMilli()
	return t.store.Save(u)
}

// Progress records bytes sent so far for an in-flight upload.
func (t *UploadTracker) Progress(photoID string, bytesSent int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u, ok := t.uploads[photoID]; ok {
		u.BytesSent = bytesSent
	}
}

// MarkCompleted finalizes a successful upload.
func (t *UploadTracker) MarkCompleted(photoID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.uploads[photoID]
	if !ok {
		return fmt.Errorf("upload %s not tracked", photoID)
	}
	u.State = models.UploadStateCompleted
	u.BytesSent = u.SizeBytes
	u.LastError = nil
	return t.store.Save(u)
}

// MarkFailed records a failed attempt. The upload stays retryable
// until its attempt budget is spent.
func (t *UploadTracker) MarkFailed(photoID string, attemptErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.uploads[photoID]
	if !ok {
		return fmt.Errorf("upload %s not tracked", photoID)
	}
	msg := attemptErr.Error()
	u.LastError = &msg
	if u.Attempts >= t.cfg.MaxAttempts {
		u.State = models.UploadStateFailed
		log.Printf("❌ Upload %s permanently failed after %d attempt(s): %v", photoID, u.Attempts, attemptErr)
	} else {
		u.State = models.UploadStatePending
	}
	return t.store.Save(u)
}

// CanRetry reports whether an upload is eligible for another attempt:
// still under budget and past the minimum retry interval.
func (t *UploadTracker) CanRetry(photoID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.uploads[photoID]
	if !ok {
		return false
	}
	if u.State != models.UploadStatePending || u.Attempts >= t.cfg.MaxAttempts {
		return false
	}
	if u.LastAttemptAt == 0 {
		return true
	}
	return t.nowFunc().UnixMilli()-u.LastAttemptAt >= t.cfg.MinRetryIntervalMs
}

// Retryable returns all uploads currently eligible for an attempt.
func (t *UploadTracker) Retryable() []models.Upload {
	now := t.nowFunc().UnixMilli()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []models.Upload
	for _, u := range t.uploads {
		if u.State != models.UploadStatePending || u.Attempts >= t.cfg.MaxAttempts {
			continue
		}
		if u.LastAttemptAt != 0 && now-u.LastAttemptAt < t.cfg.MinRetryIntervalMs {
			continue
		}
		out = append(out, *u)
	}
	return out
}

// RecoverStale resets uploads stuck in the uploading state past the
// stale threshold, typically after a crash mid-transfer. Returns the
// number of uploads recovered.
func (t *UploadTracker) RecoverStale() int {
	now := t.nowFunc().UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	recovered := 0
	for _, u := range t.uploads {
		if u.State != models.UploadStateUploading {
			continue
		}
		if now-u.LastAttemptAt < t.cfg.StaleThresholdMs {
			continue
		}
		u.State = models.UploadStatePending
		u.BytesSent = 0
		if err := t.store.Save(u); err != nil {
			log.Printf("⚠️ Failed to recover stale upload %s: %v", u.PhotoID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Printf("🔄 Recovered %d stale upload(s)", recovered)
	}
	return recovered
}

// Prune drops completed and failed uploads older than the retention
// window and returns how many were removed.
func (t *UploadTracker) Prune() int {
	cutoff := t.nowFunc().UnixMilli() - t.cfg.RetentionMs

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, u := range t.uploads {
		if u.State != models.UploadStateCompleted && u.State != models.UploadStateFailed {
			continue
		}
		if u.LastAttemptAt >= cutoff {
			continue
		}
		if err := t.store.Delete(id); err != nil {
			log.Printf("⚠️ Failed to prune upload %s: %v", id, err)
			continue
		}
		delete(t.uploads, id)
		removed++
	}
	return removed
}

// Get returns a copy of one tracked upload.
func (t *UploadTracker) Get(photoID string) (models.Upload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.uploads[photoID]
	if !ok {
		return models.Upload{}, false
	}
	return *u, true
}

// Stats reports tracker totals for diagnostics.
func (t *UploadTracker) Stats() UploadStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var stats UploadStats
	for _, u := range t.uploads {
		stats.Total++
		stats.BytesTotal += u.SizeBytes
		switch u.State {
		case models.UploadStatePending:
			stats.Pending++
		case models.UploadStateUploading:
			stats.Uploading++
		case models.UploadStateCompleted:
			stats.Completed++
		case models.UploadStateFailed:
			stats.Failed++
		}
	}
	return stats
}
