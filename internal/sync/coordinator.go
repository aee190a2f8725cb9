package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opslink-dev/fieldsync/internal/config"
	"github.com/opslink-dev/fieldsync/internal/models"
)

// Remote is the central maintenance system the device reconciles with.
type Remote interface {
	Ping(ctx context.Context) error
	FetchRecord(ctx context.Context, table string, serverID int64) (RecordSnapshot, error)
	FetchChangedSince(ctx context.Context, table string, sinceMs int64) ([]RecordSnapshot, error)
	PushRecord(ctx context.Context, table string, serverID *int64, fields map[string]interface{}) (int64, error)
	UploadPhoto(ctx context.Context, upload models.Upload, progress func(bytesSent int64)) error
}

// LocalRecords exposes the device-local database to the coordinator.
type LocalRecords interface {
	PendingSnapshots(table string) ([]RecordSnapshot, error)
	Baseline(table, recordID string) (map[string]interface{}, error)
	ApplyMerged(table, recordID string, serverID int64, merged map[string]interface{}, serverModifiedAtMs int64) error
	ApplyRemote(table string, snap RecordSnapshot) error
	MarkSynced(table, recordID string, serverID int64, serverModifiedAtMs int64) error
	MarkConflict(table, recordID string) error
}

// StateStore persists per-table sync bookkeeping.
type StateStore interface {
	Get(table string) (*models.SyncState, error)
	Upsert(state *models.SyncState) error
	LastFullSync() (*time.Time, error)
}

// Events receives coordinator lifecycle notifications, typically the
// websocket hub.
type Events interface {
	Publish(event string, payload interface{})
}

// SyncRequest is one unit of work for the coordinator's worker.
type SyncRequest struct {
	Table    string
	RecordID string
	Full     bool
}

// SyncResult summarizes one drain.
type SyncResult struct {
	Success           bool
	RecordsSynced     int
	ConflictsFound    int
	ConflictsResolved int
	Errors            []error
	Duration          time.Duration
	Timestamp         time.Time
}

// syncedTables lists the tables the coordinator reconciles, in push order.
var syncedTables = []string{"assets", "work_orders", "meter_readings", "photos"}

// Coordinator orchestrates reconciliation between the device-local
// database and the central system: pushes pending records through the
// resolver, pulls server changes, drains the retry queue, and retries
// interrupted photo uploads.
type Coordinator struct {
	mu sync.RWMutex

	cfg      *config.SyncConfig
	remote   Remote
	local    LocalRecords
	states   StateStore
	resolver *Resolver
	retries  *RetryQueue
	uploads  *UploadTracker
	audit    *AuditLog
	errlog   *ErrorLog
	events   Events

	// State
	isRunning       bool
	syncInProgress  bool
	cancelRequested bool
	lastSync        time.Time
	inFlight        map[string]bool

	// Channels
	stopChan chan struct{}
	syncChan chan SyncRequest

	nowFunc func() time.Time
}

// CoordinatorDeps bundles the coordinator's collaborators.
type CoordinatorDeps struct {
	Remote   Remote
	Local    LocalRecords
	States   StateStore
	Resolver *Resolver
	Retries  *RetryQueue
	Uploads  *UploadTracker
	Audit    *AuditLog
	ErrorLog *ErrorLog
	Events   Events
}

func NewCoordinator(cfg *config.SyncConfig, deps CoordinatorDeps) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		remote:   deps.Remote,
		local:    deps.Local,
		states:   deps.States,
		resolver: deps.Resolver,
		retries:  deps.Retries,
		uploads:  deps.Uploads,
		audit:    deps.Audit,
		errlog:   deps.ErrorLog,
		events:   deps.Events,
		inFlight: make(map[string]bool),
		stopChan: make(chan struct{}),
		syncChan: make(chan SyncRequest, 100),
		nowFunc:  time.Now,
	}
}

// Start launches the worker and, when configured, the auto-sync loop
// and the startup drain.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return fmt.Errorf("sync coordinator already running")
	}
	c.isRunning = true
	log.Println("🔄 Sync Coordinator starting...")

	c.uploads.RecoverStale()

	go c.worker()

	if c.cfg.AutoSyncEnabled {
		go c.autoSyncLoop()
	}

	if c.cfg.SyncOnStartup {
		go func() {
			time.Sleep(5 * time.Second) // Wait for initialization
			c.RequestFullSync()
		}()
	}

	log.Println("✅ Sync Coordinator started")
	return nil
}

// Stop shuts the coordinator down and cancels any in-progress drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return
	}
	log.Println("🛑 Stopping Sync Coordinator...")
	c.isRunning = false
	c.cancelRequested = true
	close(c.stopChan)
	log.Println("✅ Sync Coordinator stopped")
}

// RequestFullSync queues a full drain of every synced table.
func (c *Coordinator) RequestFullSync() {
	log.Println("📥 Full sync requested")
	select {
	case c.syncChan <- SyncRequest{Full: true}:
	default:
		log.Println("⏳ Sync queue full, request dropped")
	}
}

// RequestRecordSync queues reconciliation of a single record.
func (c *Coordinator) RequestRecordSync(table, recordID string) {
	select {
	case c.syncChan <- SyncRequest{Table: table, RecordID: recordID}:
	default:
		log.Println("⏳ Sync queue full, request dropped")
	}
}

// RequestCancel asks an in-progress drain to stop after the current
// record finishes. Completed items stay completed.
func (c *Coordinator) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncInProgress {
		c.cancelRequested = true
		log.Println("🛑 Sync cancellation requested")
	}
}

func (c *Coordinator) worker() {
	for {
		select {
		case req := <-c.syncChan:
			c.process(req)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Coordinator) process(req SyncRequest) {
	c.mu.Lock()
	if c.syncInProgress {
		c.mu.Unlock()
		log.Println("⏳ Sync already in progress, skipping request")
		return
	}
	c.syncInProgress = true
	c.cancelRequested = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncInProgress = false
		c.cancelRequested = false
		c.lastSync = c.nowFunc()
		c.mu.Unlock()
	}()

	c.publish("sync_started", map[string]interface{}{"full": req.Full, "table": req.Table})

	var result *SyncResult
	if req.Full {
		result = c.performFullSync()
	} else {
		result = c.syncOneRecord(req.Table, req.RecordID)
	}

	log.Printf("✅ Sync completed in %v: %d record(s), %d conflict(s), %d error(s)",
		result.Duration, result.RecordsSynced, result.ConflictsFound, len(result.Errors))

	c.publish("sync_completed", map[string]interface{}{
		"success":    result.Success,
		"records":    result.RecordsSynced,
		"conflicts":  result.ConflictsFound,
		"errors":     len(result.Errors),
		"durationMs": result.Duration.Milliseconds(),
	})
}

func (c *Coordinator) performFullSync() *SyncResult {
	result := &SyncResult{Success: true, Timestamp: c.nowFunc()}
	ctx := context.Background()

	if err := c.remote.Ping(ctx); err != nil {
		log.Printf("⚠️ Remote unreachable, skipping sync: %v", err)
		c.errlog.Record(Categorize(err), err.Error(), "", "")
		result.Success = false
		result.Errors = append(result.Errors, err)
		result.Duration = time.Since(result.Timestamp)
		return result
	}

	for _, table := range syncedTables {
		if c.cancelled() {
			log.Println("🛑 Sync cancelled, stopping drain")
			break
		}
		synced, conflicts, tableErrs := c.pushTable(ctx, table)
		result.RecordsSynced += synced
		result.ConflictsFound += conflicts

		if !c.cancelled() {
			pulled, err := c.pullTable(ctx, table)
			result.RecordsSynced += pulled
			if err != nil {
				tableErrs = append(tableErrs, err)
			}
		}
		result.Errors = append(result.Errors, tableErrs...)
		c.recordTableState(table, synced, conflicts, tableErrs)
	}

	if !c.cancelled() {
		result.Errors = append(result.Errors, c.drainRetries(ctx)...)
		result.Errors = append(result.Errors, c.drainUploads(ctx)...)
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}
	if result.Success && !c.cancelled() {
		c.markFullSync()
	}
	result.Duration = time.Since(result.Timestamp)
	return result
}

// pushTable reconciles every locally pending record in a table.
func (c *Coordinator) pushTable(ctx context.Context, table string) (int, int, []error) {
	pending, err := c.local.PendingSnapshots(table)
	if err != nil {
		return 0, 0, []error{fmt.Errorf("load pending %s: %w", table, err)}
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	log.Printf("🔄 Syncing %d pending %s record(s)...", len(pending), table)

	synced, conflicts := 0, 0
	var errs []error
	for _, snap := range pending {
		if c.cancelled() {
			break
		}
		conflicted, err := c.syncRecord(ctx, table, snap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		synced++
		if conflicted {
			conflicts++
		}
	}
	return synced, conflicts, errs
}

// syncRecord pushes one pending record, resolving against the server
// copy when both sides changed. Returns whether a conflict was merged.
func (c *Coordinator) syncRecord(ctx context.Context, table string, snap RecordSnapshot) (bool, error) {
	key := table + "/" + snap.RecordID
	c.mu.Lock()
	if c.inFlight[key] {
		c.mu.Unlock()
		return false, nil
	}
	c.inFlight[key] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	fields := snap.Fields
	conflicted := false
	escalated := false

	if snap.ServerID != nil {
		serverSnap, err := c.remote.FetchRecord(ctx, table, *snap.ServerID)
		if err != nil {
			return false, c.recordFailure(table, snap, "push", err)
		}
		if serverSnap.ModifiedAt > snap.KnownServerModifiedAt {
			baseline, err := c.local.Baseline(table, snap.RecordID)
			if err != nil {
				return false, c.recordFailure(table, snap, "push", err)
			}
			outcome, err := c.resolver.Resolve(snap, serverSnap, baseline, "")
			if err != nil {
				return false, c.recordFailure(table, snap, "push", err)
			}
			fields = outcome.Merged
			if outcome.Entry != nil {
				conflicted = true
				if outcome.Escalated {
					escalated = true
					c.publish("conflict_escalated", map[string]interface{}{
						"conflictId": outcome.Entry.ID,
						"table":      table,
						"recordId":   snap.RecordID,
						"reasons":    outcome.Entry.Escalations,
					})
				}
			}
		}
	}

	serverID, err := c.remote.PushRecord(ctx, table, snap.ServerID, fields)
	if err != nil {
		return false, c.recordFailure(table, snap, "push", err)
	}

	now := c.nowFunc().UnixMilli()
	if conflicted {
		if err := c.local.ApplyMerged(table, snap.RecordID, serverID, fields, now); err != nil {
			return false, fmt.Errorf("apply merged %s: %w", key, err)
		}
		// Escalated records stay flagged for human review; MarkReviewed
		// clears the flag.
		if escalated {
			if err := c.local.MarkConflict(table, snap.RecordID); err != nil {
				log.Printf("⚠️ Could not flag %s as conflicted: %v", key, err)
			}
		}
	} else if err := c.local.MarkSynced(table, snap.RecordID, serverID, now); err != nil {
		return false, fmt.Errorf("mark synced %s: %w", key, err)
	}

	// Any op queued by an earlier failed attempt is now redundant
	if dropped := c.retries.Discard(table, snap.RecordID); dropped > 0 {
		log.Printf("🔄 Discarded %d superseded retry op(s) for %s", dropped, key)
	}
	return conflicted, nil
}

// pullTable applies server-side changes made since the last sync.
func (c *Coordinator) pullTable(ctx context.Context, table string) (int, error) {
	since := int64(0)
	if state, err := c.states.Get(table); err == nil && state != nil && state.LastSyncAt != nil {
		since = state.LastSyncAt.UnixMilli()
	}

	changed, err := c.remote.FetchChangedSince(ctx, table, since)
	if err != nil {
		c.errlog.Record(Categorize(err), err.Error(), table, "")
		return 0, fmt.Errorf("pull %s: %w", table, err)
	}

	applied := 0
	for _, snap := range changed {
		if c.cancelled() {
			break
		}
		if err := c.local.ApplyRemote(table, snap); err != nil {
			log.Printf("⚠️ Failed to apply remote %s/%s: %v", table, snap.RecordID, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		log.Printf("📥 Applied %d server change(s) to %s", applied, table)
	}
	return applied, nil
}

// recordFailure logs the error and queues the record for retry.
func (c *Coordinator) recordFailure(table string, snap RecordSnapshot, operation string, err error) error {
	category := Categorize(err)
	c.errlog.Record(category, err.Error(), table, snap.RecordID)

	payload, jerr := json.Marshal(snap.Fields)
	if jerr != nil {
		log.Printf("⚠️ Could not serialize payload for retry of %s/%s: %v", table, snap.RecordID, jerr)
		payload = nil
	}
	id, qerr := c.retries.Enqueue(table, snap.RecordID, operation, snap.ServerID, payload)
	if qerr != nil {
		log.Printf("⚠️ Could not queue retry for %s/%s: %v", table, snap.RecordID, qerr)
		return fmt.Errorf("sync %s/%s: %w", table, snap.RecordID, err)
	}
	if ferr := c.retries.Fail(id, err, category); ferr != nil {
		log.Printf("⚠️ Could not record retry attempt for %s/%s: %v", table, snap.RecordID, ferr)
	}
	return fmt.Errorf("sync %s/%s: %w", table, snap.RecordID, err)
}

// drainRetries re-attempts due queued operations.
func (c *Coordinator) drainRetries(ctx context.Context) []error {
	due := c.retries.Due()
	if len(due) == 0 {
		return nil
	}
	log.Printf("🔄 Draining %d due retry operation(s)...", len(due))

	var errs []error
	for _, op := range due {
		if c.cancelled() {
			break
		}
		if err := c.retries.Begin(op.ID); err != nil {
			continue
		}

		var fields map[string]interface{}
		if len(op.Payload) > 0 {
			if err := json.Unmarshal(op.Payload, &fields); err != nil {
				_ = c.retries.Fail(op.ID, fmt.Errorf("corrupt payload: %w", err), CategoryValidation)
				continue
			}
		}

		serverID, err := c.remote.PushRecord(ctx, op.RecordTable, op.ServerID, fields)
		if err != nil {
			category := Categorize(err)
			c.errlog.Record(category, err.Error(), op.RecordTable, op.RecordID)
			_ = c.retries.Fail(op.ID, err, category)
			errs = append(errs, fmt.Errorf("retry %s/%s: %w", op.RecordTable, op.RecordID, err))
			continue
		}
		if err := c.local.MarkSynced(op.RecordTable, op.RecordID, serverID, c.nowFunc().UnixMilli()); err != nil {
			log.Printf("⚠️ Replayed %s/%s but could not mark it synced: %v", op.RecordTable, op.RecordID, err)
		}
		if err := c.retries.Complete(op.ID); err != nil {
			log.Printf("⚠️ Could not complete retry op %s: %v", op.ID, err)
		}
	}
	return errs
}

// drainUploads re-attempts eligible photo uploads.
func (c *Coordinator) drainUploads(ctx context.Context) []error {
	eligible := c.uploads.Retryable()
	if len(eligible) == 0 {
		return nil
	}
	log.Printf("📤 Attempting %d photo upload(s)...", len(eligible))

	var errs []error
	for _, u := range eligible {
		if c.cancelled() {
			break
		}
		if err := c.uploads.Begin(u.PhotoID); err != nil {
			continue
		}
		photoID := u.PhotoID
		progress := func(bytesSent int64) { c.uploads.Progress(photoID, bytesSent) }
		if err := c.remote.UploadPhoto(ctx, u, progress); err != nil {
			c.errlog.Record(Categorize(err), err.Error(), "photos", u.PhotoID)
			_ = c.uploads.MarkFailed(u.PhotoID, err)
			errs = append(errs, fmt.Errorf("upload %s: %w", u.PhotoID, err))
			continue
		}
		if err := c.uploads.MarkCompleted(u.PhotoID); err != nil {
			log.Printf("⚠️ Could not mark upload %s completed: %v", u.PhotoID, err)
			continue
		}
		c.publish("upload_completed", map[string]interface{}{
			"photoId": u.PhotoID,
			"bytes":   u.SizeBytes,
		})
	}
	return errs
}

// syncOneRecord reconciles a single record outside a full drain.
func (c *Coordinator) syncOneRecord(table, recordID string) *SyncResult {
	result := &SyncResult{Success: true, Timestamp: c.nowFunc()}
	ctx := context.Background()

	pending, err := c.local.PendingSnapshots(table)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err)
		result.Duration = time.Since(result.Timestamp)
		return result
	}
	for _, snap := range pending {
		if snap.RecordID != recordID {
			continue
		}
		conflicted, err := c.syncRecord(ctx, table, snap)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err)
		} else {
			result.RecordsSynced = 1
			if conflicted {
				result.ConflictsFound = 1
			}
		}
		break
	}
	result.Duration = time.Since(result.Timestamp)
	return result
}

func (c *Coordinator) recordTableState(table string, synced, conflicts int, errs []error) {
	now := c.nowFunc()
	state := &models.SyncState{
		RecordTable:      table,
		LastSyncAt:       &now,
		LastSyncStatus:   "success",
		RecordsSynced:    synced,
		RecordsConflicts: conflicts,
	}
	if len(errs) > 0 {
		state.LastSyncStatus = "partial"
		msg := errs[len(errs)-1].Error()
		state.ErrorMessage = &msg
	}
	if err := c.states.Upsert(state); err != nil {
		log.Printf("⚠️ Could not persist sync state for %s: %v", table, err)
	}
}

func (c *Coordinator) markFullSync() {
	now := c.nowFunc()
	state := &models.SyncState{
		RecordTable:    models.FullSyncKey,
		LastSyncAt:     &now,
		LastFullSyncAt: &now,
		LastSyncStatus: "success",
	}
	if err := c.states.Upsert(state); err != nil {
		log.Printf("⚠️ Could not persist full sync marker: %v", err)
	}
}

func (c *Coordinator) autoSyncLoop() {
	ticker := time.NewTicker(time.Duration(c.cfg.AutoSyncInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.cfg.AutoSyncEnabled {
				log.Println("Auto-sync triggered")
				c.RequestFullSync()
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Coordinator) cancelled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelRequested
}

func (c *Coordinator) publish(event string, payload interface{}) {
	if c.events != nil {
		c.events.Publish(event, payload)
	}
}

// Status reports the coordinator's current state for the API.
func (c *Coordinator) Status() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lastFull, _ := c.states.LastFullSync()
	return map[string]interface{}{
		"is_running":       c.isRunning,
		"sync_in_progress": c.syncInProgress,
		"last_sync":        c.lastSync,
		"last_full_sync":   lastFull,
		"retry_queue":      c.retries.Stats(),
		"uploads":          c.uploads.Stats(),
		"conflicts":        c.audit.Stats(),
	}
}
