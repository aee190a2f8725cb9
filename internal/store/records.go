package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/sync"
)

// Records adapts the GORM entity tables to the coordinator: it lists
// pending records as snapshots, applies merge results, and keeps a
// per-record baseline of the field values at the last successful sync.
type Records struct {
	db          *database.DB
	collections *Collections
}

func NewRecords(db *database.DB, collections *Collections) *Records {
	return &Records{db: db, collections: collections}
}

func baselineNamespace(table, recordID string) string {
	return fmt.Sprintf("baseline/%s/%s", table, recordID)
}

// PendingSnapshots lists locally modified records awaiting sync.
func (r *Records) PendingSnapshots(table string) ([]sync.RecordSnapshot, error) {
	switch table {
	case "work_orders":
		var rows []models.WorkOrder
		if err := r.db.DB.Where("sync_status = ?", models.SyncStatusPending).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to load pending work orders: %w", err)
		}
		snaps := make([]sync.RecordSnapshot, 0, len(rows))
		for i := range rows {
			snaps = append(snaps, snapshotOf(table, &rows[i].Syncable, workOrderFields(&rows[i])))
		}
		return snaps, nil

	case "assets":
		var rows []models.Asset
		if err := r.db.DB.Where("sync_status = ?", models.SyncStatusPending).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to load pending assets: %w", err)
		}
		snaps := make([]sync.RecordSnapshot, 0, len(rows))
		for i := range rows {
			snaps = append(snaps, snapshotOf(table, &rows[i].Syncable, assetFields(&rows[i])))
		}
		return snaps, nil

	case "meter_readings":
		var rows []models.MeterReading
		if err := r.db.DB.Where("sync_status = ?", models.SyncStatusPending).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to load pending meter readings: %w", err)
		}
		snaps := make([]sync.RecordSnapshot, 0, len(rows))
		for i := range rows {
			snaps = append(snaps, snapshotOf(table, &rows[i].Syncable, meterReadingFields(&rows[i])))
		}
		return snaps, nil

	case "photos":
		var rows []models.Photo
		if err := r.db.DB.Where("sync_status = ?", models.SyncStatusPending).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to load pending photos: %w", err)
		}
		snaps := make([]sync.RecordSnapshot, 0, len(rows))
		for i := range rows {
			snaps = append(snaps, snapshotOf(table, &rows[i].Syncable, photoFields(&rows[i])))
		}
		return snaps, nil
	}
	return nil, fmt.Errorf("unknown table %s", table)
}

// Baseline returns the field values recorded at the last successful
// sync, or nil when the record was never synced.
func (r *Records) Baseline(table, recordID string) (map[string]interface{}, error) {
	data, err := r.collections.Load(baselineNamespace(table, recordID))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		// A corrupt baseline degrades to conservative conflict detection
		return nil, nil
	}
	return fields, nil
}

func (r *Records) saveBaseline(table, recordID string, fields map[string]interface{}) {
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	// Best-effort: a missing baseline only widens conflict detection
	_ = r.collections.Save(baselineNamespace(table, recordID), data)
}

// ApplyMerged writes the merge result back to the local row and marks
// it synced against the given server state.
func (r *Records) ApplyMerged(table, recordID string, serverID int64, merged map[string]interface{}, serverModifiedAtMs int64) error {
	if err := r.applyFields(table, recordID, merged); err != nil {
		return err
	}
	return r.MarkSynced(table, recordID, serverID, serverModifiedAtMs)
}

// ApplyRemote writes a server-side change into the local database,
// creating the row when the record is new to this device.
func (r *Records) ApplyRemote(table string, snap sync.RecordSnapshot) error {
	if snap.ServerID == nil {
		return fmt.Errorf("remote snapshot for %s has no server id", table)
	}

	localID, err := r.localIDForServer(table, *snap.ServerID)
	if err != nil {
		return err
	}
	if localID == "" {
		localID, err = r.createFromRemote(table, snap)
		if err != nil {
			return err
		}
	} else {
		// Locally pending rows are handled by the push path, not overwritten here
		if pending, err := r.isPending(table, localID); err != nil || pending {
			return err
		}
		if err := r.applyFields(table, localID, snap.Fields); err != nil {
			return err
		}
	}

	return r.MarkSynced(table, localID, *snap.ServerID, snap.ModifiedAt)
}

// MarkSynced updates the reconciliation columns and refreshes the
// baseline so the next divergence check compares against exactly what
// the server last accepted.
func (r *Records) MarkSynced(table, recordID string, serverID int64, serverModifiedAtMs int64) error {
	updates := map[string]interface{}{
		"sync_status":        models.SyncStatusSynced,
		"server_id":          serverID,
		"server_modified_at": serverModifiedAtMs,
	}
	tx := r.db.DB.Table(table).Where("local_id = ?", recordID).Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("failed to mark %s/%s synced: %w", table, recordID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("record %s/%s not found", table, recordID)
	}

	if fields, err := r.currentFields(table, recordID); err == nil {
		r.saveBaseline(table, recordID, fields)
	}
	return nil
}

// MarkConflict flags a record for human review after an escalated merge.
func (r *Records) MarkConflict(table, recordID string) error {
	tx := r.db.DB.Table(table).Where("local_id = ?", recordID).
		Update("sync_status", models.SyncStatusConflict)
	if tx.Error != nil {
		return fmt.Errorf("failed to flag %s/%s: %w", table, recordID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("record %s/%s not found", table, recordID)
	}
	return nil
}

// ClearConflict returns a reviewed record to the synced state. A record
// that is not flagged is left untouched.
func (r *Records) ClearConflict(table, recordID string) error {
	tx := r.db.DB.Table(table).
		Where("local_id = ? AND sync_status = ?", recordID, models.SyncStatusConflict).
		Update("sync_status", models.SyncStatusSynced)
	if tx.Error != nil {
		return fmt.Errorf("failed to clear conflict on %s/%s: %w", table, recordID, tx.Error)
	}
	return nil
}

func (r *Records) localIDForServer(table string, serverID int64) (string, error) {
	var row struct {
		LocalID string
	}
	tx := r.db.DB.Table(table).Select("local_id").Where("server_id = ?", serverID).Limit(1).Scan(&row)
	if tx.Error != nil {
		return "", fmt.Errorf("failed to look up %s by server id %d: %w", table, serverID, tx.Error)
	}
	return row.LocalID, nil
}

func (r *Records) isPending(table, recordID string) (bool, error) {
	var row struct {
		SyncStatus string
	}
	tx := r.db.DB.Table(table).Select("sync_status").Where("local_id = ?", recordID).Limit(1).Scan(&row)
	if tx.Error != nil {
		return false, tx.Error
	}
	return row.SyncStatus == string(models.SyncStatusPending), nil
}

func (r *Records) createFromRemote(table string, snap sync.RecordSnapshot) (string, error) {
	localID := uuid.New().String()
	base := models.Syncable{
		LocalID:         localID,
		ServerID:        snap.ServerID,
		SyncStatus:      models.SyncStatusSynced,
		LocalModifiedAt: snap.ModifiedAt,
	}
	base.ServerModifiedAt = &snap.ModifiedAt

	var err error
	switch table {
	case "work_orders":
		row := models.WorkOrder{Syncable: base}
		setWorkOrderFields(&row, snap.Fields)
		err = r.db.DB.Create(&row).Error
	case "assets":
		row := models.Asset{Syncable: base}
		setAssetFields(&row, snap.Fields)
		err = r.db.DB.Create(&row).Error
	case "meter_readings":
		row := models.MeterReading{Syncable: base}
		setMeterReadingFields(&row, snap.Fields)
		err = r.db.DB.Create(&row).Error
	case "photos":
		row := models.Photo{Syncable: base}
		setPhotoFields(&row, snap.Fields)
		err = r.db.DB.Create(&row).Error
	default:
		return "", fmt.Errorf("unknown table %s", table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s from remote: %w", table, err)
	}
	return localID, nil
}

func (r *Records) applyFields(table, recordID string, fields map[string]interface{}) error {
	switch table {
	case "work_orders":
		var row models.WorkOrder
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load %s/%s: %w", table, recordID, err)
		}
		setWorkOrderFields(&row, fields)
		return r.db.DB.Save(&row).Error
	case "assets":
		var row models.Asset
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load %s/%s: %w", table, recordID, err)
		}
		setAssetFields(&row, fields)
		return r.db.DB.Save(&row).Error
	case "meter_readings":
		var row models.MeterReading
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load %s/%s: %w", table, recordID, err)
		}
		setMeterReadingFields(&row, fields)
		return r.db.DB.Save(&row).Error
	case "photos":
		var row models.Photo
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load %s/%s: %w", table, recordID, err)
		}
		setPhotoFields(&row, fields)
		return r.db.DB.Save(&row).Error
	}
	return fmt.Errorf("unknown table %s", table)
}

// currentFields reads a record's syncable field values as stored.
func (r *Records) currentFields(table, recordID string) (map[string]interface{}, error) {
	switch table {
	case "work_orders":
		var row models.WorkOrder
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return nil, err
		}
		return workOrderFields(&row), nil
	case "assets":
		var row models.Asset
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return nil, err
		}
		return assetFields(&row), nil
	case "meter_readings":
		var row models.MeterReading
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return nil, err
		}
		return meterReadingFields(&row), nil
	case "photos":
		var row models.Photo
		if err := r.db.DB.Where("local_id = ?", recordID).First(&row).Error; err != nil {
			return nil, err
		}
		return photoFields(&row), nil
	}
	return nil, fmt.Errorf("unknown table %s", table)
}

func snapshotOf(table string, base *models.Syncable, fields map[string]interface{}) sync.RecordSnapshot {
	snap := sync.RecordSnapshot{
		TableName:  table,
		RecordID:   base.LocalID,
		ServerID:   base.ServerID,
		ModifiedAt: base.LocalModifiedAt,
		Fields:     fields,
	}
	if base.ServerModifiedAt != nil {
		snap.KnownServerModifiedAt = *base.ServerModifiedAt
	}
	return snap
}

func workOrderFields(w *models.WorkOrder) map[string]interface{} {
	fields := map[string]interface{}{
		"title":            w.Title,
		"description":      w.Description,
		"status":           string(w.Status),
		"priority":         w.Priority,
		"assigned_to":      w.AssignedTo,
		"completion_notes": w.CompletionNotes,
		"completed_by":     w.CompletedBy,
	}
	if w.CompletedAt != nil {
		fields["completed_at"] = *w.CompletedAt
	}
	if w.DueAt != nil {
		fields["due_at"] = *w.DueAt
	}
	return fields
}

func setWorkOrderFields(w *models.WorkOrder, fields map[string]interface{}) {
	if v, ok := getString(fields, "title"); ok {
		w.Title = v
	}
	if v, ok := getString(fields, "description"); ok {
		w.Description = v
	}
	if v, ok := getString(fields, "status"); ok {
		w.Status = models.WorkOrderStatus(v)
	}
	if v, ok := getInt(fields, "priority"); ok {
		w.Priority = v
	}
	if v, ok := getString(fields, "assigned_to"); ok {
		w.AssignedTo = v
	}
	if v, ok := getString(fields, "completion_notes"); ok {
		w.CompletionNotes = v
	}
	if v, ok := getInt64(fields, "completed_at"); ok {
		w.CompletedAt = &v
	}
	if v, ok := getString(fields, "completed_by"); ok {
		w.CompletedBy = v
	}
	if v, ok := getInt64(fields, "due_at"); ok {
		w.DueAt = &v
	}
}

func assetFields(a *models.Asset) map[string]interface{} {
	return map[string]interface{}{
		"name":        a.Name,
		"location":    a.Location,
		"category":    a.Category,
		"criticality": a.Criticality,
		"notes":       a.Notes,
	}
}

func setAssetFields(a *models.Asset, fields map[string]interface{}) {
	if v, ok := getString(fields, "name"); ok {
		a.Name = v
	}
	if v, ok := getString(fields, "location"); ok {
		a.Location = v
	}
	if v, ok := getString(fields, "category"); ok {
		a.Category = v
	}
	if v, ok := getInt(fields, "criticality"); ok {
		a.Criticality = v
	}
	if v, ok := getString(fields, "notes"); ok {
		a.Notes = v
	}
}

func meterReadingFields(m *models.MeterReading) map[string]interface{} {
	return map[string]interface{}{
		"value":   m.Value,
		"unit":    m.Unit,
		"read_at": m.ReadAt,
		"read_by": m.ReadBy,
	}
}

func setMeterReadingFields(m *models.MeterReading, fields map[string]interface{}) {
	if v, ok := getFloat(fields, "value"); ok {
		m.Value = v
	}
	if v, ok := getString(fields, "unit"); ok {
		m.Unit = v
	}
	if v, ok := getInt64(fields, "read_at"); ok {
		m.ReadAt = v
	}
	if v, ok := getString(fields, "read_by"); ok {
		m.ReadBy = v
	}
}

func photoFields(p *models.Photo) map[string]interface{} {
	return map[string]interface{}{
		"content_hash": p.ContentHash,
		"size_bytes":   p.SizeBytes,
		"captured_at":  p.CapturedAt,
		"captured_by":  p.CapturedBy,
	}
}

func setPhotoFields(p *models.Photo, fields map[string]interface{}) {
	if v, ok := getString(fields, "content_hash"); ok {
		p.ContentHash = v
	}
	if v, ok := getInt64(fields, "size_bytes"); ok {
		p.SizeBytes = v
	}
	if v, ok := getInt64(fields, "captured_at"); ok {
		p.CapturedAt = v
	}
	if v, ok := getString(fields, "captured_by"); ok {
		p.CapturedBy = v
	}
}

func getString(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func getFloat(m map[string]interface{}, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func getInt(m map[string]interface{}, key string) (int, bool) {
	f, ok := getFloat(m, key)
	return int(f), ok
}

func getInt64(m map[string]interface{}, key string) (int64, bool) {
	f, ok := getFloat(m, key)
	return int64(f), ok
}
