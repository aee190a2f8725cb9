package models

// SyncStatus tracks whether a local record matches the last known server state
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
)

// Syncable holds the reconciliation fields shared by every synced entity.
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type Syncable struct {
	LocalID          string     `gorm:"primaryKey;type:uuid" json:"localId"`
	ServerID         *int64     `gorm:"index" json:"serverId,omitempty"`
	SyncStatus       SyncStatus `gorm:"type:varchar(20);default:'pending';index" json:"syncStatus"`
	LocalModifiedAt  int64      `gorm:"not null" json:"localModifiedAt"`  // epoch millis
	ServerModifiedAt *int64     `json:"serverModifiedAt,omitempty"`       // epoch millis, set once first synced
}

// IsSynced reports whether the record satisfies the synced invariant:
// server identity and server timestamp are both known and no local
// mutation happened after the last sync.
func (s *Syncable) IsSynced() bool {
	return s.SyncStatus == SyncStatusSynced && s.ServerID != nil && s.ServerModifiedAt != nil
}

// MarkPending flags a local mutation at the given epoch-millis timestamp.
func (s *Syncable) MarkPending(nowMs int64) {
	s.SyncStatus = SyncStatusPending
	s.LocalModifiedAt = nowMs
}

// MarkSynced records a successful reconciliation against the server.
func (s *Syncable) MarkSynced(serverID int64, serverModifiedMs int64) {
	s.ServerID = &serverID
	s.ServerModifiedAt = &serverModifiedMs
	s.SyncStatus = SyncStatusSynced
}
