package sync

import (
	"fmt"

	"github.com/google/uuid"
)

// FieldResolution records how one divergent field was merged
type FieldResolution struct {
	Field       string         `json:"field"`
	Rule        ResolutionRule `json:"rule"`
	LocalValue  interface{}    `json:"localValue"`
	ServerValue interface{}    `json:"serverValue"`
	FinalValue  interface{}    `json:"finalValue"`
	Source      ValueSource    `json:"source"`
}

// ConflictLogEntry is one record in the conflict audit history. Entries
// are immutable once appended except for the review fields, which a human
// reviewer sets through MarkReviewed.
type ConflictLogEntry struct {
	ID           string            `json:"id"`
	Timestamp    int64             `json:"timestamp"` // epoch millis
	TableName    string            `json:"tableName"`
	RecordID     string            `json:"recordId"`
	ServerID     *int64            `json:"serverId,omitempty"`
	Resolutions  []FieldResolution `json:"resolutions"`
	Escalations  []string          `json:"escalations,omitempty"`
	AutoResolved bool              `json:"autoResolved"`
	SyncUserID   string            `json:"syncUserId,omitempty"`
	Error        string            `json:"error,omitempty"`
	ReviewedAt   *int64            `json:"reviewedAt,omitempty"`
	ReviewedBy   string            `json:"reviewedBy,omitempty"`
	ReviewNotes  string            `json:"reviewNotes,omitempty"`
}

// newEntryID builds a time-prefixed unique token so ids sort by creation
func newEntryID(nowMs int64) string {
	return fmt.Sprintf("%d-%s", nowMs, uuid.New().String())
}
