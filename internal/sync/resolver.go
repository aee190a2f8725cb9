package sync

import (
	"fmt"
	"log"
	"time"
)

// RecordSnapshot is one side's view of a record at reconciliation time.
// Fields holds the mutable columns keyed by column name; ModifiedAt is
// the epoch-millis write timestamp of that side.
type RecordSnapshot struct {
	TableName  string
	RecordID   string
	ServerID   *int64
	ModifiedAt int64
	Fields     map[string]interface{}

	// KnownServerModifiedAt is the server write timestamp recorded at
	// the last successful sync. Only set on local snapshots; a newer
	// server timestamp means both sides changed.
	KnownServerModifiedAt int64
}

// MergeOutcome is the result of reconciling one record. Merged carries
// the final field values to write on both sides. Entry is nil when the
// two snapshots agreed on every tracked field.
type MergeOutcome struct {
	Merged    map[string]interface{}
	Entry     *ConflictLogEntry
	Escalated bool
}

// ResolverConfig tunes the escalation predicates.
type ResolverConfig struct {
	// BackdatedCompletionThresholdMs flags local completions claiming a
	// completion time this far before the server's last known write.
	BackdatedCompletionThresholdMs int64
}

// DefaultBackdatedCompletionThresholdMs is 24 hours.
const DefaultBackdatedCompletionThresholdMs = int64(24 * time.Hour / time.Millisecond)

// Resolver merges a locally modified record against the server copy
// field by field, logging every non-trivial merge to the audit log.
type Resolver struct {
	audit  *AuditLog
	schema map[string][]FieldSpec
	cfg    ResolverConfig
}

func NewResolver(audit *AuditLog, cfg ResolverConfig) *Resolver {
	if cfg.BackdatedCompletionThresholdMs <= 0 {
		cfg.BackdatedCompletionThresholdMs = DefaultBackdatedCompletionThresholdMs
	}
	return &Resolver{
		audit:  audit,
		schema: defaultSchema(),
		cfg:    cfg,
	}
}

// Resolve reconciles the local and server snapshots of one record.
// baseline holds the field values at the last successful sync; a nil
// baseline treats every differing field as locally modified. A non-nil
// error means the merge could not be computed and the record's sync
// must fail; other records are unaffected.
func (r *Resolver) Resolve(local, server RecordSnapshot, baseline map[string]interface{}, syncUserID string) (*MergeOutcome, error) {
	specs, ok := r.schema[local.TableName]
	if !ok {
		return nil, fmt.Errorf("no field schema for table %s", local.TableName)
	}

	merged := make(map[string]interface{}, len(server.Fields))
	for k, v := range server.Fields {
		merged[k] = v
	}

	var resolutions []FieldResolution
	for _, spec := range specs {
		lv, lok := local.Fields[spec.Name]
		sv, sok := server.Fields[spec.Name]
		if !lok || !sok {
			continue
		}
		if valuesEqual(lv, sv) {
			continue
		}
		if baseline != nil && valuesEqual(lv, baseline[spec.Name]) {
			// Only the server moved; its value stands.
			continue
		}

		res, err := r.applyRule(spec, lv, sv, local.ModifiedAt, server.ModifiedAt)
		if err != nil {
			entry := ConflictLogEntry{
				TableName:    local.TableName,
				RecordID:     local.RecordID,
				ServerID:     server.ServerID,
				Resolutions:  resolutions,
				AutoResolved: false,
				SyncUserID:   syncUserID,
				Error:        err.Error(),
			}
			if id := r.audit.Append(entry); id != "" {
				log.Printf("❌ Merge failed for %s/%s: %v (conflict %s)", local.TableName, local.RecordID, err, id)
			}
			return nil, fmt.Errorf("merge %s/%s field %s: %w", local.TableName, local.RecordID, spec.Name, err)
		}
		resolutions = append(resolutions, res)
		merged[spec.Name] = res.FinalValue
	}

	if len(resolutions) == 0 {
		return &MergeOutcome{Merged: merged}, nil
	}

	escalations := r.escalations(local, server)
	entry := ConflictLogEntry{
		TableName:    local.TableName,
		RecordID:     local.RecordID,
		ServerID:     server.ServerID,
		Resolutions:  resolutions,
		Escalations:  escalations,
		AutoResolved: len(escalations) == 0,
		SyncUserID:   syncUserID,
	}
	entry.ID = r.audit.Append(entry)

	if len(escalations) > 0 {
		log.Printf("⚠️ Conflict on %s/%s escalated for review: %v", local.TableName, local.RecordID, escalations)
	} else {
		log.Printf("🔀 Auto-resolved %d field conflict(s) on %s/%s", len(resolutions), local.TableName, local.RecordID)
	}

	return &MergeOutcome{
		Merged:    merged,
		Entry:     &entry,
		Escalated: len(escalations) > 0,
	}, nil
}

func (r *Resolver) applyRule(spec FieldSpec, lv, sv interface{}, localTs, serverTs int64) (FieldResolution, error) {
	res := FieldResolution{
		Field:       spec.Name,
		Rule:        spec.Rule,
		LocalValue:  lv,
		ServerValue: sv,
	}

	switch spec.Rule {
	case RuleServerWins:
		res.FinalValue = sv
		res.Source = SourceServer

	case RuleLatestTimestampWins:
		if localTs >= serverTs {
			res.FinalValue = lv
			res.Source = SourceLocal
		} else {
			res.FinalValue = sv
			res.Source = SourceServer
		}

	case RuleCompletionWins:
		lTerm, sTerm := isTerminalStatus(lv), isTerminalStatus(sv)
		switch {
		case lTerm && !sTerm:
			res.FinalValue = lv
			res.Source = SourceLocal
		case sTerm && !lTerm:
			res.FinalValue = sv
			res.Source = SourceServer
		default:
			if _, ok := lv.(string); !ok {
				return res, fmt.Errorf("status value %v (%T) is not a string", lv, lv)
			}
			if _, ok := sv.(string); !ok {
				return res, fmt.Errorf("status value %v (%T) is not a string", sv, sv)
			}
			// Both terminal or neither; fall back to the later writer.
			if localTs >= serverTs {
				res.FinalValue = lv
				res.Source = SourceLocal
			} else {
				res.FinalValue = sv
				res.Source = SourceServer
			}
		}

	default:
		return res, fmt.Errorf("unknown resolution rule %q", spec.Rule)
	}

	return res, nil
}

// escalations evaluates the review predicates for work orders. Other
// tables never escalate.
func (r *Resolver) escalations(local, server RecordSnapshot) []string {
	if local.TableName != "work_orders" {
		return nil
	}

	var out []string
	lStatus := local.Fields["status"]
	sStatus := server.Fields["status"]

	if isTerminalStatus(lStatus) && isTerminalStatus(sStatus) {
		notesDiffer := !valuesEqual(local.Fields["completion_notes"], server.Fields["completion_notes"])
		timesDiffer := !valuesEqual(local.Fields["completed_at"], server.Fields["completed_at"])
		if notesDiffer || timesDiffer {
			out = append(out, EscalationCompletionConflict)
		}
	}

	if isTerminalStatus(lStatus) {
		if completedAt, ok := toMillis(local.Fields["completed_at"]); ok && completedAt > 0 {
			if server.ModifiedAt-completedAt > r.cfg.BackdatedCompletionThresholdMs {
				out = append(out, EscalationBackdatedCompletion)
			}
		}
	}

	return out
}
