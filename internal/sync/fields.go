package sync

import "reflect"

// FieldSpec binds one mutable field to its merge rule. The schema below
// is the declarative column mapping the resolver walks per table; order
// is preserved in the emitted resolutions.
type FieldSpec struct {
	Name string
	Rule ResolutionRule
}

// defaultSchema maps each synced table to its mutable fields.
// Status and completion fields prefer forward progress, free-form fields
// prefer the most recent writer, and server-applied numerics are
// authoritative on the server side.
func defaultSchema() map[string][]FieldSpec {
	return map[string][]FieldSpec{
		"work_orders": {
			{Name: "title", Rule: RuleLatestTimestampWins},
			{Name: "description", Rule: RuleLatestTimestampWins},
			{Name: "status", Rule: RuleCompletionWins},
			{Name: "priority", Rule: RuleLatestTimestampWins},
			{Name: "assigned_to", Rule: RuleLatestTimestampWins},
			{Name: "completion_notes", Rule: RuleLatestTimestampWins},
			{Name: "completed_at", Rule: RuleLatestTimestampWins},
			{Name: "completed_by", Rule: RuleLatestTimestampWins},
			{Name: "due_at", Rule: RuleServerWins},
		},
		"assets": {
			{Name: "name", Rule: RuleLatestTimestampWins},
			{Name: "location", Rule: RuleLatestTimestampWins},
			{Name: "category", Rule: RuleServerWins},
			{Name: "criticality", Rule: RuleServerWins},
			{Name: "notes", Rule: RuleLatestTimestampWins},
		},
		"meter_readings": {
			{Name: "value", Rule: RuleServerWins},
			{Name: "unit", Rule: RuleServerWins},
			{Name: "read_at", Rule: RuleServerWins},
			{Name: "read_by", Rule: RuleLatestTimestampWins},
		},
		"photos": {
			{Name: "content_hash", Rule: RuleServerWins},
			{Name: "size_bytes", Rule: RuleServerWins},
			{Name: "captured_by", Rule: RuleLatestTimestampWins},
		},
	}
}

// terminalStatuses are work order states that represent finished work
var terminalStatuses = map[string]bool{
	"completed": true,
	"cancelled": true,
}

func isTerminalStatus(v interface{}) bool {
	s, ok := v.(string)
	return ok && terminalStatuses[s]
}

// valuesEqual compares two field values, normalizing numerics so that
// e.g. an int64 from the local store equals a float64 from the wire.
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toMillis reads a field value as an epoch-millis timestamp
func toMillis(v interface{}) (int64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
