package domain

import "time"

// EventKind is the lifecycle transition a history entry documents.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// HistoryEntry is one immutable field-level change of a record.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	RecordID  int64     `json:"record_id"`
	Field     string    `json:"update_field"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	Kind      EventKind `json:"update_type"`
	Timestamp time.Time `json:"update_timestamp"`
	Notes     *string   `json:"update_notes,omitempty"`
	Source    *string   `json:"update_source,omitempty"`
}

// FieldChange is a single differing field produced by the diff engine.
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

// Annotation carries the administrative notes attached to an update.
type Annotation struct {
	Notes  *string
	Source *string
}
