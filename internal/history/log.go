package history

import (
	"context"
	"fmt"
	"time"

	"github.com/raffchen/inventory/internal/domain"
)

// Appender persists history entries inside the caller's transaction.
type Appender interface {
	AppendHistory(ctx context.Context, kind *domain.Kind, entries []domain.HistoryEntry) error
}

// Event describes one lifecycle transition to be logged.
type Event struct {
	RecordID   int64
	Kind       domain.EventKind
	At         time.Time
	Changes    []domain.FieldChange
	Annotation domain.Annotation
}

// Append writes one entry per change of ev. It must run inside the same transaction as
// the record mutation it documents. An event without changes writes nothing.
func Append(ctx context.Context, w Appender, kind *domain.Kind, ev Event) error {
	if len(ev.Changes) == 0 {
		return nil
	}
	entries, err := Entries(kind, ev)
	if err != nil {
		return err
	}
	if err := w.AppendHistory(ctx, kind, entries); err != nil {
		return fmt.Errorf("append %s history for %d: %w", kind.Name, ev.RecordID, err)
	}
	return nil
}

// Entries materialises the history rows for ev, checking every field name against the
// kind's history enumeration.
func Entries(kind *domain.Kind, ev Event) ([]domain.HistoryEntry, error) {
	entries := make([]domain.HistoryEntry, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		if !kind.IsHistoryField(c.Field) {
			return nil, fmt.Errorf("%q is not a history field of %s", c.Field, kind.Name)
		}
		entries = append(entries, domain.HistoryEntry{
			RecordID:  ev.RecordID,
			Field:     c.Field,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			Kind:      ev.Kind,
			Timestamp: ev.At,
			Notes:     ev.Annotation.Notes,
			Source:    ev.Annotation.Source,
		})
	}
	return entries, nil
}

// CreateChanges lists every business field of a fresh record, old value null.
func CreateChanges(kind *domain.Kind, rec domain.Record) []domain.FieldChange {
	out := make([]domain.FieldChange, 0, len(kind.Fields))
	for _, f := range kind.Fields {
		out = append(out, domain.FieldChange{Field: f.Name, NewValue: f.Format(rec.Values[f.Name])})
	}
	return out
}

// DeleteChanges documents a soft delete at the given time.
func DeleteChanges(deletedAt time.Time) []domain.FieldChange {
	ts := domain.FormatTimestamp(deletedAt)
	return []domain.FieldChange{{Field: domain.FieldDeletedAt, NewValue: &ts}}
}

// ResurrectChanges lists the fields a resurrecting create overwrote, followed by the
// deleted_at transition back to null.
func ResurrectChanges(prior domain.Record, changes []Change) []domain.FieldChange {
	out := FieldChanges(changes)
	var old *string
	if prior.DeletedAt != nil {
		ts := domain.FormatTimestamp(*prior.DeletedAt)
		old = &ts
	}
	return append(out, domain.FieldChange{Field: domain.FieldDeletedAt, OldValue: old})
}
