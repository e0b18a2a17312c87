package repository

import (
	"context"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/query"
)

// Store is a transactional record store. Each unit of work runs in exactly one
// transaction; an error returned from fn rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Reader) error) error
	Close() error
}

// Reader defines the read operations available inside any transaction.
type Reader interface {
	query.Source

	// Get returns the record with id whether it is live or soft-deleted, or
	// domain.ErrNotFound when no row exists.
	Get(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error)
	// GetMany returns the rows that exist among ids, in ascending id order.
	GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error)
	// History lists a record's entries oldest first.
	History(ctx context.Context, kind *domain.Kind, id int64) ([]domain.HistoryEntry, error)
}

// Tx defines the mutating operations of a read-write transaction.
type Tx interface {
	Reader

	// GetForUpdate is Get that also locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error)
	// Insert stores a new row. A zero rec.ID asks the store to assign one; the stored
	// record is returned. An existing row with the same id yields domain.ErrAlreadyExists.
	Insert(ctx context.Context, kind *domain.Kind, rec domain.Record) (domain.Record, error)
	// Update overwrites every column of an existing row.
	Update(ctx context.Context, kind *domain.Kind, rec domain.Record) error
	AppendHistory(ctx context.Context, kind *domain.Kind, entries []domain.HistoryEntry) error
}
