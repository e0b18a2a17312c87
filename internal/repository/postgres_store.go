package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/raffchen/inventory/internal/db"
	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/query"
)

const uniqueViolation = "23505"

// PostgresStore runs units of work against PostgreSQL. Mutations use READ COMMITTED
// with row locks on the identity being changed; reads use read-only transactions.
type PostgresStore struct {
	conn *db.Connection
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(conn *db.Connection) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// Mutations lock their identity row with FOR UPDATE, so READ COMMITTED is enough.
// Reads run as one snapshot so a list's Count and Find see the same rows.
var (
	writeTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	readTxOptions  = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return classify(s.conn.WithTx(ctx, writeTxOptions, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	}))
}

func (s *PostgresStore) View(ctx context.Context, fn func(Reader) error) error {
	return classify(s.conn.WithTx(ctx, readTxOptions, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	}))
}

func (s *PostgresStore) Close() error {
	s.conn.Close()
	return nil
}

// classify maps driver errors onto the domain error kinds. Errors that already carry a
// domain kind pass through untouched.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && !errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.Detail)
	}
	return domain.Classify(err)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error) {
	return t.get(ctx, kind, id, false)
}

func (t *pgTx) GetForUpdate(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error) {
	return t.get(ctx, kind, id, true)
}

func (t *pgTx) get(ctx context.Context, kind *domain.Kind, id int64, lock bool) (domain.Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", columnList(kind), quoteIdent(kind.Table), quoteIdent(domain.FieldID))
	if lock {
		sql += " FOR UPDATE"
	}
	rec, err := scanRecord(kind, t.tx.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind.Name, id)
		}
		return domain.Record{}, classify(fmt.Errorf("failed to get %s %d: %w", kind.Name, id, err))
	}
	return rec, nil
}

func (t *pgTx) GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return []domain.Record{}, nil
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1) ORDER BY %s",
		columnList(kind), quoteIdent(kind.Table), quoteIdent(domain.FieldID), quoteIdent(domain.FieldID))
	return t.queryRecords(ctx, kind, sql, ids)
}

func (t *pgTx) Count(ctx context.Context, plan query.Plan) (int, error) {
	b := newSQLBuilder()
	sql := buildCount(plan, b)
	var total int64
	if err := t.tx.QueryRow(ctx, sql, b.args...).Scan(&total); err != nil {
		return 0, classify(fmt.Errorf("failed to count %s: %w", plan.Kind.Name, err))
	}
	return int(total), nil
}

func (t *pgTx) Find(ctx context.Context, plan query.Plan) ([]domain.Record, error) {
	b := newSQLBuilder()
	sql := buildSelect(plan, b)
	return t.queryRecords(ctx, plan.Kind, sql, b.args...)
}

func (t *pgTx) queryRecords(ctx context.Context, kind *domain.Kind, sql string, args ...any) ([]domain.Record, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list %s: %w", kind.Name, err))
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, classify(fmt.Errorf("failed to scan %s: %w", kind.Name, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("failed to iterate %s: %w", kind.Name, err))
	}
	return records, nil
}

func (t *pgTx) Insert(ctx context.Context, kind *domain.Kind, rec domain.Record) (domain.Record, error) {
	b := newSQLBuilder()
	cols := make([]string, 0, len(kind.Fields)+4)
	vals := make([]string, 0, len(kind.Fields)+4)
	if rec.ID != 0 {
		cols = append(cols, quoteIdent(domain.FieldID))
		vals = append(vals, b.bind(rec.ID))
	}
	for _, f := range kind.Fields {
		cols = append(cols, quoteIdent(f.Name))
		vals = append(vals, b.bind(sqlValue(rec.Values[f.Name])))
	}
	cols = append(cols, quoteIdent(domain.FieldCreatedAt), quoteIdent(domain.FieldUpdatedAt), quoteIdent(domain.FieldDeletedAt))
	vals = append(vals, b.bind(sqlValue(rec.CreatedAt)), b.bind(sqlValue(rec.UpdatedAt)), b.bind(deletedAtValue(rec)))

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(kind.Table), strings.Join(cols, ", "), strings.Join(vals, ", "), columnList(kind))
	stored, err := scanRecord(kind, t.tx.QueryRow(ctx, sql, b.args...))
	if err != nil {
		return domain.Record{}, classify(fmt.Errorf("failed to insert %s: %w", kind.Name, err))
	}

	if rec.ID != 0 {
		// Explicit ids bypass the identity sequence; move it past them so generated ids
		// never collide.
		sync := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', '%s'), GREATEST((SELECT MAX(%s) FROM %s), 1))",
			kind.Table, domain.FieldID, quoteIdent(domain.FieldID), quoteIdent(kind.Table))
		if _, err := t.tx.Exec(ctx, sync); err != nil {
			return domain.Record{}, classify(fmt.Errorf("failed to advance %s id sequence: %w", kind.Name, err))
		}
	}
	return stored, nil
}

func (t *pgTx) Update(ctx context.Context, kind *domain.Kind, rec domain.Record) error {
	b := newSQLBuilder()
	sets := make([]string, 0, len(kind.Fields)+2)
	for _, f := range kind.Fields {
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(f.Name), b.bind(sqlValue(rec.Values[f.Name]))))
	}
	sets = append(sets,
		fmt.Sprintf("%s = %s", quoteIdent(domain.FieldUpdatedAt), b.bind(sqlValue(rec.UpdatedAt))),
		fmt.Sprintf("%s = %s", quoteIdent(domain.FieldDeletedAt), b.bind(deletedAtValue(rec))),
	)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quoteIdent(kind.Table), strings.Join(sets, ", "), quoteIdent(domain.FieldID), b.bind(rec.ID))

	tag, err := t.tx.Exec(ctx, sql, b.args...)
	if err != nil {
		return classify(fmt.Errorf("failed to update %s %d: %w", kind.Name, rec.ID, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind.Name, rec.ID)
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, kind *domain.Kind, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	b := newSQLBuilder()
	rows := make([]string, len(entries))
	for i, e := range entries {
		rows[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s)",
			b.bind(e.RecordID), b.bind(e.Field), b.bind(e.OldValue), b.bind(e.NewValue),
			b.bind(string(e.Kind)), b.bind(sqlValue(e.Timestamp)), b.bind(e.Notes), b.bind(e.Source))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s, update_field, old_value, new_value, update_type, update_timestamp, update_notes, update_source) VALUES %s",
		quoteIdent(kind.HistoryTable), quoteIdent(kind.HistoryFK), strings.Join(rows, ", "))
	if _, err := t.tx.Exec(ctx, sql, b.args...); err != nil {
		return classify(fmt.Errorf("failed to append %s history: %w", kind.Name, err))
	}
	return nil
}

func (t *pgTx) History(ctx context.Context, kind *domain.Kind, id int64) ([]domain.HistoryEntry, error) {
	sql := fmt.Sprintf(`SELECT id, %s, update_field, old_value, new_value, update_type, update_timestamp, update_notes, update_source
		FROM %s WHERE %s = $1 ORDER BY id`,
		quoteIdent(kind.HistoryFK), quoteIdent(kind.HistoryTable), quoteIdent(kind.HistoryFK))
	rows, err := t.tx.Query(ctx, sql, id)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list %s history: %w", kind.Name, err))
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			e         domain.HistoryEntry
			eventKind string
			ts        pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Field, &e.OldValue, &e.NewValue, &eventKind, &ts, &e.Notes, &e.Source); err != nil {
			return nil, classify(fmt.Errorf("failed to scan %s history: %w", kind.Name, err))
		}
		e.Kind = domain.EventKind(eventKind)
		e.Timestamp = ts.Time.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("failed to iterate %s history: %w", kind.Name, err))
	}
	return entries, nil
}

func deletedAtValue(rec domain.Record) any {
	if rec.DeletedAt == nil {
		return pgtype.Timestamptz{}
	}
	return sqlValue(*rec.DeletedAt)
}
