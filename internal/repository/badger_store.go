package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/query"
)

// BadgerStore keeps records and history as JSON documents in an embedded badger
// database. Transactions are badger's serializable snapshot transactions; a write
// conflict at commit surfaces as domain.ErrStorage and is not retried.
//
// Key layout:
//
//	rec/<table>/<id>            record document
//	hist/<table>/<id>/<seq>     history entry
//	seq/<table>                 last assigned record id
//	seq/<history table>         last assigned history id
//
// Numeric key parts are big-endian so prefix scans come back in ascending order.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open badger database.
func NewBadgerStore(bdb *badger.DB) *BadgerStore {
	return &BadgerStore{db: bdb}
}

func (s *BadgerStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return domain.Classify(s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	}))
}

func (s *BadgerStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return domain.Classify(s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	}))
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// recordDoc is the stored form of a record. Field values use their canonical text form
// so decimals keep their exact scale.
type recordDoc struct {
	ID        int64              `json:"id"`
	Values    map[string]*string `json:"values"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	DeletedAt *time.Time         `json:"deleted_at,omitempty"`
}

func encodeRecord(kind *domain.Kind, rec domain.Record) ([]byte, error) {
	doc := recordDoc{
		ID:        rec.ID,
		Values:    make(map[string]*string, len(kind.Fields)),
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		DeletedAt: rec.DeletedAt,
	}
	for _, f := range kind.Fields {
		doc.Values[f.Name] = f.Format(rec.Values[f.Name])
	}
	return json.Marshal(doc)
}

func decodeRecord(kind *domain.Kind, raw []byte) (domain.Record, error) {
	var doc recordDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Record{}, fmt.Errorf("decode %s document: %w", kind.Name, err)
	}
	rec := domain.Record{
		ID:        doc.ID,
		Values:    make(map[string]any, len(kind.Fields)),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if doc.DeletedAt != nil {
		t := doc.DeletedAt.UTC()
		rec.DeletedAt = &t
	}
	for _, f := range kind.Fields {
		v, err := f.Parse(doc.Values[f.Name])
		if err != nil {
			return domain.Record{}, fmt.Errorf("decode %s %d: %w", kind.Name, doc.ID, err)
		}
		rec.Values[f.Name] = v
	}
	return rec, nil
}

func recordPrefix(kind *domain.Kind) []byte {
	return []byte("rec/" + kind.Table + "/")
}

func recordKey(kind *domain.Kind, id int64) []byte {
	return binary.BigEndian.AppendUint64(recordPrefix(kind), uint64(id))
}

func historyPrefix(kind *domain.Kind, recordID int64) []byte {
	key := binary.BigEndian.AppendUint64([]byte("hist/"+kind.Table+"/"), uint64(recordID))
	return append(key, '/')
}

func sequenceKey(table string) []byte {
	return []byte("seq/" + table)
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) Get(_ context.Context, kind *domain.Kind, id int64) (domain.Record, error) {
	item, err := t.txn.Get(recordKey(kind, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind.Name, id)
		}
		return domain.Record{}, fmt.Errorf("get %s %d: %w", kind.Name, id, err)
	}
	var rec domain.Record
	err = item.Value(func(val []byte) error {
		rec, err = decodeRecord(kind, val)
		return err
	})
	return rec, err
}

// GetForUpdate relies on badger conflict detection: the read is tracked by the
// transaction, so a concurrent commit to the same key aborts this one.
func (t *badgerTx) GetForUpdate(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error) {
	return t.Get(ctx, kind, id)
}

func (t *badgerTx) GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	records := make([]domain.Record, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		rec, err := t.Get(ctx, kind, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// scan decodes every record of kind that satisfies cond, in id order.
func (t *badgerTx) scan(kind *domain.Kind, cond query.Condition) ([]domain.Record, error) {
	prefix := recordPrefix(kind)
	it := t.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	records := make([]domain.Record, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec domain.Record
		err := it.Item().Value(func(val []byte) error {
			var err error
			rec, err = decodeRecord(kind, val)
			return err
		})
		if err != nil {
			return nil, err
		}
		if query.Match(cond, rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (t *badgerTx) Count(_ context.Context, plan query.Plan) (int, error) {
	records, err := t.scan(plan.Kind, plan.Where)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (t *badgerTx) Find(_ context.Context, plan query.Plan) ([]domain.Record, error) {
	records, err := t.scan(plan.Kind, plan.Where)
	if err != nil {
		return nil, err
	}
	query.SortRecords(records, plan.Order)
	return query.Window(records, plan.Offset, plan.Limit), nil
}

func (t *badgerTx) Insert(ctx context.Context, kind *domain.Kind, rec domain.Record) (domain.Record, error) {
	last, err := t.sequence(kind.Table)
	if err != nil {
		return domain.Record{}, err
	}

	if rec.ID == 0 {
		rec.ID = last + 1
	} else {
		_, err := t.txn.Get(recordKey(kind, rec.ID))
		switch {
		case err == nil:
			return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrAlreadyExists, kind.Name, rec.ID)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return domain.Record{}, fmt.Errorf("check %s %d: %w", kind.Name, rec.ID, err)
		}
	}
	if rec.ID > last {
		if err := t.setSequence(kind.Table, rec.ID); err != nil {
			return domain.Record{}, err
		}
	}

	if err := t.put(kind, rec); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (t *badgerTx) Update(ctx context.Context, kind *domain.Kind, rec domain.Record) error {
	if _, err := t.Get(ctx, kind, rec.ID); err != nil {
		return err
	}
	return t.put(kind, rec)
}

func (t *badgerTx) put(kind *domain.Kind, rec domain.Record) error {
	raw, err := encodeRecord(kind, rec)
	if err != nil {
		return fmt.Errorf("encode %s %d: %w", kind.Name, rec.ID, err)
	}
	if err := t.txn.Set(recordKey(kind, rec.ID), raw); err != nil {
		return fmt.Errorf("store %s %d: %w", kind.Name, rec.ID, err)
	}
	return nil
}

func (t *badgerTx) AppendHistory(_ context.Context, kind *domain.Kind, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	last, err := t.sequence(kind.HistoryTable)
	if err != nil {
		return err
	}
	for _, e := range entries {
		last++
		e.ID = last
		e.Timestamp = e.Timestamp.UTC()
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s history: %w", kind.Name, err)
		}
		key := binary.BigEndian.AppendUint64(historyPrefix(kind, e.RecordID), uint64(e.ID))
		if err := t.txn.Set(key, raw); err != nil {
			return fmt.Errorf("store %s history: %w", kind.Name, err)
		}
	}
	return t.setSequence(kind.HistoryTable, last)
}

func (t *badgerTx) History(_ context.Context, kind *domain.Kind, id int64) ([]domain.HistoryEntry, error) {
	prefix := historyPrefix(kind, id)
	it := t.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 50, Prefix: prefix})
	defer it.Close()

	entries := make([]domain.HistoryEntry, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var e domain.HistoryEntry
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
			return nil, fmt.Errorf("decode %s history: %w", kind.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (t *badgerTx) sequence(name string) (int64, error) {
	item, err := t.txn.Get(sequenceKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s sequence: %w", name, err)
	}
	var last int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt %s sequence", name)
		}
		last = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return last, err
}

func (t *badgerTx) setSequence(name string, last int64) error {
	if err := t.txn.Set(sequenceKey(name), binary.BigEndian.AppendUint64(nil, uint64(last))); err != nil {
		return fmt.Errorf("write %s sequence: %w", name, err)
	}
	return nil
}
