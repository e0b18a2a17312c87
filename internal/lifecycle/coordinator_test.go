package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/raffchen/inventory/internal/db"
	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/repository"
)

// stepClock advances one second per call so every transition gets a distinct time.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	bdb, err := db.OpenBadger(db.BadgerConfig{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	store := repository.NewBadgerStore(bdb)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestCoordinator(t *testing.T) (*Coordinator, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewCoordinator(newTestStore(t), WithClock(clock.now)), clock
}

func product(name string, quantity int64) []domain.FieldValue {
	return []domain.FieldValue{
		{Field: "name", Value: name},
		{Field: "quantity", Value: quantity},
	}
}

func mustHistory(t *testing.T, c *Coordinator, kind *domain.Kind, id int64) []domain.HistoryEntry {
	t.Helper()
	entries, err := c.History(context.Background(), kind, id)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	return entries
}

func TestCreate_EmitsOneEntryPerBusinessField(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Create(ctx, domain.Lenses, 4, []domain.FieldValue{
		{Field: "lens_type", Value: "SV"},
		{Field: "sphere", Value: json.Number("-1.5")},
		{Field: "cylinder", Value: "0"},
		{Field: "unit_price", Value: json.Number("12.5")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transition != TransitionCreate || res.Record.ID != 4 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.Record.Values["quantity"] != int64(0) {
		t.Fatalf("expected lens quantity default 0, got %v", res.Record.Values["quantity"])
	}

	entries := mustHistory(t, c, domain.Lenses, 4)
	if len(entries) != len(domain.Lenses.Fields) {
		t.Fatalf("expected %d create entries, got %d", len(domain.Lenses.Fields), len(entries))
	}
	for _, e := range entries {
		if e.Kind != domain.EventCreate || e.OldValue != nil {
			t.Fatalf("unexpected create entry: %#v", e)
		}
		if e.Field == "sphere" && *e.NewValue != "-1.50" {
			t.Fatalf("expected sphere -1.50, got %q", *e.NewValue)
		}
	}
}

func TestCreate_LiveCollisionIsAlreadyExists(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.Create(ctx, domain.Products, 1, product("tape", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.Create(ctx, domain.Products, 1, product("glue", 2))
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	rec, err := c.Get(ctx, domain.Products, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Values["name"] != "tape" {
		t.Fatalf("collision must not mutate the record, got %v", rec.Values["name"])
	}
	if n := len(mustHistory(t, c, domain.Products, 1)); n != 3 {
		t.Fatalf("collision must not write history, got %d entries", n)
	}
}

func TestCreate_RejectsIncompletePayload(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Create(context.Background(), domain.Products, 1, []domain.FieldValue{{Field: "name", Value: "tape"}})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestCreate_AssignsID(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Create(ctx, domain.Products, 0, product("a", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Create(ctx, domain.Products, 0, product("b", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Record.ID == 0 || second.Record.ID <= first.Record.ID {
		t.Fatalf("expected increasing generated ids, got %d and %d", first.Record.ID, second.Record.ID)
	}
}

func TestDeleteThenRecreateResurrects(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.Create(ctx, domain.Products, 1, product("tape", 5)); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	deleted, err := c.Delete(ctx, domain.Products, 1)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	deletedAt := domain.FormatTimestamp(*deleted.Record.DeletedAt)

	if _, err := c.Get(ctx, domain.Products, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("soft-deleted record must be invisible, got %v", err)
	}

	res, err := c.Create(ctx, domain.Products, 1, product("tape", 9))
	if err != nil {
		t.Fatalf("unexpected resurrect error: %v", err)
	}
	if res.Transition != TransitionResurrect {
		t.Fatalf("expected resurrect transition, got %s", res.Transition)
	}

	rec, err := c.Get(ctx, domain.Products, 1)
	if err != nil {
		t.Fatalf("expected live record after resurrect, got %v", err)
	}
	if rec.Values["quantity"] != int64(9) || rec.DeletedAt != nil {
		t.Fatalf("unexpected resurrected record: %#v", rec)
	}

	entries := mustHistory(t, c, domain.Products, 1)
	// 3 create + 1 delete + quantity diff + deleted_at clearing
	if len(entries) != 6 {
		t.Fatalf("expected 6 history entries, got %d: %#v", len(entries), entries)
	}
	del := entries[3]
	if del.Kind != domain.EventDelete || del.Field != domain.FieldDeletedAt || del.OldValue != nil || *del.NewValue != deletedAt {
		t.Fatalf("unexpected delete entry: %#v", del)
	}
	qty := entries[4]
	if qty.Kind != domain.EventCreate || qty.Field != "quantity" || *qty.OldValue != "5" || *qty.NewValue != "9" {
		t.Fatalf("unexpected resurrect diff entry: %#v", qty)
	}
	cleared := entries[5]
	if cleared.Kind != domain.EventCreate || cleared.Field != domain.FieldDeletedAt || *cleared.OldValue != deletedAt || cleared.NewValue != nil {
		t.Fatalf("unexpected deleted_at clearing entry: %#v", cleared)
	}
}

func TestUpdate_ZeroChangeBumpsUpdatedAtOnly(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	created, err := c.Create(ctx, domain.Products, 1, product("tape", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := c.Update(ctx, domain.Products, 1, []domain.FieldValue{{Field: "quantity", Value: json.Number("5")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries != 0 {
		t.Fatalf("expected no history entries, got %d", res.Entries)
	}
	if !res.Record.UpdatedAt.After(created.Record.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v -> %v", created.Record.UpdatedAt, res.Record.UpdatedAt)
	}
	if n := len(mustHistory(t, c, domain.Products, 1)); n != 3 {
		t.Fatalf("expected only the 3 create entries, got %d", n)
	}
}

func TestUpdate_WritesChangedFieldsWithAnnotation(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.Create(ctx, domain.Products, 1, product("tape", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := c.Update(ctx, domain.Products, 1, []domain.FieldValue{
		{Field: "name", Value: "tape"},
		{Field: "description", Value: "duct"},
		{Field: "quantity", Value: int64(2)},
		{Field: "update_notes", Value: "recount"},
		{Field: "update_source", Value: "shelf B"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries != 2 {
		t.Fatalf("expected 2 changed fields, got %d", res.Entries)
	}

	entries := mustHistory(t, c, domain.Products, 1)[3:]
	if len(entries) != 2 || entries[0].Field != "description" || entries[1].Field != "quantity" {
		t.Fatalf("unexpected update entries: %#v", entries)
	}
	for _, e := range entries {
		if e.Kind != domain.EventUpdate || *e.Notes != "recount" || *e.Source != "shelf B" {
			t.Fatalf("unexpected update entry: %#v", e)
		}
	}
}

func TestUpdateAndDelete_SoftDeletedIsNotFound(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.Update(ctx, domain.Products, 42, product("x", 1)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent record, got %v", err)
	}

	if _, err := c.Create(ctx, domain.Products, 1, product("tape", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Delete(ctx, domain.Products, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Update(ctx, domain.Products, 1, product("tape", 6)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating a deleted record, got %v", err)
	}
	if _, err := c.Delete(ctx, domain.Products, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	// History stays readable after deletion.
	if n := len(mustHistory(t, c, domain.Products, 1)); n != 4 {
		t.Fatalf("expected 4 entries after delete, got %d", n)
	}
}

// failingStore fails every history append so the surrounding transaction aborts.
type failingStore struct {
	repository.Store
}

type failingTx struct {
	repository.Tx
}

var errAppend = errors.New("disk full")

func (s failingStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

func (failingTx) AppendHistory(context.Context, *domain.Kind, []domain.HistoryEntry) error {
	return errAppend
}

func TestCreate_HistoryFailureRollsBackRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := NewCoordinator(failingStore{Store: store}).Create(ctx, domain.Products, 1, product("tape", 5))
	if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, errAppend) {
		t.Fatalf("expected storage failure wrapping the append error, got %v", err)
	}

	c := NewCoordinator(store)
	if _, err := c.Get(ctx, domain.Products, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected record to be rolled back, got %v", err)
	}
	if _, err := c.History(ctx, domain.Products, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no trace of the aborted create, got %v", err)
	}
}

func TestList_PaginationTotals(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if _, err := c.Create(ctx, domain.Products, int64(i), product(fmt.Sprintf("item-%d", i), int64(i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	page, err := c.List(ctx, domain.Products, domain.ListRequest{Range: &domain.PageRange{Start: 0, End: 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Records) != 5 || page.Total != 10 {
		t.Fatalf("expected 5 records of 10, got %d of %d", len(page.Records), page.Total)
	}

	page, err = c.List(ctx, domain.Products, domain.ListRequest{Range: &domain.PageRange{Start: 20, End: 25}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Records) != 0 || page.Total != 0 {
		t.Fatalf("expected empty page with total 0, got %d of %d", len(page.Records), page.Total)
	}

	if _, err := c.Delete(ctx, domain.Products, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page, err = c.List(ctx, domain.Products, domain.ListRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 9 {
		t.Fatalf("expected 9 live records, got %d", page.Total)
	}
	page, err = c.List(ctx, domain.Products, domain.ListRequest{ShowDeleted: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 10 {
		t.Fatalf("expected 10 records with show_deleted, got %d", page.Total)
	}
}

func TestList_MalformedInput(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.List(context.Background(), domain.Products, domain.ListRequest{
		Sort: []domain.SortField{{Field: "colour", Direction: "asc"}},
	})
	if !errors.Is(err, domain.ErrInvalidSortField) {
		t.Fatalf("expected ErrInvalidSortField, got %v", err)
	}
}

func TestGetMany_SkipsDeletedAndMissing(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if _, err := c.Create(ctx, domain.Products, i, product("p", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := c.Delete(ctx, domain.Products, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := c.GetMany(ctx, domain.Products, []int64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 3 {
		t.Fatalf("expected ids [1 3], got %#v", records)
	}
}
