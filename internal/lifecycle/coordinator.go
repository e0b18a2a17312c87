// Package lifecycle drives the absent → live → soft-deleted state machine of records.
// Every transition commits the record change and its history entries in one
// transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/history"
	"github.com/raffchen/inventory/internal/metrics"
	"github.com/raffchen/inventory/internal/query"
	"github.com/raffchen/inventory/internal/repository"
)

// Transition names a committed state change.
type Transition string

const (
	TransitionCreate    Transition = "create"
	TransitionResurrect Transition = "resurrect"
	TransitionUpdate    Transition = "update"
	TransitionDelete    Transition = "delete"
)

// Coordinator is the entry point for record reads and mutations.
type Coordinator struct {
	store  repository.Store
	now    func() time.Time
	logger zerolog.Logger
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets the logger used for transition and failure logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator builds a coordinator over store.
func NewCoordinator(store repository.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) timestamp() time.Time {
	return c.now().UTC()
}

// Result is a committed mutation.
type Result struct {
	Record     domain.Record
	Transition Transition
	Entries    int
}

// Create makes a new live record, or resurrects a soft-deleted one holding the same id.
// An id of zero lets the store assign one. values may carry update_notes and
// update_source, which annotate the history entries.
func (c *Coordinator) Create(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (Result, error) {
	res, err := c.create(ctx, kind, id, values)
	return c.finish(kind, "create", res, err)
}

func (c *Coordinator) create(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (Result, error) {
	if id < 0 {
		return Result{}, fmt.Errorf("%w: id must be positive, got %d", domain.ErrInvalidPayload, id)
	}
	fields, ann, err := history.SplitAnnotation(values)
	if err != nil {
		return Result{}, err
	}
	// Validates the payload as a whole create even when it ends up resurrecting.
	if _, err := domain.ResolveCreateValues(kind, fields); err != nil {
		return Result{}, err
	}

	var res Result
	err = c.store.WithTx(ctx, func(tx repository.Tx) error {
		now := c.timestamp()

		if id != 0 {
			prior, err := tx.GetForUpdate(ctx, kind, id)
			switch {
			case err == nil && !prior.IsDeleted():
				return fmt.Errorf("%w: %s %d", domain.ErrAlreadyExists, kind.Name, id)
			case err == nil:
				res, err = c.resurrect(ctx, tx, kind, prior, fields, ann, now)
				return err
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}

		rec, err := domain.NewRecord(kind, id, fields, now)
		if err != nil {
			return err
		}
		stored, err := tx.Insert(ctx, kind, rec)
		if err != nil {
			return err
		}
		changes := history.CreateChanges(kind, stored)
		ev := history.Event{RecordID: stored.ID, Kind: domain.EventCreate, At: now, Changes: changes, Annotation: ann}
		if err := history.Append(ctx, tx, kind, ev); err != nil {
			return err
		}
		res = Result{Record: stored, Transition: TransitionCreate, Entries: len(changes)}
		return nil
	})
	return res, err
}

func (c *Coordinator) resurrect(ctx context.Context, tx repository.Tx, kind *domain.Kind, prior domain.Record,
	fields []domain.FieldValue, ann domain.Annotation, now time.Time) (Result, error) {
	changes, err := history.Diff(kind, prior, fields)
	if err != nil {
		return Result{}, err
	}

	rec := prior.Clone()
	history.Apply(&rec, changes)
	rec.UpdatedAt = now
	rec.DeletedAt = nil
	if err := tx.Update(ctx, kind, rec); err != nil {
		return Result{}, err
	}

	logged := history.ResurrectChanges(prior, changes)
	ev := history.Event{RecordID: rec.ID, Kind: domain.EventCreate, At: now, Changes: logged, Annotation: ann}
	if err := history.Append(ctx, tx, kind, ev); err != nil {
		return Result{}, err
	}
	return Result{Record: rec, Transition: TransitionResurrect, Entries: len(logged)}, nil
}

// Update applies a partial change to a live record. Only fields that differ are written
// to history; updated_at advances even when nothing differs.
func (c *Coordinator) Update(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (Result, error) {
	res, err := c.update(ctx, kind, id, values)
	return c.finish(kind, "update", res, err)
}

func (c *Coordinator) update(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (Result, error) {
	fields, ann, err := history.SplitAnnotation(values)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := c.getLiveForUpdate(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		changes, err := history.Diff(kind, current, fields)
		if err != nil {
			return err
		}

		now := c.timestamp()
		rec := current.Clone()
		history.Apply(&rec, changes)
		rec.UpdatedAt = now
		if err := tx.Update(ctx, kind, rec); err != nil {
			return err
		}

		ev := history.Event{RecordID: id, Kind: domain.EventUpdate, At: now, Changes: history.FieldChanges(changes), Annotation: ann}
		if err := history.Append(ctx, tx, kind, ev); err != nil {
			return err
		}
		res = Result{Record: rec, Transition: TransitionUpdate, Entries: len(changes)}
		return nil
	})
	return res, err
}

// Delete soft-deletes a live record.
func (c *Coordinator) Delete(ctx context.Context, kind *domain.Kind, id int64) (Result, error) {
	var res Result
	err := c.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := c.getLiveForUpdate(ctx, tx, kind, id)
		if err != nil {
			return err
		}

		now := c.timestamp()
		rec := current.Clone()
		rec.DeletedAt = &now
		rec.UpdatedAt = now
		if err := tx.Update(ctx, kind, rec); err != nil {
			return err
		}

		changes := history.DeleteChanges(now)
		ev := history.Event{RecordID: id, Kind: domain.EventDelete, At: now, Changes: changes}
		if err := history.Append(ctx, tx, kind, ev); err != nil {
			return err
		}
		res = Result{Record: rec, Transition: TransitionDelete, Entries: len(changes)}
		return nil
	})
	return c.finish(kind, "delete", res, err)
}

func (c *Coordinator) getLiveForUpdate(ctx context.Context, tx repository.Tx, kind *domain.Kind, id int64) (domain.Record, error) {
	rec, err := tx.GetForUpdate(ctx, kind, id)
	if err != nil {
		return domain.Record{}, err
	}
	if rec.IsDeleted() {
		return domain.Record{}, fmt.Errorf("%w: %s %d is deleted", domain.ErrNotFound, kind.Name, id)
	}
	return rec, nil
}

// finish classifies the outcome of a mutation and records it in logs and metrics.
func (c *Coordinator) finish(kind *domain.Kind, op string, res Result, err error) (Result, error) {
	if err != nil {
		err = domain.Classify(err)
		reason := domain.Reason(err)
		metrics.Failures.WithLabelValues(kind.Name, op, reason).Inc()
		event := c.logger.Warn()
		if reason == "storage" {
			event = c.logger.Error()
		}
		event.Err(err).Str("kind", kind.Name).Str("operation", op).Str("reason", reason).Msg("mutation rejected")
		return Result{}, err
	}

	metrics.Transitions.WithLabelValues(kind.Name, string(res.Transition)).Inc()
	event := domain.EventUpdate
	switch res.Transition {
	case TransitionCreate, TransitionResurrect:
		event = domain.EventCreate
	case TransitionDelete:
		event = domain.EventDelete
	}
	metrics.HistoryEntries.WithLabelValues(kind.Name, string(event)).Add(float64(res.Entries))
	c.logger.Info().
		Str("kind", kind.Name).
		Int64("id", res.Record.ID).
		Str("transition", string(res.Transition)).
		Int("history_entries", res.Entries).
		Msg("record committed")
	return res, nil
}

// Get returns a live record.
func (c *Coordinator) Get(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error) {
	var rec domain.Record
	err := c.store.View(ctx, func(r repository.Reader) error {
		var err error
		rec, err = r.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if rec.IsDeleted() {
			return fmt.Errorf("%w: %s %d is deleted", domain.ErrNotFound, kind.Name, id)
		}
		return nil
	})
	if err != nil {
		return domain.Record{}, domain.Classify(err)
	}
	return rec, nil
}

// GetMany returns the live records among ids in ascending id order. Missing and
// soft-deleted ids are skipped.
func (c *Coordinator) GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error) {
	var live []domain.Record
	err := c.store.View(ctx, func(r repository.Reader) error {
		records, err := r.GetMany(ctx, kind, ids)
		if err != nil {
			return err
		}
		live = make([]domain.Record, 0, len(records))
		for _, rec := range records {
			if !rec.IsDeleted() {
				live = append(live, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Classify(err)
	}
	return live, nil
}

// List runs a filtered, sorted, paged query. Malformed input is rejected before the
// store is touched.
func (c *Coordinator) List(ctx context.Context, kind *domain.Kind, req domain.ListRequest) (query.Page, error) {
	start := time.Now()
	defer func() {
		metrics.ListDuration.WithLabelValues(kind.Name).Observe(time.Since(start).Seconds())
	}()

	plan, err := query.BuildPlan(kind, req)
	if err != nil {
		metrics.Failures.WithLabelValues(kind.Name, "list", domain.Reason(err)).Inc()
		return query.Page{}, err
	}

	var page query.Page
	err = c.store.View(ctx, func(r repository.Reader) error {
		var err error
		page, err = query.Execute(ctx, r, plan)
		return err
	})
	if err != nil {
		err = domain.Classify(err)
		metrics.Failures.WithLabelValues(kind.Name, "list", domain.Reason(err)).Inc()
		c.logger.Error().Err(err).Str("kind", kind.Name).Msg("list query failed")
		return query.Page{}, err
	}
	return page, nil
}

// History returns every entry of a record, oldest first. Soft-deleted records keep
// their history visible.
func (c *Coordinator) History(ctx context.Context, kind *domain.Kind, id int64) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := c.store.View(ctx, func(r repository.Reader) error {
		if _, err := r.Get(ctx, kind, id); err != nil {
			return err
		}
		var err error
		entries, err = r.History(ctx, kind, id)
		return err
	})
	if err != nil {
		return nil, domain.Classify(err)
	}
	return entries, nil
}
