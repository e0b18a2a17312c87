package recordloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/raffchen/inventory/internal/domain"
)

// Fetcher loads live records by id. lifecycle.Coordinator satisfies it.
type Fetcher interface {
	GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error)
}

// RecordLoader batches id lookups for one kind into a single store read.
type RecordLoader struct {
	loader *dataloader.Loader
}

func NewRecordLoader(fetcher Fetcher, kind *domain.Kind) *RecordLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Convert keys to ids
		ids := make([]int64, 0, len(keys))
		parsed := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("%w: invalid id %q", domain.ErrInvalidPayload, k.String())}
				continue
			}
			parsed[i] = id
			ids = append(ids, id)
		}

		records, err := fetcher.GetMany(ctx, kind, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		byID := make(map[int64]domain.Record, len(records))
		for _, rec := range records {
			byID[rec.ID] = rec
		}

		// Build results in the same order as keys
		for i := range keys {
			if results[i] != nil {
				continue
			}
			if rec, ok := byID[parsed[i]]; ok {
				results[i] = &dataloader.Result{Data: rec}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &RecordLoader{loader: loader}
}

// LoadMany resolves ids in request order. Duplicates collapse to their first position
// and ids without a live record are left out.
func (l *RecordLoader) LoadMany(ctx context.Context, ids []int64) ([]domain.Record, error) {
	keys := make(dataloader.Keys, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, dataloader.StringKey(strconv.FormatInt(id, 10)))
	}

	data, errs := l.loader.LoadMany(ctx, keys)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	records := make([]domain.Record, 0, len(data))
	for _, d := range data {
		if rec, ok := d.(domain.Record); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
