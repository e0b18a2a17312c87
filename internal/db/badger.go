package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerConfig holds configuration for the embedded store.
type BadgerConfig struct {
	// Dir is ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	// GCInterval of zero disables value log garbage collection.
	GCInterval time.Duration
}

// badgerLogger adapts zerolog to badger's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadger opens the embedded database.
func OpenBadger(cfg BadgerConfig, logger zerolog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("badger directory is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: logger.With().Str("component", "badger").Logger()})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return bdb, nil
}

// StartBadgerGC runs RunBadgerGC in the background. stop cancels the loop and waits
// for it to exit, so the database can be closed right after.
func StartBadgerGC(bdb *badger.DB, interval time.Duration, logger zerolog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBadgerGC(ctx, bdb, interval, logger)
	}()
	return func() {
		cancel()
		<-done
	}
}

// RunBadgerGC triggers value log garbage collection every interval until ctx is done.
// In-memory databases have no value log, so the loop returns at once for them.
func RunBadgerGC(ctx context.Context, bdb *badger.DB, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 || bdb.Opts().InMemory {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := bdb.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logger.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}
