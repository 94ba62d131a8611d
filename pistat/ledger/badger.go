package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BadgerConfig configures a BadgerLedger.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// Destination scopes the ledger; it is used as key prefix so several
	// destinations can share one database.
	Destination string

	// InMemory keeps everything in RAM (tests).
	InMemory bool

	// SyncWrites makes every Mark durable before it returns.
	SyncWrites bool

	Logger zerolog.Logger
}

// DefaultBadgerConfig returns durable settings for a ledger at path.
func DefaultBadgerConfig(path, destination string) BadgerConfig {
	return BadgerConfig{
		Path:        path,
		Destination: destination,
		SyncWrites:  true,
		Logger:      zerolog.Nop(),
	}
}

// InMemoryBadgerConfig returns settings for tests.
func InMemoryBadgerConfig(destination string) BadgerConfig {
	return BadgerConfig{
		Destination: destination,
		InMemory:    true,
		Logger:      zerolog.Nop(),
	}
}

func (c BadgerConfig) validate() error {
	if c.Destination == "" {
		return errors.New("destination must not be empty")
	}
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for a persistent ledger")
	}
	return nil
}

// BadgerLedger persists applied transfer ids in BadgerDB.
//
// Key format: "applied:{destination}:{16-byte id}"
// Value format: [8-byte unix nanos when marked]
type BadgerLedger struct {
	db     *badger.DB
	prefix []byte
	logger zerolog.Logger
	closed atomic.Bool
}

// badgerLogger adapts zerolog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// OpenBadger opens or creates a ledger.
func OpenBadger(cfg BadgerConfig) (*BadgerLedger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	logger := cfg.Logger.With().Str("component", "ledger").Str("destination", cfg.Destination).Logger()
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("ledger opened")

	return &BadgerLedger{
		db:     db,
		prefix: []byte("applied:" + cfg.Destination + ":"),
		logger: logger,
	}, nil
}

func (l *BadgerLedger) key(id uuid.UUID) []byte {
	k := make([]byte, 0, len(l.prefix)+len(id))
	k = append(k, l.prefix...)
	return append(k, id[:]...)
}

func (l *BadgerLedger) Applied(ctx context.Context, id uuid.UUID) (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(l.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return found, nil
}

func (l *BadgerLedger) Mark(ctx context.Context, id uuid.UUID) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	val := binary.LittleEndian.AppendUint64(nil, uint64(time.Now().UnixNano()))
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(l.key(id))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(l.key(id), val)
	})
	if err != nil {
		return fmt.Errorf("mark %s: %w", id, err)
	}
	l.logger.Debug().Str("transfer_id", id.String()).Msg("transfer marked applied")
	return nil
}

func (l *BadgerLedger) Count(ctx context.Context) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	n := 0
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = l.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (l *BadgerLedger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.db.Close()
}
