package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittonet/internal/logger"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the database in memory only.
	InMemory bool `mapstructure:"in_memory"`

	// GCInterval runs value log garbage collection periodically.
	// Zero disables it.
	GCInterval time.Duration `mapstructure:"gc_interval"`

	// GCDiscardRatio is passed to RunValueLogGC. Default: 0.5
	GCDiscardRatio float64 `mapstructure:"gc_discard_ratio"`
}

// BadgerStore stores values in an embedded BadgerDB database.
type BadgerStore struct {
	db   *badger.DB
	cfg  BadgerConfig
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func createBadgerStore(ctx context.Context, options map[string]any) (Store, error) {
	var cfg BadgerConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}
	return NewBadgerStore(ctx, cfg)
}

// NewBadgerStore opens (or creates) the database described by cfg.
func NewBadgerStore(ctx context.Context, cfg BadgerConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store: path is required")
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = 0.5
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	s := &BadgerStore{db: db, cfg: cfg, stop: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.wg.Add(1)
		go s.runGC()
	}

	logger.Info("Badger store opened: path=%s, in_memory=%v", cfg.Path, cfg.InMemory)
	return s, nil
}

func (s *BadgerStore) runGC() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Each successful pass may leave more to reclaim.
			for s.db.RunValueLogGC(s.cfg.GCDiscardRatio) == nil {
			}
		}
	}
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), append([]byte(nil), value...))
	})
	if err != nil {
		return fmt.Errorf("badger put %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}
	return nil
}

// Close stops garbage collection and closes the database. Safe to call
// more than once.
func (s *BadgerStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
