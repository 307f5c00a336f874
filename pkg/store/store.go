// Package store provides the key/value backends used by the KV servlet.
//
// Three backends are available:
//   - memory: a map guarded by a RWMutex, lost on restart
//   - badger: an embedded BadgerDB database, on disk or in memory
//   - s3: one object per key in an S3 (or S3 compatible) bucket
//
// Backends are created from their key/value configuration with Create:
//
//	st, err := store.Create(ctx, map[string]any{
//	    "type":   "badger",
//	    "badger": map[string]any{"path": "/var/lib/dittonet/kv"},
//	})
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/metrics/prometheus"
	"github.com/mitchellh/mapstructure"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Store is a byte-oriented key/value store. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend. The store must not be used afterwards.
	Close() error
}

// Config selects a backend and carries its backend-specific options.
type Config struct {
	// Type is "memory", "badger" or "s3". Default: "memory"
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3"`

	// Badger holds BadgerConfig fields.
	Badger map[string]any `mapstructure:"badger"`

	// S3 holds S3Config fields.
	S3 map[string]any `mapstructure:"s3"`
}

var validate = validator.New()

// Create decodes options into a Config and opens the selected backend.
// Operations are instrumented when metrics are enabled.
func Create(ctx context.Context, options map[string]any) (Store, error) {
	var cfg Config
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid store config: %s", formatValidationError(err))
	}

	var st Store
	var err error
	switch cfg.Type {
	case "memory":
		st = NewMemoryStore()
	case "badger":
		st, err = createBadgerStore(ctx, cfg.Badger)
	case "s3":
		st, err = createS3Store(ctx, cfg.S3)
	}
	if err != nil {
		return nil, err
	}

	if m := prometheus.NewStoreMetrics(cfg.Type); m != nil {
		st = Instrument(st, m)
	}
	return st, nil
}

// formatValidationError renders validator errors with the option key that
// failed.
func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch {
		case e.StructField() == "Type" && e.Tag() == "oneof":
			messages = append(messages, fmt.Sprintf("unknown store type %q (supported: %s)", e.Value(), e.Param()))
		case e.Param() != "":
			messages = append(messages, fmt.Sprintf("%s: failed %s=%s", strings.ToLower(e.Field()), e.Tag(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s: failed %s", strings.ToLower(e.Field()), e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

// decode applies mapstructure with weak typing and duration strings.
func decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Instrument wraps st so every operation is reported to m.
func Instrument(st Store, m metrics.StoreMetrics) Store {
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}
	return &instrumentedStore{Store: st, metrics: m}
}

type instrumentedStore struct {
	Store
	metrics metrics.StoreMetrics
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := s.Store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordOperation("get", time.Since(start), nil)
	} else {
		s.metrics.RecordOperation("get", time.Since(start), err)
	}
	if err == nil {
		s.metrics.RecordBytes("read", int64(len(value)))
	}
	return value, err
}

func (s *instrumentedStore) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.Store.Put(ctx, key, value)
	s.metrics.RecordOperation("put", time.Since(start), err)
	if err == nil {
		s.metrics.RecordBytes("write", int64(len(value)))
	}
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, key)
	s.metrics.RecordOperation("delete", time.Since(start), err)
	return err
}
