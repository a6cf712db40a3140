package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleBackend KV backend on Pebble; every write is synced.
type PebbleBackend struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func (s *PebbleBackend) GetBytes(_ context.Context, key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotExists
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *PebbleBackend) SetBytes(_ context.Context, key string, val []byte) error {
	return s.db.Set([]byte(key), val, pebble.Sync)
}

func (s *PebbleBackend) DeleteKey(_ context.Context, key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

func (s *PebbleBackend) Close() error { return s.db.Close() }
