// Package store holds the key/value backends behind the label cache.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	u "labelgen/internal/utils"
)

// Entry is one cached label document.
type Entry struct {
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a key/value store for rendered labels. A missing key is not an
// error: Get returns ok=false. Entries expire after the TTL the backend was
// opened with.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Close() error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it supports health checks and succeeds otherwise.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Open builds the backend named by cfg.Backend.
func Open(cfg u.CacheConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.MaxEntries, cfg.TTL), nil
	case "redis":
		s, err = NewRedis(RedisOptions{Addr: cfg.RedisHost, DB: cfg.LabelDB, TTL: cfg.TTL})
	case "badger":
		s, err = OpenBadger(cfg.BadgerDir, cfg.TTL)
	case "postgres":
		s, err = OpenPostgres(cfg.Postgres, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		// Keep the interface nil rather than wrapping a nil pointer.
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	return s, nil
}

func marshalEntry(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}
