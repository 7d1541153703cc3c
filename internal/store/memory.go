package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process LRU bounded by entry count and TTL.
type Memory struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemory returns an LRU holding at most size entries. A size of zero or
// less means unbounded; a ttl of zero or less disables expiry.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size < 0 {
		size = 0
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Memory{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(key)
	return e, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.lru.Add(key, e)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
