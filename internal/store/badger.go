package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	u "labelgen/internal/utils"
)

// Badger is an embedded on-disk backend. Expired keys are dropped by
// Badger itself.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string, ttl time.Duration) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger directory is empty")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	u.Info("Badger label cache opened", "dir", dir, "ttl", ttl.String())
	return &Badger{db: db, ttl: ttl}, nil
}

// OpenBadgerInMemory is used by tests and ephemeral deployments.
func OpenBadgerInMemory(ttl time.Duration) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func (b *Badger) Get(_ context.Context, key string) (Entry, bool, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := unmarshalEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (b *Badger) Set(_ context.Context, key string, e Entry) error {
	raw, err := marshalEntry(e)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry([]byte(key), raw)
		if b.ttl > 0 {
			be = be.WithTTL(b.ttl)
		}
		return txn.SetEntry(be)
	})
}

func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
