// Package labelcache memoises rendered labels by request fingerprint.
package labelcache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"labelgen/internal/label"
	"labelgen/internal/store"
	u "labelgen/internal/utils"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "labelcache"

// ComputeFunc produces the label bytes for a request on a cache miss.
type ComputeFunc func(ctx context.Context, req label.Request) ([]byte, error)

// Recorder receives cache and compute measurements.
type Recorder interface {
	CacheLookup(ctx context.Context, hit bool)
	CacheError(ctx context.Context, op string)
	ComputeDone(ctx context.Context, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(context.Context, bool)                 {}
func (nopRecorder) CacheError(context.Context, string)                {}
func (nopRecorder) ComputeDone(context.Context, time.Duration, error) {}

// Result describes how a label was obtained.
type Result struct {
	Body        []byte
	Fingerprint string
	CreatedAt   time.Time
	// Hit is true when the bytes came from the store.
	Hit bool
	// Shared is true when this caller waited on another caller's compute.
	Shared bool
	// CacheErr holds a store failure that was logged and swallowed.
	CacheErr error
}

// Cache sits in front of a label compute function. A nil store disables
// caching but keeps the concurrent request collapsing.
type Cache struct {
	store    store.Store
	prefix   string
	rec      Recorder
	now      func() time.Time
	settings string
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithSettings mixes a digest of the rendering configuration into every
// fingerprint so a layout change does not serve labels drawn with the old one.
func WithSettings(settings string) Option {
	return func(c *Cache) { c.settings = settings }
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(s store.Store, opts ...Option) *Cache {
	c := &Cache{store: s, prefix: DefaultPrefix, rec: nopRecorder{}, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fingerprint is the cache identity of req under this cache's settings.
func (c *Cache) Fingerprint(req label.Request) string {
	return fingerprint(req, c.settings)
}

// Key returns the store key for a fingerprint.
func (c *Cache) Key(fingerprint string) string {
	return c.prefix + ":" + fingerprint
}

// GetOrCompute returns the cached label for req, computing and storing it
// on a miss.
func (c *Cache) GetOrCompute(ctx context.Context, req label.Request, compute ComputeFunc) ([]byte, error) {
	res, err := c.Resolve(ctx, req, compute)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

type computed struct {
	entry    store.Entry
	hit      bool
	cacheErr error
}

// Resolve is GetOrCompute with provenance. Concurrent callers with the same
// fingerprint share one compute. The compute is detached from the first
// caller's cancellation so a caller that gives up does not fail the others;
// a cancelled caller returns ctx.Err() immediately.
func (c *Cache) Resolve(ctx context.Context, req label.Request, compute ComputeFunc) (Result, error) {
	fp := c.Fingerprint(req)
	key := c.Key(fp)
	res := Result{Fingerprint: fp}

	if c.store != nil {
		e, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			res.CacheErr = &label.CacheError{Op: "get", Err: err}
			c.rec.CacheError(ctx, "get")
			u.Warn("Label cache read failed, treating as miss", "key", key, "error", err)
		case ok:
			c.rec.CacheLookup(ctx, true)
			res.Body, res.CreatedAt, res.Hit = e.Body, e.CreatedAt, true
			return res, nil
		}
		c.rec.CacheLookup(ctx, false)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), key, req, compute)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		out := r.Val.(computed)
		res.Body, res.CreatedAt, res.Hit, res.Shared = out.entry.Body, out.entry.CreatedAt, out.hit, r.Shared
		if out.cacheErr != nil {
			res.CacheErr = out.cacheErr
		}
		return res, nil
	}
}

// fill runs inside the flight. A caller that missed just before the previous
// flight stored its entry starts a new flight, so the store is read again
// before computing.
func (c *Cache) fill(ctx context.Context, key string, req label.Request, compute ComputeFunc) (computed, error) {
	if c.store != nil {
		e, ok, err := c.store.Get(ctx, key)
		if err != nil {
			u.Debug("Label cache re-read failed", "key", key, "error", err)
		} else if ok {
			return computed{entry: e, hit: true}, nil
		}
	}

	start := time.Now()
	body, err := compute(ctx, req)
	c.rec.ComputeDone(ctx, time.Since(start), err)
	if err != nil {
		return computed{}, err
	}

	out := computed{entry: store.Entry{Body: body, CreatedAt: c.now().UTC()}}
	if c.store == nil {
		return out, nil
	}
	if err := c.store.Set(ctx, key, out.entry); err != nil {
		out.cacheErr = &label.CacheError{Op: "set", Err: err}
		c.rec.CacheError(ctx, "set")
		u.Error("Label cache write failed", "key", key, "error", out.cacheErr)
	}
	return out, nil
}

// Ping checks the underlying store.
func (c *Cache) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return store.Ping(ctx, c.store)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
