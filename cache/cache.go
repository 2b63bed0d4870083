// Package cache is the client-side read cache sitting between the UI-facing
// services and the remote store. Each category is an independent namespace
// with its own TTL; categories marked durable write through to the kv store
// so cached state survives a restart.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/kvstore"
)

type Category string

const (
	CategoryProduct  Category = "product"
	CategoryProfile  Category = "profile"
	CategoryLedger   Category = "ledger"
	CategorySettings Category = "settings"
)

const (
	defaultProductTTL  = 5 * time.Minute
	defaultProfileTTL  = 30 * time.Minute
	defaultLedgerTTL   = 5 * time.Minute
	defaultSettingsTTL = 24 * time.Hour

	defaultSweepInterval = 5 * time.Minute

	durableKeyPrefix = "cache:"
)

type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type namespace struct {
	ttl     time.Duration
	durable bool
	// settings is the only single-slot namespace: there is ever one
	// settings object, so it is a slot, not a map.
	single  bool
	entries map[string]entry
	slot    *entry
}

type Cache struct {
	mu         sync.Mutex
	namespaces map[Category]*namespace
	kv         kvstore.Store
	log        *logrus.Logger

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type Option func(*Cache)

// WithTTL overrides the TTL of one category.
func WithTTL(cat Category, ttl time.Duration) Option {
	return func(c *Cache) {
		if ns, ok := c.namespaces[cat]; ok && ttl > 0 {
			ns.ttl = ttl
		}
	}
}

// WithDurable marks a category as persisted to the kv store.
func WithDurable(cat Category) Option {
	return func(c *Cache) {
		if ns, ok := c.namespaces[cat]; ok {
			ns.durable = true
		}
	}
}

// New builds the cache, rehydrates durable namespaces and starts the
// periodic sweep. kv may be nil when nothing is durable.
func New(kv kvstore.Store, log *logrus.Logger, opts ...Option) *Cache {
	c := &Cache{
		namespaces: map[Category]*namespace{
			CategoryProduct:  {ttl: defaultProductTTL, durable: true, entries: make(map[string]entry)},
			CategoryProfile:  {ttl: defaultProfileTTL, entries: make(map[string]entry)},
			CategoryLedger:   {ttl: defaultLedgerTTL, entries: make(map[string]entry)},
			CategorySettings: {ttl: defaultSettingsTTL, single: true},
		},
		kv:   kv,
		log:  log,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rehydrate()

	go c.sweepLoop(defaultSweepInterval)
	return c
}

// Put stores value under (category, key). Durable namespaces are written
// through to the kv store as a whole; a kv failure only logs.
func (c *Cache) Put(ctx context.Context, cat Category, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.namespaces[cat]
	if !ok {
		return nil
	}
	e := entry{Data: data, Timestamp: c.now()}
	if ns.single {
		ns.slot = &e
	} else {
		ns.entries[key] = e
	}
	c.persistLocked(ctx, cat, ns)
	return nil
}

// Get unmarshals the cached value into dest and reports whether a live
// entry existed. An expired entry reads as absent; it stays in memory
// until the next sweep.
func (c *Cache) Get(cat Category, key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.namespaces[cat]
	if !ok {
		return false
	}
	var e entry
	if ns.single {
		if ns.slot == nil {
			return false
		}
		e = *ns.slot
	} else {
		e, ok = ns.entries[key]
		if !ok {
			return false
		}
	}
	if !c.validLocked(ns, e) {
		return false
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return false
	}
	return true
}

func (c *Cache) Invalidate(ctx context.Context, cat Category, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.namespaces[cat]
	if !ok {
		return
	}
	if ns.single {
		ns.slot = nil
	} else {
		delete(ns.entries, key)
	}
	c.persistLocked(ctx, cat, ns)
}

func (c *Cache) Clear(ctx context.Context, cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.namespaces[cat]
	if !ok {
		return
	}
	if ns.single {
		ns.slot = nil
	} else {
		ns.entries = make(map[string]entry)
	}
	if ns.durable && c.kv != nil {
		if err := c.kv.Remove(ctx, durableKeyPrefix+string(cat)); err != nil {
			config.LogError(c.log, "cache", "Clear", string(cat), nil, err)
		}
	}
}

// PutSettings fills the single settings slot.
func (c *Cache) PutSettings(ctx context.Context, value any) error {
	return c.Put(ctx, CategorySettings, "", value)
}

// GetSettings reads the settings slot.
func (c *Cache) GetSettings(dest any) bool {
	return c.Get(CategorySettings, "", dest)
}

func (c *Cache) InvalidateSettings(ctx context.Context) {
	c.Invalidate(ctx, CategorySettings, "")
}

// Close stops the sweep loop.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) validLocked(ns *namespace, e entry) bool {
	return c.now().Sub(e.Timestamp) < ns.ttl
}

func (c *Cache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops every dead entry from every namespace to bound memory.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ns := range c.namespaces {
		if ns.single {
			if ns.slot != nil && !c.validLocked(ns, *ns.slot) {
				ns.slot = nil
			}
			continue
		}
		for key, e := range ns.entries {
			if !c.validLocked(ns, e) {
				delete(ns.entries, key)
			}
		}
	}
}

// persistLocked serializes an entire durable namespace on every write:
// no partial-entry writes can be observed across a restart.
func (c *Cache) persistLocked(ctx context.Context, cat Category, ns *namespace) {
	if !ns.durable || c.kv == nil {
		return
	}
	var (
		payload string
		err     error
	)
	if ns.single {
		payload, err = marshalString(ns.slot)
	} else {
		payload, err = marshalString(ns.entries)
	}
	if err != nil {
		config.LogError(c.log, "cache", "persist", string(cat), nil, err)
		return
	}
	if err := c.kv.Set(ctx, durableKeyPrefix+string(cat), payload); err != nil {
		config.LogError(c.log, "cache", "persist", string(cat), nil, err)
	}
}

// rehydrate loads durable namespaces. A corrupt payload is dropped and the
// namespace starts empty; startup never fails on bad cached state.
func (c *Cache) rehydrate() {
	if c.kv == nil {
		return
	}
	ctx := context.Background()
	for cat, ns := range c.namespaces {
		if !ns.durable {
			continue
		}
		raw, ok, err := c.kv.Get(ctx, durableKeyPrefix+string(cat))
		if err != nil || !ok {
			continue
		}
		if ns.single {
			var slot *entry
			if err := json.Unmarshal([]byte(raw), &slot); err != nil {
				c.dropDurable(ctx, cat)
				continue
			}
			ns.slot = slot
		} else {
			entries := make(map[string]entry)
			if err := json.Unmarshal([]byte(raw), &entries); err != nil {
				c.dropDurable(ctx, cat)
				continue
			}
			ns.entries = entries
		}
	}
}

func (c *Cache) dropDurable(ctx context.Context, cat Category) {
	if err := c.kv.Remove(ctx, durableKeyPrefix+string(cat)); err != nil {
		config.LogError(c.log, "cache", "rehydrate", string(cat), nil, err)
	}
}

func marshalString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
