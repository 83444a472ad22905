// Package memory provides an in-process cache driver with TTL support.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/cache"
)

// Config is the [cache.drivers.memory] table.
type Config struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTLSeconds <= 0 {
		c.DefaultTTLSeconds = int(cache.TTLDefault / time.Second)
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
}

func init() {
	cache.RegisterDriver("memory", func(raw map[string]any) (cache.CacheWithCounter, error) {
		var c Config
		if err := mapstructure.WeakDecode(raw, &c); err != nil {
			return nil, err
		}
		c.ApplyDefaults()
		return New(
			time.Duration(c.DefaultTTLSeconds)*time.Second,
			time.Duration(c.CleanupIntervalSeconds)*time.Second,
		), nil
	})
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is an in-memory cache. Values and counters live in separate maps so
// a counter key never shadows a value key.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*entry
	counters   map[string]*entry
	defaultTTL time.Duration
	stop       chan struct{}
	closeOnce  sync.Once
}

// New creates a cache. A zero cleanupInterval disables the sweeper.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*entry),
		counters:   make(map[string]*entry),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}
	return c
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
	for k, e := range c.counters {
		if e.expired(now) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if e.expired(time.Now()) {
		return nil, cache.ErrExpired
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &entry{value: v, expiresAt: time.Now().Add(c.ttl(ttl))}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	return ok && !e.expired(time.Now()), nil
}

func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.counters[key]
	if !ok || e.expired(now) {
		e = &entry{expiresAt: now.Add(c.ttl(ttl))}
		c.counters[key] = e
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

func (c *Cache) GetCount(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.counters[key]
	if !ok || e.expired(time.Now()) {
		return 0, nil
	}
	return e.count, nil
}

func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
