package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/krobus00/trading-dashboard/internal/constant"
)

const (
	defaultCleanupInterval = time.Minute
	defaultPersistDebounce = 500 * time.Millisecond
	remoteTimeout          = 500 * time.Millisecond
)

type entry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt int64           `json:"expiresAt"`
}

// RemoteTier is an optional shared store consulted on local misses.
type RemoteTier interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type Config struct {
	SnapshotPath    string
	PersistDebounce time.Duration
	Remote          RemoteTier
	Now             func() time.Time
}

// TTLCache is an in-memory key/value store with per entry expiry. Every
// mutation schedules a snapshot of the live entries to disk.
type TTLCache struct {
	items           *gocache.Cache
	remote          RemoteTier
	now             func() time.Time
	snapshotPath    string
	persistDebounce time.Duration

	persistCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *TTLCache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	debounce := cfg.PersistDebounce
	if debounce < 0 {
		debounce = 0
	}

	c := &TTLCache{
		items:           gocache.New(gocache.NoExpiration, defaultCleanupInterval),
		remote:          cfg.Remote,
		now:             now,
		snapshotPath:    strings.TrimSpace(cfg.SnapshotPath),
		persistDebounce: debounce,
		persistCh:       make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	go c.persistLoop()

	return c
}

// Get decodes the value stored under key into dst. Expired entries are
// evicted on read and reported as absent.
func (c *TTLCache) Get(key string, dst any) bool {
	raw, ok := c.getRaw(key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		logrus.WithField("key", key).Warnf("cache decode failed: %v", err)
		c.items.Delete(key)
		return false
	}

	return true
}

func (c *TTLCache) getRaw(key string) (json.RawMessage, bool) {
	if cached, found := c.items.Get(key); found {
		e := cached.(entry)
		if c.now().UnixMilli() <= e.ExpiresAt {
			return e.Data, true
		}
		c.items.Delete(key)
	}

	if c.remote == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	raw, ttl, found, err := c.remote.Get(ctx, key)
	if err != nil {
		logrus.WithField("key", key).Warnf("remote cache get failed: %v", err)
		return nil, false
	}
	if !found || ttl <= 0 {
		return nil, false
	}

	c.store(key, raw, ttl)

	return raw, true
}

// Set stores value for ttl and schedules a snapshot write.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		logrus.WithField("key", key).Warnf("cache encode failed: %v", err)
		return
	}

	c.store(key, raw, ttl)

	if c.remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		if err := c.remote.Set(ctx, key, raw, ttl); err != nil {
			logrus.WithField("key", key).Warnf("remote cache set failed: %v", err)
		}
		cancel()
	}

	c.schedulePersist()
}

func (c *TTLCache) store(key string, raw json.RawMessage, ttl time.Duration) {
	expiresAt := c.now().Add(ttl)
	c.items.Set(key, entry{Data: raw, ExpiresAt: expiresAt.UnixMilli()}, ttl)
}

// SetWithLastGood stores value under key and keeps a long lived copy that
// read paths can fall back to when every provider is failing.
func (c *TTLCache) SetWithLastGood(key string, value any, ttl time.Duration) {
	c.Set(key, value, ttl)
	c.Set(constant.CacheKeyLastGood+key, value, constant.CacheTTLLastGood)
}

// LastGood reads the most recent successful payload stored for key.
func (c *TTLCache) LastGood(key string, dst any) bool {
	if c.Get(key, dst) {
		return true
	}
	return c.Get(constant.CacheKeyLastGood+key, dst)
}

func (c *TTLCache) Delete(key string) {
	c.items.Delete(key)
	c.schedulePersist()
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *TTLCache) DeletePrefix(prefix string) int {
	removed := 0
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
			removed++
		}
	}

	if c.remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		if err := c.remote.DeletePrefix(ctx, prefix); err != nil {
			logrus.WithField("prefix", prefix).Warnf("remote cache delete failed: %v", err)
		}
		cancel()
	}

	if removed > 0 {
		c.schedulePersist()
	}

	return removed
}

// Len counts live entries.
func (c *TTLCache) Len() int {
	now := c.now().UnixMilli()
	count := 0
	for _, item := range c.items.Items() {
		if e, ok := item.Object.(entry); ok && now <= e.ExpiresAt {
			count++
		}
	}
	return count
}

func (c *TTLCache) schedulePersist() {
	if c.snapshotPath == "" {
		return
	}

	select {
	case c.persistCh <- struct{}{}:
	default:
	}
}

func (c *TTLCache) persistLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.persistCh:
			if c.persistDebounce > 0 {
				select {
				case <-time.After(c.persistDebounce):
				case <-c.stopCh:
					c.flush()
					return
				}
			}
			c.flush()
		}
	}
}

func (c *TTLCache) flush() {
	if err := c.writeSnapshot(); err != nil {
		logrus.WithField("path", c.snapshotPath).Warnf("cache snapshot failed: %v", err)
	}
}

// Close stops the snapshot writer after a final flush.
func (c *TTLCache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.snapshotPath == "" {
		return nil
	}

	return c.writeSnapshot()
}
