package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, path string, clock *fakeClock) *TTLCache {
	t.Helper()
	c := New(Config{SnapshotPath: path, Now: clock.Now})
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c
}

func TestTTLCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, "", clock)

	c.Set("market:top:10", map[string]int{"n": 1}, 30*time.Second)

	var got map[string]int
	require.True(t, c.Get("market:top:10", &got))
	assert.Equal(t, 1, got["n"])

	clock.Advance(31 * time.Second)
	assert.False(t, c.Get("market:top:10", &got))
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_ConcurrentSetDifferentKeys(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, "", clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(fmt.Sprintf("k:%d", i), i, time.Minute)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		var got int
		require.True(t, c.Get(fmt.Sprintf("k:%d", i), &got))
		assert.Equal(t, i, got)
	}
}

func TestTTLCache_DeletePrefix(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, "", clock)

	c.Set("signals:latest:20", []int{1}, time.Minute)
	c.Set("signals:latest:50", []int{2}, time.Minute)
	c.Set("coin:bitcoin", "btc", time.Minute)

	assert.Equal(t, 2, c.DeletePrefix("signals:"))

	var got string
	assert.True(t, c.Get("coin:bitcoin", &got))
	var list []int
	assert.False(t, c.Get("signals:latest:20", &list))
}

func TestTTLCache_SnapshotRehydrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server-cache.json")
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	first := New(Config{SnapshotPath: path, Now: clock.Now})
	first.Set("coin:bitcoin", map[string]string{"id": "bitcoin"}, 60*time.Second)
	first.Set("market:top:10", []int{1, 2}, 5*time.Second)
	require.NoError(t, first.Close(context.Background()))

	_, err := os.Stat(path)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)

	second := newTestCache(t, path, clock)
	loaded, err := second.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	var coin map[string]string
	require.True(t, second.Get("coin:bitcoin", &coin))
	assert.Equal(t, "bitcoin", coin["id"])

	var market []int
	assert.False(t, second.Get("market:top:10", &market))
}

func TestTTLCache_LastGood(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, "", clock)

	c.SetWithLastGood("news:all", []string{"headline"}, time.Minute)
	clock.Advance(2 * time.Minute)

	var fresh []string
	assert.False(t, c.Get("news:all", &fresh))

	var stale []string
	require.True(t, c.LastGood("news:all", &stale))
	assert.Equal(t, []string{"headline"}, stale)
}

func TestTTLCache_LoadMissingSnapshot(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, filepath.Join(t.TempDir(), "absent.json"), clock)

	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Zero(t, loaded)
}
