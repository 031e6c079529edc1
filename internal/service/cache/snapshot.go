package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

func (c *TTLCache) writeSnapshot() error {
	if c.snapshotPath == "" {
		return nil
	}

	now := c.now().UnixMilli()
	out := make(map[string]entry)
	for key, item := range c.items.Items() {
		e, ok := item.Object.(entry)
		if !ok || now > e.ExpiresAt {
			continue
		}
		out[key] = e
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.snapshotPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.snapshotPath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, c.snapshotPath)
}

// Load rehydrates every snapshot entry whose expiry has not passed yet.
func (c *TTLCache) Load() (int, error) {
	if c.snapshotPath == "" {
		return 0, nil
	}

	raw, err := os.ReadFile(c.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var snapshot map[string]entry
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return 0, err
	}

	now := c.now()
	loaded := 0
	for key, e := range snapshot {
		remaining := time.UnixMilli(e.ExpiresAt).Sub(now)
		if remaining <= 0 {
			continue
		}
		c.store(key, e.Data, remaining)
		loaded++
	}

	logrus.WithFields(logrus.Fields{
		"path":   c.snapshotPath,
		"loaded": loaded,
	}).Info("cache snapshot loaded")

	return loaded, nil
}
