package monitor

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// DiskMonitor reports how much disk an embedded store's data directory
// uses. Walking the directory is slow, so results are cached.
type DiskMonitor struct {
	dir           string
	cacheDuration time.Duration

	mu          sync.Mutex
	cachedUsage int64
	lastCheck   time.Time
}

// NewDiskMonitor creates a monitor for dir with a 10 second cache.
func NewDiskMonitor(dir string) *DiskMonitor {
	return &DiskMonitor{dir: dir, cacheDuration: 10 * time.Second}
}

// Usage returns the bytes allocated under the directory.
func (dm *DiskMonitor) Usage() (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !dm.lastCheck.IsZero() && time.Since(dm.lastCheck) < dm.cacheDuration {
		return dm.cachedUsage, nil
	}

	var size int64
	err := filepath.WalkDir(dm.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += allocatedSize(path, info)
		return nil
	})
	if err != nil {
		return 0, err
	}

	dm.cachedUsage = size
	dm.lastCheck = time.Now()
	return size, nil
}
