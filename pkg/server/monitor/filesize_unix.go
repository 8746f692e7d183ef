//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// allocatedSize returns the bytes a file occupies on disk. Badger
// preallocates value log files sparsely, so the logical size overstates it.
func allocatedSize(_ string, info os.FileInfo) int64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size()
	}
	return stat.Blocks * 512
}
