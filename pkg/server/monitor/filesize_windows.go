//go:build windows

package monitor

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32          = syscall.NewLazyDLL("kernel32.dll")
	getCompressedSize = kernel32.NewProc("GetCompressedFileSizeW")
)

// allocatedSize returns the bytes a file occupies on disk, falling back
// to the logical size when the API call fails.
func allocatedSize(path string, info os.FileInfo) int64 {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return info.Size()
	}

	var high uint32
	low, _, _ := getCompressedSize.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&high)),
	)
	if low == 0xFFFFFFFF { // INVALID_FILE_SIZE
		return info.Size()
	}
	return int64(high)<<32 + int64(low)
}
