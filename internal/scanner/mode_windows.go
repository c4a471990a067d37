//go:build windows

package scanner

import (
	"fmt"
	"os"
	"syscall"
)

// formatMode renders the Win32 attribute bitfield as 8 hex digits, with
// ",readonly" appended when the read-only attribute is set.
func formatMode(info os.FileInfo) string {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return fmt.Sprintf("%o", uint32(info.Mode().Perm()))
	}
	attrs := data.FileAttributes
	mode := fmt.Sprintf("%08x", attrs)
	if attrs&syscall.FILE_ATTRIBUTE_READONLY != 0 {
		mode += ",readonly"
	}
	return mode
}
