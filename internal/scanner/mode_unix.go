//go:build !windows

package scanner

import (
	"os"
	"strconv"
)

// formatMode renders permission bits plus setuid, setgid and sticky as
// octal, e.g. "644" or "4755".
func formatMode(info os.FileInfo) string {
	m := info.Mode()
	bits := uint64(m.Perm())
	if m&os.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		bits |= 0o1000
	}
	return strconv.FormatUint(bits, 8)
}
