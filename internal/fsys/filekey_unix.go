//go:build unix

package fsys

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileKey returns "device:inode" for regular files.
func fileKey(path string, info os.FileInfo) string {
	if info.IsDir() {
		return ""
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", st.Dev, st.Ino)
}
