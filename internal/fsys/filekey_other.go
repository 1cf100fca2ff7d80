//go:build !unix

package fsys

import "os"

// fileKey is unknown on platforms without inodes; rename detection is then
// disabled and renamed files are parsed again.
func fileKey(string, os.FileInfo) string {
	return ""
}
