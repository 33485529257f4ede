//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// isFilesystemRoot reports whether path is a volume root ("C:\", "\\srv\share")
// or a bare drive letter, which resolves to that drive's current directory.
func isFilesystemRoot(path string) bool {
	if path == string(filepath.Separator) {
		return true
	}
	vol := filepath.VolumeName(path)
	if vol == "" {
		return false
	}
	rest := strings.TrimPrefix(path, vol)
	return rest == "" || rest == "." || rest == string(filepath.Separator)
}

// checkVolumeExists verifies that the drive or network share of path is
// reachable, so a disconnected drive is reported instead of failing inside
// RemoveAll.
func checkVolumeExists(path string) error {
	vol := filepath.VolumeName(path)
	if vol == "" {
		return nil
	}
	root := vol
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	root = filepath.Clean(root)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", root)
	}
	return nil
}
