//go:build !windows

package preflight

// isFilesystemRoot reports whether path is "/".
func isFilesystemRoot(path string) bool {
	return path == "/"
}

// checkVolumeExists is a no-op: Unix paths have no volume component.
func checkVolumeExists(string) error {
	return nil
}
