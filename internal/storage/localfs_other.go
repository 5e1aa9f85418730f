//go:build !darwin && !linux

package storage

// Mount types are not inspected on this platform; everything counts as local.
func detectFilesystemType(string) (string, error) { return "local", nil }
