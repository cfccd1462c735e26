//go:build !windows

package chunk

import "os"

// setReadOnlyAttrs strips the write bits from a completed chunk file,
// the closest analogue of the Windows ReadOnly attribute.
func setReadOnlyAttrs(path string) error {
	return os.Chmod(path, 0o444)
}

// clearReadOnlyAttrs restores write permission so the file can be
// deleted.
func clearReadOnlyAttrs(path string) error {
	return os.Chmod(path, 0o644)
}
