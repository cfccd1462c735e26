//go:build windows

package chunk

import "golang.org/x/sys/windows"

// setReadOnlyAttrs marks a completed chunk file read-only and excludes
// it from content indexing.
func setReadOnlyAttrs(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p,
		windows.FILE_ATTRIBUTE_READONLY|windows.FILE_ATTRIBUTE_NOT_CONTENT_INDEXED)
}

// clearReadOnlyAttrs restores normal attributes so the file can be
// deleted.
func clearReadOnlyAttrs(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, windows.FILE_ATTRIBUTE_NORMAL)
}
