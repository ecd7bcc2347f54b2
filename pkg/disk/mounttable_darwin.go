//go:build darwin

package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DeviceOf returns the device node mounted at path, as reported by
// statfs(2).
func (SystemMountTable) DeviceOf(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("cannot statfs %s: %w", path, err)
	}
	return unix.ByteSliceToString(st.Mntfromname[:]), nil
}
