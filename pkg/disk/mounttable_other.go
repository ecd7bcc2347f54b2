//go:build !darwin

package disk

import (
	"fmt"
	"os"
)

var procSelfMounts = "/proc/self/mounts"

// DeviceOf returns the device node mounted at path, as listed in
// /proc/self/mounts.
func (SystemMountTable) DeviceOf(path string) (string, error) {
	data, err := os.ReadFile(procSelfMounts)
	if err != nil {
		return "", fmt.Errorf("cannot read mount table: %w", err)
	}
	return parseMountSource(string(data), path)
}
