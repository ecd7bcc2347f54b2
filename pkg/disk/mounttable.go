package disk

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SystemMountTable reads the kernel mount table of the running system.
type SystemMountTable struct{}

func NewSystemMountTable() SystemMountTable { return SystemMountTable{} }

// parseMountSource parses the content of a fstab(5)-formatted mount table
// such as /proc/self/mounts and returns the device mounted at path. When
// several entries share the mount point the last one wins, as it is the one
// visible at that path.
func parseMountSource(mounts, path string) (string, error) {
	path = filepath.Clean(path)

	var device string
	scanner := bufio.NewScanner(strings.NewReader(mounts))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if unescapeMountField(fields[1]) == path {
			device = unescapeMountField(fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if device == "" {
		return "", fmt.Errorf("no mount entry for %s", path)
	}
	return device, nil
}

// unescapeMountField decodes the octal escapes (\040 for space and so on)
// the kernel uses in mount table fields.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
