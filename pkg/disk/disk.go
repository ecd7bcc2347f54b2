package disk

import (
	"context"
	"strings"
)

const (
	// FirmwareContent is the content label diskutil reports for EFI system
	// partitions.
	FirmwareContent = "EFI"
	// FirmwareTypeGUID is the GPT partition type of an EFI system partition.
	FirmwareTypeGUID = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
)

// Partition is one partition slot of a whole disk.
type Partition struct {
	ID      string // e.g. "disk0s1"
	Content string // type label, e.g. "EFI" or "Apple_APFS"
	Name    string
}

// IsFirmware reports whether p is an EFI system partition.
func (p Partition) IsFirmware() bool {
	c := strings.TrimSpace(p.Content)
	return strings.EqualFold(c, FirmwareContent) || strings.EqualFold(c, FirmwareTypeGUID)
}

// Inventory answers questions about disks, partitions and volumes. Empty
// strings are returned when the storage subsystem knows nothing about the
// queried entry.
type Inventory interface {
	ListPartitions(ctx context.Context, disk string) ([]Partition, error)
	WholeDiskOf(ctx context.Context, volume string) (string, error)
	MountPointOf(ctx context.Context, part string) (string, error)
}

// LogicalVolumes resolves CoreStorage logical volumes to the whole disk of
// their physical volume.
type LogicalVolumes interface {
	PhysicalVolumeDiskOf(ctx context.Context, disk string) (string, error)
}

// Containers resolves APFS containers to the whole disk of their physical
// store.
type Containers interface {
	PhysicalStoreDiskOf(ctx context.Context, container string) (string, error)
}

// MountMode selects how a partition is mounted.
type MountMode int

const (
	ReadWrite MountMode = iota
	ReadOnly
)

func (m MountMode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Mounter mounts and unmounts partitions.
type Mounter interface {
	Mount(ctx context.Context, part string, mode MountMode) error
	Unmount(ctx context.Context, part string) error
}

// MountTable maps a mount point to the device node mounted on it.
type MountTable interface {
	DeviceOf(path string) (string, error)
}

// TrimDevPrefix turns "/dev/disk0s1" into "disk0s1".
func TrimDevPrefix(name string) string {
	return strings.TrimPrefix(name, "/dev/")
}
