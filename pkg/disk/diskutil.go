package disk

import (
	"context"
	"fmt"

	"howett.net/plist"
)

// diskInfo mirrors the keys of "diskutil info -plist" that we rely on.
type diskInfo struct {
	DeviceIdentifier       string `plist:"DeviceIdentifier"`
	DeviceNode             string `plist:"DeviceNode"`
	ParentWholeDisk        string `plist:"ParentWholeDisk"`
	WholeDisk              bool   `plist:"WholeDisk"`
	MountPoint             string `plist:"MountPoint"`
	Content                string `plist:"Content"`
	VolumeName             string `plist:"VolumeName"`
	APFSContainerReference string `plist:"APFSContainerReference"`
}

// systemPartitions mirrors the output of "diskutil list -plist".
type systemPartitions struct {
	AllDisks              []string   `plist:"AllDisks"`
	AllDisksAndPartitions []diskPart `plist:"AllDisksAndPartitions"`
	WholeDisks            []string   `plist:"WholeDisks"`
}

type apfsPhysicalStore struct {
	DeviceIdentifier string `plist:"DeviceIdentifier"`
}

type diskPart struct {
	APFSPhysicalStores []apfsPhysicalStore `plist:"APFSPhysicalStores"`
	Content            string              `plist:"Content"`
	DeviceIdentifier   string              `plist:"DeviceIdentifier"`
	Partitions         []partitionEntry    `plist:"Partitions"`
}

type partitionEntry struct {
	Content          string `plist:"Content"`
	DeviceIdentifier string `plist:"DeviceIdentifier"`
	VolumeName       string `plist:"VolumeName"`
}

// csInfo mirrors "diskutil cs info -plist" for a logical volume.
type csInfo struct {
	MemberOfCoreStorageLogicalVolumeGroup string `plist:"MemberOfCoreStorageLogicalVolumeGroup"`
}

// csList mirrors "diskutil cs list -plist".
type csList struct {
	CoreStorageLogicalVolumeGroups []csGroup `plist:"CoreStorageLogicalVolumeGroups"`
}

type csGroup struct {
	CoreStorageUUID            string     `plist:"CoreStorageUUID"`
	CoreStoragePhysicalVolumes []csObject `plist:"CoreStoragePhysicalVolumes"`
}

type csObject struct {
	CoreStorageUUID string `plist:"CoreStorageUUID"`
}

// Diskutil implements Inventory, LogicalVolumes, Containers and Mounter on
// top of macOS diskutil(8).
type Diskutil struct {
	runner CommandRunner
}

// NewDiskutil returns a Diskutil using the given runner. A nil runner
// selects ExecRunner.
func NewDiskutil(runner CommandRunner) *Diskutil {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Diskutil{runner: runner}
}

func (d *Diskutil) decode(ctx context.Context, v any, args ...string) error {
	out, err := d.runner.Output(ctx, "diskutil", args...)
	if err != nil {
		return err
	}
	if _, err := plist.Unmarshal(out, v); err != nil {
		return fmt.Errorf("cannot decode diskutil %s output: %w", args[0], err)
	}
	return nil
}

func (d *Diskutil) info(ctx context.Context, target string) (diskInfo, error) {
	var info diskInfo
	if err := d.decode(ctx, &info, "info", "-plist", target); err != nil {
		return diskInfo{}, err
	}
	return info, nil
}

// WholeDiskOf returns the whole disk that owns volume, which may be a mount
// point, a device node or a disk identifier.
func (d *Diskutil) WholeDiskOf(ctx context.Context, volume string) (string, error) {
	info, err := d.info(ctx, volume)
	if err != nil {
		return "", err
	}
	if info.ParentWholeDisk != "" {
		return info.ParentWholeDisk, nil
	}
	if info.WholeDisk {
		return info.DeviceIdentifier, nil
	}
	return "", nil
}

// ListPartitions returns the partitions of the whole disk.
func (d *Diskutil) ListPartitions(ctx context.Context, disk string) ([]Partition, error) {
	var sp systemPartitions
	if err := d.decode(ctx, &sp, "list", "-plist", disk); err != nil {
		return nil, err
	}
	var parts []Partition
	for _, dp := range sp.AllDisksAndPartitions {
		if dp.DeviceIdentifier != TrimDevPrefix(disk) {
			continue
		}
		for _, p := range dp.Partitions {
			parts = append(parts, Partition{ID: p.DeviceIdentifier, Content: p.Content, Name: p.VolumeName})
		}
	}
	return parts, nil
}

// MountPointOf returns where part is mounted, or "" if it is not mounted.
func (d *Diskutil) MountPointOf(ctx context.Context, part string) (string, error) {
	info, err := d.info(ctx, part)
	if err != nil {
		return "", err
	}
	return info.MountPoint, nil
}

// PhysicalVolumeDiskOf returns the whole disk backing the first physical
// volume of the CoreStorage group disk belongs to. It returns "" when disk
// is not a CoreStorage logical volume.
func (d *Diskutil) PhysicalVolumeDiskOf(ctx context.Context, disk string) (string, error) {
	var cs csInfo
	if err := d.decode(ctx, &cs, "cs", "info", "-plist", disk); err != nil {
		return "", err
	}
	if cs.MemberOfCoreStorageLogicalVolumeGroup == "" {
		return "", nil
	}

	var list csList
	if err := d.decode(ctx, &list, "cs", "list", "-plist"); err != nil {
		return "", err
	}
	for _, g := range list.CoreStorageLogicalVolumeGroups {
		if g.CoreStorageUUID != cs.MemberOfCoreStorageLogicalVolumeGroup {
			continue
		}
		for _, pv := range g.CoreStoragePhysicalVolumes {
			if pv.CoreStorageUUID == "" {
				continue
			}
			return d.WholeDiskOf(ctx, pv.CoreStorageUUID)
		}
	}
	return "", nil
}

// PhysicalStoreDiskOf returns the whole disk of the first physical store of
// an APFS container, or "" when container is not an APFS container.
func (d *Diskutil) PhysicalStoreDiskOf(ctx context.Context, container string) (string, error) {
	var sp systemPartitions
	if err := d.decode(ctx, &sp, "list", "-plist", container); err != nil {
		return "", err
	}
	for _, dp := range sp.AllDisksAndPartitions {
		if dp.DeviceIdentifier != TrimDevPrefix(container) {
			continue
		}
		for _, store := range dp.APFSPhysicalStores {
			if store.DeviceIdentifier == "" {
				continue
			}
			return d.WholeDiskOf(ctx, store.DeviceIdentifier)
		}
	}
	return "", nil
}

// Mount mounts part. diskutil picks the mount point; use MountPointOf to
// find it.
func (d *Diskutil) Mount(ctx context.Context, part string, mode MountMode) error {
	args := []string{"mount"}
	if mode == ReadOnly {
		args = append(args, "readOnly")
	}
	args = append(args, part)
	if _, err := d.runner.Output(ctx, "diskutil", args...); err != nil {
		return fmt.Errorf("cannot mount %s %s: %w", part, mode, err)
	}
	return nil
}

// Unmount unmounts part.
func (d *Diskutil) Unmount(ctx context.Context, part string) error {
	if _, err := d.runner.Output(ctx, "diskutil", "unmount", part); err != nil {
		return fmt.Errorf("cannot unmount %s: %w", part, err)
	}
	return nil
}
