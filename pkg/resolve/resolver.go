package resolve

import (
	"context"
	"fmt"

	"github.com/woliveiras/efisync/pkg/disk"
	"k8s.io/klog/v2"
)

// Resolver maps a volume path to the whole disk that owns it.
type Resolver struct {
	inventory  disk.Inventory
	mountTable disk.MountTable
}

func NewResolver(inventory disk.Inventory, mountTable disk.MountTable) *Resolver {
	return &Resolver{inventory: inventory, mountTable: mountTable}
}

// ResolveDisk asks the inventory for the whole disk of volume. Clone tools
// on newer macOS releases hand over transient mount points the inventory
// does not know, so when the direct query comes back empty the device node
// mounted at volume is looked up in the mount table and queried instead.
func (r *Resolver) ResolveDisk(ctx context.Context, volume string) Result {
	res := Result{Query: volume}

	id, err := r.inventory.WholeDiskOf(ctx, volume)
	if err != nil {
		res.Errs = append(res.Errs, err)
	}
	if id != "" {
		res.Status, res.ID, res.Tier = Found, id, TierVolume
		return res
	}

	if r.mountTable == nil {
		return res
	}
	dev, err := r.mountTable.DeviceOf(volume)
	if err != nil {
		res.Errs = append(res.Errs, fmt.Errorf("mount table lookup of %s: %w", volume, err))
		return res
	}
	if dev == "" {
		return res
	}
	klog.V(1).Infof("%s is not known to the disk inventory, retrying with device %s", volume, dev)

	res.Query = dev
	id, err = r.inventory.WholeDiskOf(ctx, dev)
	if err != nil {
		res.Errs = append(res.Errs, err)
	}
	if id != "" {
		res.Status, res.ID, res.Tier = Found, id, TierMountTable
	}
	return res
}
