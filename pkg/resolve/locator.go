package resolve

import (
	"context"

	"github.com/woliveiras/efisync/pkg/disk"
	"k8s.io/klog/v2"
)

// Locator finds the EFI system partition of a whole disk.
type Locator struct {
	inventory      disk.Inventory
	logicalVolumes disk.LogicalVolumes
	containers     disk.Containers
}

func NewLocator(inventory disk.Inventory, lv disk.LogicalVolumes, containers disk.Containers) *Locator {
	return &Locator{inventory: inventory, logicalVolumes: lv, containers: containers}
}

// Locate returns the single EFI partition of diskID. When the disk itself
// carries none it may be a CoreStorage logical volume or an APFS container,
// so the partitions of the backing physical disk are tried next, in that
// order. More than one EFI partition on the queried disk is reported as
// Ambiguous and ends the search.
func (l *Locator) Locate(ctx context.Context, diskID string) Result {
	var errs []error

	res := l.direct(ctx, diskID, TierDirect)
	if res.Status != NotFound {
		return res
	}
	errs = append(errs, res.Errs...)

	if l.logicalVolumes != nil {
		pv, err := l.logicalVolumes.PhysicalVolumeDiskOf(ctx, diskID)
		if err != nil {
			errs = append(errs, err)
		}
		// An empty derivation must not hide a valid disk.
		if pv == "" {
			pv = diskID
		}
		klog.V(1).Infof("no EFI partition on %s, trying logical volume tier with %s", diskID, pv)
		res = l.direct(ctx, pv, TierLogicalVolume)
		if res.Status != NotFound {
			return res
		}
		errs = append(errs, res.Errs...)
	}

	if l.containers != nil {
		store, err := l.containers.PhysicalStoreDiskOf(ctx, diskID)
		if err != nil {
			errs = append(errs, err)
		}
		if store != "" {
			klog.V(1).Infof("no EFI partition on %s, trying container tier with %s", diskID, store)
			res = l.direct(ctx, store, TierContainer)
			if res.Status != NotFound {
				return res
			}
			errs = append(errs, res.Errs...)
		}
	}

	return Result{Status: NotFound, Query: diskID, Errs: errs}
}

// direct lists the partitions of diskID and filters the EFI ones.
func (l *Locator) direct(ctx context.Context, diskID string, tier Tier) Result {
	res := Result{Query: diskID, Tier: tier}

	parts, err := l.inventory.ListPartitions(ctx, diskID)
	if err != nil {
		res.Errs = append(res.Errs, err)
		return res
	}

	var matches []string
	for _, p := range parts {
		if p.IsFirmware() {
			matches = append(matches, p.ID)
		}
	}

	switch len(matches) {
	case 0:
	case 1:
		res.Status, res.ID = Found, matches[0]
	default:
		res.Status, res.Candidates = Ambiguous, matches
	}
	return res
}
