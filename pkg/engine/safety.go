package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/woliveiras/efisync/pkg/resolve"
	"github.com/woliveiras/efisync/pkg/runlog"
)

// CheckPrerequisites ensures we run as root and that the given system
// commands are available before any disk is touched.
func CheckPrerequisites(commands ...string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("efisync must run as root (use sudo) because it mounts and writes EFI partitions")
	}

	var missing []string
	for _, cmd := range commands {
		if _, err := exec.LookPath(cmd); err != nil {
			missing = append(missing, cmd)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s", strings.Join(missing, ", "))
	}
	return nil
}

// sanityCheck refuses to continue when:
//   - source and destination resolve to the same EFI partition
//   - the destination is the EFI partition of the running system
func (e *Engine) sanityCheck(ctx context.Context, r *Report) error {
	src, dst := r.SourcePartition, r.DestinationPartition
	if src.Status != resolve.Found || dst.Status != resolve.Found {
		return fail(ResolutionFailure, "EFI partitions not resolved (source %s, destination %s)", src.Status, dst.Status)
	}
	if src.ID == dst.ID {
		return fail(ResolutionFailure, "source and destination are the same EFI partition %s", src.ID)
	}

	boot, ok := e.bootPartition(ctx)
	if !ok {
		e.notify(runlog.Debug, "cannot determine the EFI partition of the running system, skipping boot partition check")
		return nil
	}
	if boot == dst.ID {
		return fail(ResolutionFailure, "refusing to overwrite %s: it is the EFI partition of the running system", dst.ID)
	}
	return nil
}

// bootPartition returns the EFI partition of the disk holding the
// configured boot volume.
func (e *Engine) bootPartition(ctx context.Context) (string, bool) {
	if e.cfg.BootVolume == "" {
		return "", false
	}
	d := e.deps.Resolver.ResolveDisk(ctx, e.cfg.BootVolume)
	if d.Status != resolve.Found {
		return "", false
	}
	p := e.deps.Locator.Locate(ctx, d.ID)
	if p.Status != resolve.Found {
		return "", false
	}
	return p.ID, true
}
