package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/woliveiras/efisync/pkg/config"
	"github.com/woliveiras/efisync/pkg/disk"
	"github.com/woliveiras/efisync/pkg/invocation"
	"github.com/woliveiras/efisync/pkg/mirror"
	"github.com/woliveiras/efisync/pkg/resolve"
	"github.com/woliveiras/efisync/pkg/runlog"
)

// DiskResolver maps a volume path to its whole disk.
type DiskResolver interface {
	ResolveDisk(ctx context.Context, volume string) resolve.Result
}

// PartitionLocator finds the EFI partition of a whole disk.
type PartitionLocator interface {
	Locate(ctx context.Context, disk string) resolve.Result
}

// TreeHasher computes directory content digests.
type TreeHasher interface {
	HashTree(dir string, exclude []string) (string, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Resolver  DiskResolver
	Locator   PartitionLocator
	Inventory disk.Inventory
	Mounter   disk.Mounter
	Mirror    mirror.Mirror
	Hasher    TreeHasher
	Notifier  runlog.Notifier
	// Preflight, when set, runs before anything else; an error aborts the
	// run as a ResolutionFailure.
	Preflight func() error
}

// Engine runs one EFI partition synchronization per call to Run.
type Engine struct {
	cfg  config.Config
	deps Deps
}

func New(cfg config.Config, deps Deps) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = runlog.Discard
	}
	return &Engine{cfg: cfg, deps: deps}
}

func (e *Engine) notify(level runlog.Level, format string, a ...any) {
	e.deps.Notifier.Notify(level, fmt.Sprintf(format, a...))
}

// RunParams classifies the positional parameters and runs the result.
// Unsupported parameter lists are reported and end as NoOp.
func (e *Engine) RunParams(ctx context.Context, params []string) *Report {
	inv, err := invocation.Classify(params)
	if err != nil {
		e.notify(runlog.Warning, "did not run: %v (parameters: %q)", err, params)
		return &Report{Invocation: inv, Outcome: NoOp, Err: err, Simulated: e.cfg.Simulate}
	}
	return e.Run(ctx, inv)
}

// Run synchronizes the EFI partition behind inv.Source onto the one behind
// inv.Destination. Cancelling ctx interrupts the sync; partitions already
// mounted are unmounted regardless.
func (e *Engine) Run(ctx context.Context, inv invocation.Invocation) *Report {
	r := &Report{Invocation: inv, Simulated: e.cfg.Simulate}
	if inv.Skip {
		r.Outcome = NoOp
		e.notify(runlog.Info, "did not run: %s", inv.SkipReason)
		return r
	}

	mode := "live"
	if e.cfg.Simulate {
		mode = "simulation"
	}
	e.notify(runlog.Info, "%s invocation, %s mode: %s -> %s", inv.Caller, mode, inv.Source, inv.Destination)

	var mounted []string
	err := e.run(ctx, r, &mounted)

	r.enter(StateUnmount)
	e.unmountAll(ctx, r, mounted)
	r.enter(StateEnd)

	e.finish(r, err)
	return r
}

func (e *Engine) run(ctx context.Context, r *Report, mounted *[]string) error {
	r.enter(StateStart)
	if e.deps.Preflight != nil {
		if err := e.deps.Preflight(); err != nil {
			return fail(ResolutionFailure, "preflight check failed: %w", err)
		}
	}

	var err error
	r.enter(StateResolveSource)
	r.SourceDisk, r.SourcePartition, err = e.resolvePartition(ctx, "source", r.Invocation.Source)
	if err != nil {
		return err
	}
	r.enter(StateResolveDest)
	r.DestinationDisk, r.DestinationPartition, err = e.resolvePartition(ctx, "destination", r.Invocation.Destination)
	if err != nil {
		return err
	}

	r.enter(StateSanityCheck)
	if err := e.sanityCheck(ctx, r); err != nil {
		return err
	}

	r.enter(StateMount)
	srcMode := disk.ReadWrite
	if e.cfg.ReadOnlySource {
		srcMode = disk.ReadOnly
	}
	srcDir, err := e.mount(ctx, "source", r.SourcePartition.ID, srcMode, mounted)
	if err != nil {
		return err
	}
	dstDir, err := e.mount(ctx, "destination", r.DestinationPartition.ID, disk.ReadWrite, mounted)
	if err != nil {
		return err
	}

	r.enter(StateSync)
	if err := e.sync(ctx, r, srcDir, dstDir); err != nil {
		return err
	}
	if e.cfg.Simulate {
		return nil
	}

	r.enter(StateHashBoth)
	if r.SourceDigest, err = e.deps.Hasher.HashTree(srcDir, e.cfg.Exclude); err != nil {
		return fail(VerificationFailure, "cannot hash source EFI partition: %w", err)
	}
	if r.DestinationDigest, err = e.deps.Hasher.HashTree(dstDir, e.cfg.Exclude); err != nil {
		return fail(VerificationFailure, "cannot hash destination EFI partition: %w", err)
	}

	r.enter(StateCompare)
	return verify(r)
}

func (e *Engine) resolvePartition(ctx context.Context, role, volume string) (resolve.Result, resolve.Result, error) {
	d := e.deps.Resolver.ResolveDisk(ctx, volume)
	if d.Status != resolve.Found {
		return d, resolve.Result{}, fail(ResolutionFailure, "cannot resolve %s volume %s to a disk: %w", role, volume, d.Err())
	}
	p := e.deps.Locator.Locate(ctx, d.ID)
	if p.Status != resolve.Found {
		return d, p, fail(ResolutionFailure, "cannot determine the EFI partition of %s disk %s: %w", role, d.ID, p.Err())
	}
	e.notify(runlog.Info, "%s volume %s is on disk %s, EFI partition %s", role, volume, d.ID, p)
	return d, p, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (e *Engine) mount(ctx context.Context, role, part string, mode disk.MountMode, mounted *[]string) (string, error) {
	mctx, cancel := withTimeout(ctx, e.cfg.MountTimeout)
	defer cancel()

	if err := e.deps.Mounter.Mount(mctx, part, mode); err != nil {
		return "", fail(MountFailure, "cannot mount %s EFI partition %s: %w", role, part, err)
	}
	*mounted = append(*mounted, part)

	dir, err := e.deps.Inventory.MountPointOf(mctx, part)
	if err != nil {
		return "", fail(MountFailure, "cannot find mount point of %s EFI partition %s: %w", role, part, err)
	}
	if dir == "" {
		return "", fail(MountFailure, "%s EFI partition %s has no mount point after mounting", role, part)
	}
	e.notify(runlog.Info, "mounted %s EFI partition %s %s at %s", role, part, mode, dir)
	return dir, nil
}

func (e *Engine) sync(ctx context.Context, r *Report, srcDir, dstDir string) error {
	sctx, cancel := withTimeout(ctx, e.cfg.SyncTimeout)
	defer cancel()

	rep, err := e.deps.Mirror.Mirror(sctx, srcDir, dstDir, mirror.Options{
		Exclude: e.cfg.Exclude,
		DryRun:  e.cfg.Simulate,
	})
	r.Sync = rep
	if errors.Is(err, mirror.ErrUntouched) {
		return fail(MountFailure, "cannot sync %s to %s: %w", srcDir, dstDir, err)
	}
	if err != nil {
		return fail(VerificationFailure, "sync of %s to %s did not complete: %w", srcDir, dstDir, err)
	}

	verb := "applied"
	if rep.DryRun {
		verb = "would apply"
	}
	e.notify(runlog.Info, "sync %s %d operation(s)", verb, rep.Changed())
	for _, op := range rep.Ops {
		e.notify(runlog.Debug, "%s: %s", verb, op)
	}
	return nil
}

// unmountAll unmounts in reverse mount order, that is destination first.
// It runs even when ctx is already cancelled.
func (e *Engine) unmountAll(ctx context.Context, r *Report, mounted []string) {
	uctx, cancel := withTimeout(context.WithoutCancel(ctx), e.cfg.MountTimeout)
	defer cancel()

	for i := len(mounted) - 1; i >= 0; i-- {
		part := mounted[i]
		if err := e.deps.Mounter.Unmount(uctx, part); err != nil {
			r.Warnings = append(r.Warnings, err)
			e.notify(runlog.Warning, "unmount of %s did not complete: %v", part, err)
			continue
		}
		e.notify(runlog.Info, "unmounted %s", part)
	}
}

func (e *Engine) finish(r *Report, err error) {
	if err == nil && e.cfg.StrictUnmount && len(r.Warnings) > 0 {
		err = fail(MountFailure, "unmount did not complete: %w", errors.Join(r.Warnings...))
	}

	if err != nil {
		r.Outcome, r.Err = OutcomeOf(err), err
		switch {
		case r.Outcome == VerificationFailure && !r.Simulated:
			e.notify(runlog.Error, "COPY FAILED: %v. The destination EFI partition %s may be inconsistent or unbootable.", err, r.DestinationPartition.ID)
		case len(r.Sync.Ops) == 0 && r.Outcome != VerificationFailure:
			e.notify(runlog.Error, "failed, nothing was changed: %v", err)
		default:
			e.notify(runlog.Error, "failed: %v", err)
		}
		return
	}

	r.Outcome = Success
	switch {
	case r.Simulated:
		e.notify(runlog.Info, "simulation complete: %d operation(s) would be applied to %s", r.Sync.Changed(), r.DestinationPartition.ID)
	default:
		e.notify(runlog.Info, "EFI partition %s copied to %s and verified (digest %s)", r.SourcePartition.ID, r.DestinationPartition.ID, r.DestinationDigest)
	}
	if len(r.Warnings) > 0 {
		e.notify(runlog.Warning, "completed with %d unmount warning(s)", len(r.Warnings))
	}
}
