package engine

import (
	"errors"
	"fmt"

	"github.com/woliveiras/efisync/pkg/invocation"
	"github.com/woliveiras/efisync/pkg/mirror"
	"github.com/woliveiras/efisync/pkg/resolve"
)

// State is a step of a run.
type State string

const (
	StateStart         State = "START"
	StateResolveSource State = "RESOLVE_SOURCE"
	StateResolveDest   State = "RESOLVE_DEST"
	StateSanityCheck   State = "SANITY_CHECK"
	StateMount         State = "MOUNT"
	StateSync          State = "SYNC"
	StateHashBoth      State = "HASH_BOTH"
	StateCompare       State = "COMPARE"
	StateUnmount       State = "UNMOUNT"
	StateEnd           State = "END"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	// NoOp means the run deliberately did nothing: unsupported parameters
	// or a caller-side condition such as a failed backup.
	NoOp Outcome = iota
	Success
	// ResolutionFailure covers every failure found before mounting: a
	// volume, disk or EFI partition that cannot be determined, several EFI
	// partitions on one disk, or source and destination being the same.
	ResolutionFailure
	// MountFailure means a partition could not be mounted, or its mounted
	// tree could not be read before the destination was modified.
	MountFailure
	// VerificationFailure means the destination was (or may have been)
	// modified and does not match the source.
	VerificationFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ResolutionFailure:
		return "resolution failure"
	case MountFailure:
		return "mount failure"
	case VerificationFailure:
		return "verification failure"
	default:
		return "did not run"
	}
}

// ExitCode is the process exit status for the outcome. NoOp exits 0.
func (o Outcome) ExitCode() int {
	switch o {
	case ResolutionFailure, MountFailure:
		return 1
	case VerificationFailure:
		return 2
	default:
		return 0
	}
}

// Error is a fatal run error tagged with the outcome it leads to.
type Error struct {
	Kind Outcome
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind Outcome, format string, a ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, a...)}
}

// OutcomeOf returns the outcome carried by err, or ResolutionFailure for
// untagged errors.
func OutcomeOf(err error) Outcome {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ResolutionFailure
}

// Report describes a finished run.
type Report struct {
	Invocation invocation.Invocation
	Outcome    Outcome
	Err        error
	Simulated  bool
	// States lists the visited states in order.
	States []State

	SourceDisk           resolve.Result
	DestinationDisk      resolve.Result
	SourcePartition      resolve.Result
	DestinationPartition resolve.Result

	Sync              mirror.Report
	SourceDigest      string
	DestinationDigest string

	// Warnings holds unmount failures.
	Warnings []error
}

func (r *Report) enter(s State) { r.States = append(r.States, s) }

// ExitCode is the process exit status for the run.
func (r *Report) ExitCode() int { return r.Outcome.ExitCode() }
