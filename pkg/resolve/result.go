// Package resolve maps mounted volumes to their whole disk and whole disks
// to their EFI system partition.
//
// Every lookup returns a tagged Result instead of failing fast, so callers
// can decide which abort path to take.
package resolve

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous")
)

// Status tags a Result.
type Status int

const (
	NotFound Status = iota
	Found
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not-found"
	}
}

// Tier names the lookup path that produced a Result.
type Tier string

const (
	TierVolume        Tier = "volume"
	TierMountTable    Tier = "mount-table"
	TierDirect        Tier = "direct"
	TierLogicalVolume Tier = "logical-volume"
	TierContainer     Tier = "container"
)

// Result is the outcome of a disk or partition lookup.
type Result struct {
	Status Status
	// ID is set when Status is Found.
	ID string
	// Candidates lists every matching partition when Status is Ambiguous.
	Candidates []string
	// Query is the disk that was finally queried.
	Query string
	Tier  Tier
	// Errs collects collaborator failures met on the way; they never stop
	// the fallback chain by themselves.
	Errs []error
}

// Err returns nil for a Found result, and an error wrapping ErrNotFound or
// ErrAmbiguous otherwise.
func (r Result) Err() error {
	switch r.Status {
	case Found:
		return nil
	case Ambiguous:
		return fmt.Errorf("%w: %d EFI partitions on %s (%s)", ErrAmbiguous, len(r.Candidates), r.Query, strings.Join(r.Candidates, ", "))
	default:
		if len(r.Errs) > 0 {
			return fmt.Errorf("%w: %w", ErrNotFound, errors.Join(r.Errs...))
		}
		return ErrNotFound
	}
}

func (r Result) String() string {
	switch r.Status {
	case Found:
		return fmt.Sprintf("%s (via %s lookup of %s)", r.ID, r.Tier, r.Query)
	case Ambiguous:
		return fmt.Sprintf("ambiguous: %s on %s", strings.Join(r.Candidates, ", "), r.Query)
	default:
		return "not found"
	}
}
