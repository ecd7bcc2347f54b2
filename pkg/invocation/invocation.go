// Package invocation recognizes who started efisync from the shape of the
// positional parameters, and extracts the source and destination volumes.
//
// Three conventions are understood:
//
//	efisync <source> <destination>
//	    manual run.
//	efisync <source> <destination> <exit status> <disk image>
//	    Carbon Copy Cloner post-flight script.
//	efisync <src disk> <src mount> <dst disk> <dst mount> <script> <unused>
//	    SuperDuper! "after copy" script.
package invocation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedInvocation is returned for parameter lists that match no
// known caller.
var ErrUnsupportedInvocation = errors.New("unsupported invocation")

// Caller identifies the program that started the run.
type Caller int

const (
	Manual Caller = iota
	CarbonCopyCloner
	SuperDuper
)

func (c Caller) String() string {
	switch c {
	case CarbonCopyCloner:
		return "Carbon Copy Cloner"
	case SuperDuper:
		return "SuperDuper!"
	default:
		return "manual"
	}
}

// Invocation is a classified parameter list.
type Invocation struct {
	Caller      Caller
	Source      string
	Destination string
	// Skip is set when the caller's own state means there is nothing to
	// do; SkipReason says why. A skipped run did not fail.
	Skip       bool
	SkipReason string
	Params     []string
}

// Classify maps params, the positional parameters without the program
// name, to an Invocation.
func Classify(params []string) (Invocation, error) {
	inv := Invocation{Params: params}

	switch len(params) {
	case 2:
		inv.Caller = Manual
		inv.Source, inv.Destination = params[0], params[1]
	case 4:
		inv.Caller = CarbonCopyCloner
		inv.Source, inv.Destination = params[0], params[1]
		status, image := strings.TrimSpace(params[2]), strings.TrimSpace(params[3])
		switch {
		case status != "0":
			inv.Skip = true
			inv.SkipReason = fmt.Sprintf("%s reported a failed backup (exit status %q)", inv.Caller, status)
		case image != "":
			inv.Skip = true
			inv.SkipReason = fmt.Sprintf("destination is a disk image (%s); disk images have no EFI partition", image)
		}
	case 6:
		inv.Caller = SuperDuper
		inv.Source, inv.Destination = params[1], params[3]
	default:
		return inv, fmt.Errorf("%w: %d parameter(s)", ErrUnsupportedInvocation, len(params))
	}

	if inv.Source == "" || inv.Destination == "" {
		return inv, fmt.Errorf("%w: %s invocation with an empty volume path", ErrUnsupportedInvocation, inv.Caller)
	}
	return inv, nil
}
