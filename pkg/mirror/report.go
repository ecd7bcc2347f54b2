package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUntouched marks mirror errors returned before the destination was
// modified.
var ErrUntouched = errors.New("destination left untouched")

// OpKind is the kind of change a mirror makes to the destination.
type OpKind string

const (
	OpMkdir  OpKind = "mkdir"
	OpCopy   OpKind = "copy"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one change to the destination. Path is slash separated and relative
// to the mirrored roots.
type Op struct {
	Kind OpKind
	Path string
}

func (o Op) String() string { return fmt.Sprintf("%s %s", o.Kind, o.Path) }

// Report lists the changes made by a mirror run, or the changes a dry run
// would have made.
type Report struct {
	DryRun bool
	Ops    []Op
}

// Changed returns the number of operations in the report.
func (r Report) Changed() int { return len(r.Ops) }

func (r Report) String() string {
	var b strings.Builder
	mode := "applied"
	if r.DryRun {
		mode = "would apply"
	}
	fmt.Fprintf(&b, "mirror %s %d operation(s)\n", mode, len(r.Ops))
	for _, op := range r.Ops {
		fmt.Fprintf(&b, "  - %s\n", op)
	}
	return b.String()
}

// Options control a mirror run.
type Options struct {
	// Exclude holds doublestar patterns matched against the slash separated
	// path relative to the roots. Excluded entries are neither copied nor
	// deleted. "/.*" style anchoring is implicit: ".*" only matches entries
	// at the top level.
	Exclude []string
	DryRun  bool
}

// Mirror makes dst an exact copy of src.
type Mirror interface {
	Mirror(ctx context.Context, src, dst string, opts Options) (Report, error)
}

// validatePatterns rejects malformed exclude patterns.
func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
