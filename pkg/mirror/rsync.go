package mirror

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Rsync mirrors directories with rsync(1).
type Rsync struct {
	runner CommandRunner
}

func NewRsync(runner CommandRunner) *Rsync {
	return &Rsync{runner: runner}
}

// BuildSyncArgs builds the rsync arguments for mirroring src onto dst. It
// does not execute anything.
//
// Files are compared by checksum. Exclude patterns are anchored at the
// transfer root.
func BuildSyncArgs(src, dst string, opts Options) ([]string, error) {
	if src == "" {
		return nil, fmt.Errorf("BuildSyncArgs: source is required")
	}
	if dst == "" {
		return nil, fmt.Errorf("BuildSyncArgs: destination is required")
	}
	if err := validatePatterns(opts.Exclude); err != nil {
		return nil, err
	}

	args := []string{"-rlt", "--checksum", "--delete", "--modify-window=1", "--itemize-changes"}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	for _, p := range opts.Exclude {
		args = append(args, "--exclude=/"+strings.TrimPrefix(p, "/"))
	}
	args = append(args,
		strings.TrimSuffix(src, "/")+"/",
		strings.TrimSuffix(dst, "/")+"/",
	)
	return args, nil
}

func (r *Rsync) Mirror(ctx context.Context, src, dst string, opts Options) (Report, error) {
	args, err := BuildSyncArgs(src, dst, opts)
	if err != nil {
		return Report{DryRun: opts.DryRun}, fmt.Errorf("%w: %w", ErrUntouched, err)
	}
	out, err := r.runner.Output(ctx, "rsync", args...)
	rep := parseItemized(string(out))
	rep.DryRun = opts.DryRun
	if err != nil {
		return rep, fmt.Errorf("rsync failed: %w", err)
	}
	return rep, nil
}

// parseItemized turns rsync --itemize-changes output into a Report.
// Attribute-only changes are ignored.
func parseItemized(out string) Report {
	var rep Report
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "*deleting"); ok {
			p := strings.TrimSuffix(strings.TrimSpace(rest), "/")
			rep.Ops = append(rep.Ops, Op{Kind: OpDelete, Path: p})
			continue
		}
		if len(line) < 13 || line[11] != ' ' {
			continue
		}
		flags, p := line[:11], strings.TrimSuffix(line[12:], "/")
		created := strings.HasPrefix(flags[2:], "+++++++")
		switch {
		case (flags[0] == '>' || flags[0] == '<') && flags[1] == 'f':
			if created {
				rep.Ops = append(rep.Ops, Op{Kind: OpCopy, Path: p})
			} else {
				rep.Ops = append(rep.Ops, Op{Kind: OpUpdate, Path: p})
			}
		case flags[0] == 'c' && flags[1] == 'd' && created:
			rep.Ops = append(rep.Ops, Op{Kind: OpMkdir, Path: p})
		}
	}
	return rep
}
