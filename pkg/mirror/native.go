package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// Native mirrors directories on an afero.Fs. Files are compared by size and
// content; modification times are ignored.
type Native struct {
	fs afero.Fs
}

// NewNative returns a Native mirror on fs. A nil fs selects the OS
// filesystem.
func NewNative(fs afero.Fs) *Native {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Native{fs: fs}
}

type entry struct {
	dir  bool
	size int64
	// other is set for symlinks, devices and the like.
	other bool
}

// scan lists the non-excluded entries under root, in lexical order.
// Entries that are neither directories nor regular files are listed as
// other when keepOther is set, and skipped otherwise.
func scan(fs afero.Fs, root string, exclude []string, keepOther bool) (map[string]entry, []string, error) {
	entries := make(map[string]entry)
	var order []string

	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		other := !info.IsDir() && !info.Mode().IsRegular()
		if other && !keepOther {
			klog.V(1).Infof("mirror: skipping %s: not a regular file", p)
			return nil
		}
		entries[rel] = entry{dir: info.IsDir(), size: info.Size(), other: other}
		order = append(order, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cannot scan %s: %w", root, err)
	}
	return entries, order, nil
}

func underDeleted(rel string, deleted map[string]bool) bool {
	for p := path.Dir(rel); p != "." && p != "/"; p = path.Dir(p) {
		if deleted[p] {
			return true
		}
	}
	return false
}

// Plan computes the operations that make dst a copy of src. Deletions come
// first, then directory creations and file copies in lexical order.
// Destination entries that are neither directories nor regular files are
// always deleted.
func (n *Native) Plan(src, dst string, exclude []string) ([]Op, error) {
	if err := validatePatterns(exclude); err != nil {
		return nil, err
	}
	srcEntries, srcOrder, err := scan(n.fs, src, exclude, false)
	if err != nil {
		return nil, err
	}
	dstEntries, dstOrder, err := scan(n.fs, dst, exclude, true)
	if err != nil {
		return nil, err
	}

	var deletes, changes []Op
	deleted := make(map[string]bool)
	for _, rel := range dstOrder {
		if underDeleted(rel, deleted) {
			continue
		}
		s, ok := srcEntries[rel]
		d := dstEntries[rel]
		if !ok || d.other || s.dir != d.dir {
			deletes = append(deletes, Op{Kind: OpDelete, Path: rel})
			deleted[rel] = true
		}
	}

	for _, rel := range srcOrder {
		s := srcEntries[rel]
		d, ok := dstEntries[rel]
		if deleted[rel] || underDeleted(rel, deleted) {
			ok = false
		}
		switch {
		case s.dir && !ok:
			changes = append(changes, Op{Kind: OpMkdir, Path: rel})
		case s.dir:
		case !ok:
			changes = append(changes, Op{Kind: OpCopy, Path: rel})
		case s.size != d.size:
			changes = append(changes, Op{Kind: OpUpdate, Path: rel})
		default:
			same, err := n.sameContent(join(src, rel), join(dst, rel))
			if err != nil {
				return nil, err
			}
			if !same {
				changes = append(changes, Op{Kind: OpUpdate, Path: rel})
			}
		}
	}

	return append(deletes, changes...), nil
}

// Mirror implements Mirror. In dry-run mode the plan is returned without
// touching dst. In live mode ctx is checked before every operation; on
// cancellation the report lists what was applied so far.
func (n *Native) Mirror(ctx context.Context, src, dst string, opts Options) (Report, error) {
	ops, err := n.Plan(src, dst, opts.Exclude)
	if err != nil {
		return Report{DryRun: opts.DryRun}, fmt.Errorf("%w: %w", ErrUntouched, err)
	}
	if opts.DryRun {
		for _, op := range ops {
			klog.V(1).Infof("mirror: DRY-RUN: %s", op)
		}
		return Report{DryRun: true, Ops: ops}, nil
	}

	rep := Report{}
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			if len(rep.Ops) == 0 {
				return rep, fmt.Errorf("%w: mirror interrupted: %w", ErrUntouched, err)
			}
			return rep, fmt.Errorf("mirror interrupted after %d operation(s): %w", len(rep.Ops), err)
		}
		klog.V(1).Infof("mirror: %s", op)
		if err := n.apply(src, dst, op); err != nil {
			return rep, fmt.Errorf("mirror failed on %s: %w", op, err)
		}
		rep.Ops = append(rep.Ops, op)
	}
	return rep, nil
}

func (n *Native) apply(src, dst string, op Op) error {
	s, d := join(src, op.Path), join(dst, op.Path)
	switch op.Kind {
	case OpDelete:
		return n.fs.RemoveAll(d)
	case OpMkdir:
		info, err := n.fs.Stat(s)
		if err != nil {
			return err
		}
		return n.fs.MkdirAll(d, info.Mode().Perm())
	case OpCopy, OpUpdate:
		return n.copyFile(s, d)
	default:
		return fmt.Errorf("unknown operation %q", op.Kind)
	}
}

func (n *Native) copyFile(src, dst string) error {
	in, err := n.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := n.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := n.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		klog.Warningf("mirror: cannot set times on %s: %v", dst, err)
	}
	return nil
}

const compareChunk = 64 * 1024

func (n *Native) sameContent(a, b string) (bool, error) {
	fa, err := n.fs.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := n.fs.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, compareChunk)
	bufB := make([]byte, compareChunk)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA == doneB, nil
		}
	}
}

func join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}
