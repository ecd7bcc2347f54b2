package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

var hiddenTopLevel = []string{".*"}

func writeTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := afero.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func mustHash(t *testing.T, fs afero.Fs, dir string) string {
	t.Helper()
	sum, err := NewHasher(fs).HashTree(dir, hiddenTopLevel)
	if err != nil {
		t.Fatalf("hash %s: %v", dir, err)
	}
	return sum
}

func espTree() map[string]string {
	return map[string]string{
		"EFI/BOOT/BOOTX64.efi":           "boot loader",
		"EFI/APPLE/FIRMWARE/fw.scap":     "firmware payload",
		"EFI/OC/config.plist":            "<plist/>",
		".Spotlight-V100/store":          "index",
		"EFI/OC/Drivers/OpenRuntime.efi": "driver",
	}
}

func TestNativeMirror_CopiesUpdatesAndDeletes(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{
		"EFI/BOOT/BOOTX64.efi": "new loader",
		"EFI/OC/config.plist":  "<plist/>",
	})
	writeTree(t, fs, "/dst", map[string]string{
		"EFI/BOOT/BOOTX64.efi": "old loader",
		"EFI/OC/config.plist":  "<plist/>",
		"EFI/Microsoft/x.efi":  "stale",
		"stray.txt":            "stale",
	})

	rep, err := NewNative(fs).Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Op{
		{Kind: OpDelete, Path: "EFI/Microsoft"},
		{Kind: OpDelete, Path: "stray.txt"},
		{Kind: OpUpdate, Path: "EFI/BOOT/BOOTX64.efi"},
	}
	if diff := cmp.Diff(want, rep.Ops); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
	if mustHash(t, fs, "/src") != mustHash(t, fs, "/dst") {
		t.Fatalf("expected identical digests after mirror")
	}
	if ok, _ := afero.Exists(fs, "/dst/EFI/Microsoft"); ok {
		t.Fatalf("expected EFI/Microsoft to be deleted")
	}
}

func TestNativeMirror_SecondRunIsNoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", espTree())
	writeTree(t, fs, "/dst", nil)
	m := NewNative(fs)

	first, err := m.Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Changed() == 0 {
		t.Fatalf("expected the first run to copy files")
	}
	digest := mustHash(t, fs, "/dst")

	second, err := m.Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Changed() != 0 {
		t.Fatalf("expected no operations on the second run, got:\n%s", second)
	}
	if got := mustHash(t, fs, "/dst"); got != digest {
		t.Fatalf("destination changed on the second run: %s != %s", got, digest)
	}
	if got := mustHash(t, fs, "/src"); got != digest {
		t.Fatalf("source and destination digests differ: %s != %s", got, digest)
	}
}

func TestNativeMirror_DryRunDoesNotMutate(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", espTree())
	writeTree(t, fs, "/dst", map[string]string{"EFI/BOOT/BOOTX64.efi": "old", "junk": "x"})
	before := mustHash(t, fs, "/dst")

	rep, err := NewNative(fs).Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel, DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.DryRun || rep.Changed() == 0 {
		t.Fatalf("expected a dry-run report with planned operations, got %+v", rep)
	}
	if after := mustHash(t, fs, "/dst"); after != before {
		t.Fatalf("dry run changed the destination: %s != %s", after, before)
	}
	if ok, _ := afero.Exists(fs, "/dst/junk"); !ok {
		t.Fatalf("dry run deleted a destination file")
	}
}

func TestNativeMirror_HiddenTopLevelEntriesAreLeftAlone(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{
		"EFI/BOOT/BOOTX64.efi": "loader",
		".fseventsd/0000":      "events",
		".VolumeIcon.icns":     "icon",
	})
	writeTree(t, fs, "/dst", map[string]string{
		".Trashes/501/x": "trash",
	})

	if _, err := NewNative(fs).Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{"/dst/.fseventsd", "/dst/.VolumeIcon.icns"} {
		if ok, _ := afero.Exists(fs, p); ok {
			t.Fatalf("hidden source entry %s was copied", p)
		}
	}
	if ok, _ := afero.Exists(fs, "/dst/.Trashes/501/x"); !ok {
		t.Fatalf("hidden destination entry was deleted")
	}
	if mustHash(t, fs, "/src") != mustHash(t, fs, "/dst") {
		t.Fatalf("hidden entries must not affect the digest comparison")
	}
}

func TestNativeMirror_ReplacesTypeConflicts(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", map[string]string{
		"EFI/BOOT/BOOTX64.efi": "loader",
		"EFI/OC":               "now a file",
	})
	writeTree(t, fs, "/dst", map[string]string{
		"EFI/BOOT":           "was a file",
		"EFI/OC/config.list": "old",
	})

	rep, err := NewNative(fs).Mirror(context.Background(), "/src", "/dst", Options{Exclude: hiddenTopLevel})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Op{
		{Kind: OpDelete, Path: "EFI/BOOT"},
		{Kind: OpDelete, Path: "EFI/OC"},
		{Kind: OpMkdir, Path: "EFI/BOOT"},
		{Kind: OpCopy, Path: "EFI/BOOT/BOOTX64.efi"},
		{Kind: OpCopy, Path: "EFI/OC"},
	}
	if diff := cmp.Diff(want, rep.Ops); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
	if mustHash(t, fs, "/src") != mustHash(t, fs, "/dst") {
		t.Fatalf("expected identical digests after mirror")
	}
}

func TestNativeMirror_StopsWhenCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", espTree())
	writeTree(t, fs, "/dst", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := NewNative(fs).Mirror(ctx, "/src", "/dst", Options{Exclude: hiddenTopLevel})
	if !errors.Is(err, ErrUntouched) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected an untouched, cancelled mirror, got %v", err)
	}
	if rep.Changed() != 0 {
		t.Fatalf("expected no applied operations, got %d", rep.Changed())
	}
}

func TestNativeMirror_RejectsInvalidPattern(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/src", nil)
	writeTree(t, fs, "/dst", nil)
	if _, err := NewNative(fs).Mirror(context.Background(), "/src", "/dst", Options{Exclude: []string{"[.*"}}); !errors.Is(err, ErrUntouched) {
		t.Fatalf("expected an untouched error for an invalid pattern, got %v", err)
	}
}

func TestNativeMirror_ReplacesDestinationSymlinks(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	src, dst := filepath.Join(root, "src"), filepath.Join(root, "dst")
	outside := filepath.Join(root, "outside.efi")
	writeTree(t, fs, src, map[string]string{"EFI/BOOT/BOOTX64.efi": "loader"})
	writeTree(t, fs, dst, map[string]string{"EFI/BOOT/keep.txt": "x"})
	if err := os.WriteFile(outside, []byte("not part of the partition"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(dst, "EFI/BOOT/BOOTX64.efi")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(dst, "EFI/stray.efi")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	rep, err := NewNative(fs).Mirror(context.Background(), src, dst, Options{Exclude: hiddenTopLevel})
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	want := []Op{
		{Kind: OpDelete, Path: "EFI/BOOT/BOOTX64.efi"},
		{Kind: OpDelete, Path: "EFI/BOOT/keep.txt"},
		{Kind: OpDelete, Path: "EFI/stray.efi"},
		{Kind: OpCopy, Path: "EFI/BOOT/BOOTX64.efi"},
	}
	if diff := cmp.Diff(want, rep.Ops); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(outside)
	if err != nil || string(data) != "not part of the partition" {
		t.Fatalf("file outside the destination was modified: %q, %v", data, err)
	}
	info, err := os.Lstat(filepath.Join(dst, "EFI/BOOT/BOOTX64.efi"))
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("expected a regular file, got mode %v", info.Mode())
	}
	if _, err := os.Lstat(filepath.Join(dst, "EFI/stray.efi")); !os.IsNotExist(err) {
		t.Fatalf("expected the stray symlink to be deleted, got %v", err)
	}
}
