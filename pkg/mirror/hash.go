package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/afero"
)

// Hasher computes directory content digests.
type Hasher struct {
	fs afero.Fs
}

// NewHasher returns a Hasher on fs. A nil fs selects the OS filesystem.
func NewHasher(fs afero.Fs) *Hasher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Hasher{fs: fs}
}

// HashTree returns a digest of the regular files under dir. Hidden entries
// (any path component starting with a dot) and entries matching exclude are
// left out. Two trees have the same digest iff they hold the same set of
// relative file paths with identical contents; directories, permissions and
// timestamps do not contribute.
//
// The digest is a CIDv1 string (raw codec, sha2-256 multihash) over a
// manifest with one "path NUL sha256 LF" record per file in lexical order.
func (h *Hasher) HashTree(dir string, exclude []string) (string, error) {
	if err := validatePatterns(exclude); err != nil {
		return "", err
	}

	var manifest strings.Builder
	err := afero.Walk(h.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(info.Name(), ".") || excluded(rel, exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		sum, err := h.fileSum(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(&manifest, "%s\x00%s\n", rel, sum)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", dir, err)
	}

	mh, err := multihash.Sum([]byte(manifest.String()), multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func (h *Hasher) fileSum(p string) (string, error) {
	f, err := h.fs.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
