// Package tree implements the tree walker/materializer (C7), the local
// working-tree scanner (C8), the repair planner (C9), and the manifest
// file format that ties a run to the previous one.
package tree

import (
	"fmt"
	"os"
	"strconv"
)

// POSIX file type bits, as recorded in tree-entry and manifest modes.
const (
	modeTypeMask = 0170000
	modeDir      = 0040000
	modeSymlink  = 0120000
	modeRegular  = 0100000
)

// ParseMode decodes an octal mode string (as found in a tree entry or
// manifest line) into its type bits and permission bits.
func ParseMode(s string) (kind uint32, perm uint32, err error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed mode %q: %w", s, err)
	}
	return uint32(v) & modeTypeMask, uint32(v) & 0007777, nil
}

// IsDirMode reports whether a mode string denotes a tree (directory) entry.
func IsDirMode(s string) bool {
	kind, _, err := ParseMode(s)
	return err == nil && kind == modeDir
}

// IsSymlinkMode reports whether a mode string denotes a symlink entry.
func IsSymlinkMode(s string) bool {
	kind, _, err := ParseMode(s)
	return err == nil && kind == modeSymlink
}

// modeFromFileInfo derives a canonical tree mode string from a Lstat
// result, preserving symlinks rather than following them.
func modeFromFileInfo(fi os.FileInfo) string {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return "120000"
	case fi.IsDir():
		return "40000"
	case fi.Mode()&0111 != 0:
		return "100755"
	default:
		return "100644"
	}
}

// filePermFromMode returns the POSIX permission bits a regular file
// should be chmod'ed to for a given canonical mode string.
func filePermFromMode(mode string) os.FileMode {
	_, perm, err := ParseMode(mode)
	if err != nil || perm == 0 {
		return 0o644
	}
	return os.FileMode(perm)
}
