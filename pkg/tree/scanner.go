package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitmirror/pkg/object"
)

// ErrCoexistenceRefused is returned when the target directory already
// contains a real Git repository; this tool never shares a working tree
// with a standard Git client.
var ErrCoexistenceRefused = errors.New("refusing to run alongside an existing .git directory")

// IgnoreSet matches paths by prefix, the simpler ignore model this tool
// uses in place of full gitignore glob semantics.
type IgnoreSet struct {
	prefixes []string
}

// NewIgnoreSet builds an IgnoreSet from a list of path prefixes.
func NewIgnoreSet(prefixes []string) *IgnoreSet {
	return &IgnoreSet{prefixes: prefixes}
}

// Match reports whether relPath falls under any configured ignore prefix.
func (s *IgnoreSet) Match(relPath string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.prefixes {
		if p == "" {
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p) {
			return true
		}
	}
	return false
}

// LocalNode describes one file or directory found on disk during a scan.
type LocalNode struct {
	Path    string // relative to the scan root, slash-separated
	AbsPath string
	Mode    string
	Hash    object.Hash
	IsDir   bool
	Keep    bool
}

// LocalIndex is component C8's output: every on-disk node, indexed both
// by path and (for files) by content hash.
type LocalIndex struct {
	Root   string
	ByPath map[string]*LocalNode
	ByHash map[object.Hash]*LocalNode
}

// ScanLocal walks root and builds a LocalIndex. Encountering a ".git"
// directory anywhere in the tree aborts with ErrCoexistenceRefused: this
// tool's plain-directory model is incompatible with a real Git worktree.
func ScanLocal(root string, ignore *IgnoreSet) (*LocalIndex, error) {
	idx := &LocalIndex{
		Root:   root,
		ByPath: make(map[string]*LocalNode),
		ByHash: make(map[object.Hash]*LocalNode),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil // fresh clone into a directory that doesn't exist yet
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Name() == ".got" || d.Name() == ".git" {
			return fmt.Errorf("%w: found at %s", ErrCoexistenceRefused, path)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		node := &LocalNode{Path: rel, AbsPath: path}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			node.Mode = "120000"
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			node.Hash = object.HashObject(object.TypeBlob, []byte(target))
		case d.IsDir():
			node.IsDir = true
			node.Mode = "40000"
		default:
			node.Mode = modeFromFileInfo(info)
			if ignore.Match(rel) {
				node.Hash = object.HashBytes([]byte(path))
			} else {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				node.Hash = object.HashObject(object.TypeBlob, data)
			}
		}

		idx.ByPath[rel] = node
		if !node.IsDir {
			idx.ByHash[node.Hash] = node
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// LoadFromLocal implements load_from_local: it looks up a blob by hash
// (and, failing that, by path) in the local index, and if found, reads
// its content from disk and registers it as a resident store entry. This
// is how a ref-delta base or a tree entry missing from the pack can still
// be resolved when the local copy already matches.
func LoadFromLocal(store *object.Store, idx *LocalIndex, hash object.Hash, path string) (*object.Entry, bool, error) {
	node, ok := idx.ByHash[hash]
	if !ok && path != "" {
		if n, ok2 := idx.ByPath[path]; ok2 && n.Hash == hash {
			node, ok = n, true
		}
	}
	if !ok || node.IsDir {
		return nil, false, nil
	}
	data, err := os.ReadFile(node.AbsPath)
	if err != nil {
		return nil, false, fmt.Errorf("load local object %s: %w", path, err)
	}
	idxPos := store.PutResident(hash, object.TypeBlob, data)
	entry, _ := store.ByIndex(idxPos)
	return entry, true, nil
}
