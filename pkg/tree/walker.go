package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitmirror/pkg/object"
)

// WalkResult records what a walk changed, for display and for the
// caller's exit-status decisions.
type WalkResult struct {
	Manifest *Manifest
	Added    []string
	Updated  []string
	Removed  []string

	// UpdatingNotices collects the path of every written file whose name
	// contains "UPDATING", so the caller can print a final reminder to
	// review it — these files conventionally carry upgrade instructions
	// that are easy to miss in a large change set.
	UpdatingNotices []string
}

// Walker is component C7: it walks a commit's tree, reconciles it
// against a LocalIndex, writes or removes files as needed, and builds
// the manifest that will seed the next run.
type Walker struct {
	Store *object.Store
	Root  string
	Local *LocalIndex
	Ignore *IgnoreSet

	// DisplayDepth truncates printed paths to this many path components;
	// 0 means print the full path.
	DisplayDepth int
	Verbosity    int

	printed map[string]bool
}

// NewWalker constructs a Walker over an already-loaded store and local
// scan.
func NewWalker(store *object.Store, root string, local *LocalIndex, ignore *IgnoreSet) *Walker {
	return &Walker{Store: store, Root: root, Local: local, Ignore: ignore, printed: make(map[string]bool)}
}

// Walk materializes commitHash's tree onto disk and deletes any scanned
// local file not present in it (ignored paths are kept), returning the
// manifest to persist.
func (w *Walker) Walk(commitHash object.Hash) (*WalkResult, error) {
	entry, ok := w.Store.Lookup(commitHash)
	if !ok {
		return nil, fmt.Errorf("missing commit object %s", commitHash)
	}
	raw, err := w.Store.Buffer(entry)
	if err != nil {
		return nil, err
	}
	commit, err := object.ParseCommit(raw)
	if err != nil {
		return nil, fmt.Errorf("parse commit %s: %w", commitHash, err)
	}

	result := &WalkResult{Manifest: &Manifest{Have: commitHash}}
	keep := make(map[string]bool)

	if err := w.walkTree(commit.TreeHash, "", result, keep); err != nil {
		return nil, err
	}

	if err := w.deleteStale(keep, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (w *Walker) walkTree(treeHash object.Hash, relPath string, result *WalkResult, keep map[string]bool) error {
	entry, ok := w.Store.Lookup(treeHash)
	if !ok {
		return fmt.Errorf("missing tree object %s at %q", treeHash, relPath)
	}
	raw, err := w.Store.Buffer(entry)
	if err != nil {
		return err
	}
	t, err := object.UnmarshalTree(raw)
	if err != nil {
		return fmt.Errorf("unmarshal tree %s: %w", treeHash, err)
	}

	// Reserve this tree's slot before recursing so blocks come out in
	// pre-order, root tree first.
	slot := len(result.Manifest.Trees)
	result.Manifest.Trees = append(result.Manifest.Trees, ManifestTree{})
	block := ManifestTree{Hash: treeHash, Path: relPath}

	for _, te := range t.Entries {
		full := joinPath(relPath, te.Name)
		keep[full] = true

		if te.IsDir {
			block.Entries = append(block.Entries, ManifestEntry{Mode: te.Mode, Hash: te.SubHash, Name: te.Name})
			if err := w.walkTree(te.SubHash, full, result, keep); err != nil {
				return err
			}
			continue
		}

		block.Entries = append(block.Entries, ManifestEntry{Mode: te.Mode, Hash: te.BlobHash, Name: te.Name})

		local, exists := w.Local.ByPath[full]
		if exists && !local.IsDir && local.Hash == te.BlobHash && local.Mode == te.Mode {
			continue // already correct on disk
		}

		data, err := w.blobData(te.BlobHash, full)
		if err != nil {
			return fmt.Errorf("missing object for %s: %w", full, err)
		}
		if err := writeEntry(w.Root, full, te.Mode, data); err != nil {
			return err
		}
		if exists {
			result.Updated = append(result.Updated, full)
		} else {
			result.Added = append(result.Added, full)
		}
		if strings.Contains(full, "UPDATING") {
			result.UpdatingNotices = append(result.UpdatingNotices, full)
		}
		w.display('*', full, exists)
	}

	result.Manifest.Trees[slot] = block
	return nil
}

func (w *Walker) blobData(hash object.Hash, path string) ([]byte, error) {
	if entry, ok := w.Store.Lookup(hash); ok {
		return w.Store.Buffer(entry)
	}
	entry, found, err := LoadFromLocal(w.Store, w.Local, hash, path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("object %s not in pack or local tree", hash)
	}
	return w.Store.Buffer(entry)
}

func (w *Walker) deleteStale(keep map[string]bool, result *WalkResult) error {
	for path, node := range w.Local.ByPath {
		if keep[path] || node.IsDir {
			continue
		}
		if w.Ignore.Match(path) {
			continue
		}
		if err := os.Remove(node.AbsPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		result.Removed = append(result.Removed, path)
		w.display('-', path, false)
	}
	for path, node := range w.Local.ByPath {
		if !node.IsDir || keep[path] {
			continue
		}
		removeEmptyDir(w.Root, node.AbsPath)
	}
	return nil
}

func writeEntry(root, relPath, mode string, data []byte) error {
	full := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", relPath, err)
	}
	if IsSymlinkMode(mode) {
		_ = os.Remove(full)
		if err := os.Symlink(string(data), full); err != nil {
			return fmt.Errorf("symlink %s: %w", relPath, err)
		}
		return nil
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s for write: %w", relPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", relPath, err)
	}
	if err := os.Chmod(full, filePermFromMode(mode)); err != nil {
		return fmt.Errorf("chmod %s: %w", relPath, err)
	}
	return nil
}

// removeEmptyDir prunes dir and any now-empty ancestors, refusing to
// step outside root.
func removeEmptyDir(root, dir string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}
	for {
		abs, err := filepath.Abs(dir)
		if err != nil || !strings.HasPrefix(abs, absRoot) || abs == absRoot {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (w *Walker) display(kind byte, path string, isUpdate bool) {
	if w.Verbosity < 1 {
		return
	}
	shown := path
	if w.DisplayDepth > 0 {
		parts := strings.Split(path, "/")
		if len(parts) > w.DisplayDepth {
			shown = strings.Join(parts[:w.DisplayDepth], "/")
		}
	}
	if w.printed[shown] {
		return
	}
	w.printed[shown] = true
	sign := "+"
	if isUpdate {
		sign = "*"
	}
	if kind == '-' {
		sign = "-"
	}
	fmt.Printf("%s %s\n", sign, shown)
}
