package tree

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/gitmirror/pkg/object"
)

// ManifestEntry is one line inside a manifest tree block:
// "<octal mode>\t<entry hash>\t<name>".
type ManifestEntry struct {
	Mode string
	Hash object.Hash
	Name string
}

// ManifestTree is one tree block in the manifest: its own hash and path,
// followed by its entries.
type ManifestTree struct {
	Hash    object.Hash
	Path    string // "" for the root, else a trailing-slash-free relative path
	Entries []ManifestEntry
}

// Manifest is the persisted record of the last-seen remote state: the
// tracked commit hash, plus a full walk of its tree in pre-order.
type Manifest struct {
	Have  object.Hash
	Trees []ManifestTree
}

// Load parses a manifest file from disk. A missing file is reported via
// the usual os.IsNotExist-checkable error; callers that treat "no prior
// manifest" as a legitimate clone trigger should check for that.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("manifest %s: empty file", path)
	}
	have, err := object.HashHex(strings.TrimSpace(sc.Text()))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: malformed have line: %w", path, err)
	}
	m := &Manifest{Have: have}

	var current *ManifestTree
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			current = nil
			continue
		}
		fields := strings.Split(line, "\t")
		if current == nil {
			if len(fields) != 3 {
				return nil, fmt.Errorf("manifest %s: malformed tree header %q", path, line)
			}
			hash, err := object.HashHex(fields[1])
			if err != nil {
				return nil, fmt.Errorf("manifest %s: %w", path, err)
			}
			treePath := strings.TrimSuffix(fields[2], "/")
			m.Trees = append(m.Trees, ManifestTree{Hash: hash, Path: treePath})
			current = &m.Trees[len(m.Trees)-1]
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("manifest %s: malformed entry %q", path, line)
		}
		hash, err := object.HashHex(fields[1])
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		current.Entries = append(current.Entries, ManifestEntry{
			Mode: fields[0],
			Hash: hash,
			Name: fields[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Save persists the manifest atomically: written to "<path>.new", fsync'd,
// then renamed into place. No partial manifest is ever visible to a
// concurrent reader or a crash.
func Save(path string, m *Manifest) error {
	tmpPath := path + ".new"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\n", m.Have)
	for _, t := range m.Trees {
		treePath := t.Path
		fmt.Fprintf(w, "040000\t%s\t%s/\n", t.Hash, treePath)
		for _, e := range t.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Mode, e.Hash, e.Name)
		}
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}

// PrimeStore reconstructs each tree block's canonical wire bytes and
// registers them as resident objects in store, so the delta resolver can
// reference a prior tree as a ref-delta base during an incremental pull.
func (m *Manifest) PrimeStore(store *object.Store) {
	for _, t := range m.Trees {
		ot := &object.Tree{}
		for _, e := range t.Entries {
			entry := object.TreeEntry{Name: e.Name, Mode: e.Mode}
			if IsDirMode(e.Mode) {
				entry.IsDir = true
				entry.SubHash = e.Hash
			} else {
				entry.IsLink = IsSymlinkMode(e.Mode)
				entry.BlobHash = e.Hash
			}
			ot.Entries = append(ot.Entries, entry)
		}
		data := object.MarshalTree(ot)
		store.PutResident(t.Hash, object.TypeTree, data)
	}
}

// FileEntry is a flattened (path, blob) pair reconstructed by walking a
// manifest's tree blocks from the root down.
type FileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// Flatten walks the manifest's tree blocks from the root and returns
// every leaf (non-directory) entry with its full relative path.
func (m *Manifest) Flatten() []FileEntry {
	if len(m.Trees) == 0 {
		return nil
	}
	byHash := make(map[object.Hash]*ManifestTree, len(m.Trees))
	for i := range m.Trees {
		byHash[m.Trees[i].Hash] = &m.Trees[i]
	}

	var out []FileEntry
	var walk func(t *ManifestTree)
	seen := make(map[object.Hash]bool)
	walk = func(t *ManifestTree) {
		if t == nil || seen[t.Hash] {
			return
		}
		seen[t.Hash] = true
		for _, e := range t.Entries {
			full := joinPath(t.Path, e.Name)
			if IsDirMode(e.Mode) {
				walk(byHash[e.Hash])
				continue
			}
			out = append(out, FileEntry{Path: full, Hash: e.Hash, Mode: e.Mode})
		}
	}
	walk(&m.Trees[0])
	return out
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
