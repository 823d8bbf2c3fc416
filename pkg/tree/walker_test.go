package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitmirror/pkg/object"
)

func buildCommit(t *testing.T, store *object.Store, files map[string][]byte) object.Hash {
	t.Helper()
	tr := &object.Tree{}
	for name, data := range files {
		hash := object.HashObject(object.TypeBlob, data)
		store.PutResident(hash, object.TypeBlob, data)
		tr.Entries = append(tr.Entries, object.TreeEntry{Name: name, Mode: object.TreeModeFile, BlobHash: hash})
	}
	treeData := object.MarshalTree(tr)
	treeHash := object.HashObject(object.TypeTree, treeData)
	store.PutResident(treeHash, object.TypeTree, treeData)

	raw := []byte("tree " + string(treeHash) + "\n\nmsg\n")
	commitHash := object.HashObject(object.TypeCommit, raw)
	store.PutResident(commitHash, object.TypeCommit, raw)
	return commitHash
}

func TestWalkerWalkWritesNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(false, "")
	defer store.Close()

	commitHash := buildCommit(t, store, map[string][]byte{"a.txt": []byte("hi\n")})

	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	w := NewWalker(store, dir, idx, NewIgnoreSet(nil))
	result, err := w.Walk(commitHash)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(result.Added) != 1 || result.Added[0] != "a.txt" {
		t.Fatalf("expected a.txt to be added, got %+v", result.Added)
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("read a.txt: %v", err)
	}
	if string(got) != "hi\n" {
		t.Fatalf("content mismatch: got %q", got)
	}

	if result.Manifest.Have != commitHash {
		t.Fatalf("manifest have mismatch: got %s want %s", result.Manifest.Have, commitHash)
	}
}

func TestWalkerWalkRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old\n"), 0o644); err != nil {
		t.Fatalf("write stale.txt: %v", err)
	}

	store := object.NewStore(false, "")
	defer store.Close()
	commitHash := buildCommit(t, store, map[string][]byte{"a.txt": []byte("hi\n")})

	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	w := NewWalker(store, dir, idx, NewIgnoreSet(nil))
	result, err := w.Walk(commitHash)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "stale.txt" {
		t.Fatalf("expected stale.txt to be removed, got %+v", result.Removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected stale.txt to no longer exist on disk")
	}
}

func TestWalkerWalkRecordsUpdatingNotices(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(false, "")
	defer store.Close()

	commitHash := buildCommit(t, store, map[string][]byte{
		"UPDATING":        []byte("read me\n"),
		"src/UPDATING.md": []byte("also read me\n"),
		"a.txt":           []byte("unrelated\n"),
	})

	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	w := NewWalker(store, dir, idx, NewIgnoreSet(nil))
	result, err := w.Walk(commitHash)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(result.UpdatingNotices) != 2 {
		t.Fatalf("expected 2 UPDATING notices, got %+v", result.UpdatingNotices)
	}
	seen := make(map[string]bool, len(result.UpdatingNotices))
	for _, p := range result.UpdatingNotices {
		seen[p] = true
	}
	if !seen["UPDATING"] || !seen["src/UPDATING.md"] {
		t.Fatalf("expected both UPDATING paths to be recorded, got %+v", result.UpdatingNotices)
	}
}

func TestWalkerWalkSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	data := []byte("same\n")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), data, 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}

	store := object.NewStore(false, "")
	defer store.Close()
	commitHash := buildCommit(t, store, map[string][]byte{"a.txt": data})

	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	w := NewWalker(store, dir, idx, NewIgnoreSet(nil))
	result, err := w.Walk(commitHash)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(result.Added) != 0 || len(result.Updated) != 0 {
		t.Fatalf("expected no changes for an already-matching file, got added=%v updated=%v", result.Added, result.Updated)
	}
}
