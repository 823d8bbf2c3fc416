package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitmirror/pkg/object"
)

func TestPlanRepairDetectsMissingAndModified(t *testing.T) {
	dir := t.TempDir()
	goodData := []byte("unchanged\n")
	if err := os.WriteFile(filepath.Join(dir, "good.txt"), goodData, 0o644); err != nil {
		t.Fatalf("write good.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "modified.txt"), []byte("tampered\n"), 0o644); err != nil {
		t.Fatalf("write modified.txt: %v", err)
	}
	// "missing.txt" is intentionally never created on disk.

	goodHash := object.HashObject(object.TypeBlob, goodData)
	modifiedHash := object.HashObject(object.TypeBlob, []byte("original\n"))
	missingHash := object.HashObject(object.TypeBlob, []byte("absent\n"))

	m := &Manifest{
		Have: h(1),
		Trees: []ManifestTree{{Hash: h(2), Path: "", Entries: []ManifestEntry{
			{Mode: "100644", Hash: goodHash, Name: "good.txt"},
			{Mode: "100644", Hash: modifiedHash, Name: "modified.txt"},
			{Mode: "100644", Hash: missingHash, Name: "missing.txt"},
		}}},
	}

	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	defects := PlanRepair(m, idx, NewIgnoreSet(nil))
	if len(defects) != 2 {
		t.Fatalf("expected 2 defects, got %d: %+v", len(defects), defects)
	}

	byPath := make(map[string]Defect, len(defects))
	for _, d := range defects {
		byPath[d.Path] = d
	}
	if _, ok := byPath["good.txt"]; ok {
		t.Fatalf("did not expect good.txt to be a defect")
	}
	if _, ok := byPath["modified.txt"]; !ok {
		t.Fatalf("expected modified.txt to be a defect")
	}
	if _, ok := byPath["missing.txt"]; !ok {
		t.Fatalf("expected missing.txt to be a defect")
	}
}

func TestPlanRepairHonorsIgnoreOnlyForMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "vendor"), 0o755); err != nil {
		t.Fatalf("mkdir vendor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vendor", "thing.txt"), []byte("local\n"), 0o644); err != nil {
		t.Fatalf("write vendor/thing.txt: %v", err)
	}
	expectedHash := object.HashObject(object.TypeBlob, []byte("upstream\n"))

	m := &Manifest{
		Have: h(1),
		Trees: []ManifestTree{{Hash: h(2), Path: "", Entries: []ManifestEntry{
			{Mode: "100644", Hash: expectedHash, Name: "vendor/thing.txt"},
		}}},
	}
	idx, err := ScanLocal(dir, NewIgnoreSet([]string{"vendor/"}))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}
	defects := PlanRepair(m, idx, NewIgnoreSet([]string{"vendor/"}))
	if len(defects) != 0 {
		t.Fatalf("expected an ignored hash mismatch to produce no defects, got %+v", defects)
	}
}

func TestPlanRepairReportsMissingEvenWhenIgnored(t *testing.T) {
	dir := t.TempDir()
	// vendor/thing.txt is intentionally never created on disk.
	m := &Manifest{
		Have: h(1),
		Trees: []ManifestTree{{Hash: h(2), Path: "", Entries: []ManifestEntry{
			{Mode: "100644", Hash: h(3), Name: "vendor/thing.txt"},
		}}},
	}
	idx, err := ScanLocal(dir, NewIgnoreSet([]string{"vendor/"}))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}
	defects := PlanRepair(m, idx, NewIgnoreSet([]string{"vendor/"}))
	if len(defects) != 1 || defects[0].Path != "vendor/thing.txt" {
		t.Fatalf("expected a missing ignored path to still be a defect, got %+v", defects)
	}
}

func TestWantHashesDeduplicates(t *testing.T) {
	defects := []Defect{
		{Path: "a", Hash: h(1)},
		{Path: "b", Hash: h(1)},
		{Path: "c", Hash: h(2)},
	}
	wants := WantHashes(defects)
	if len(wants) != 2 {
		t.Fatalf("expected 2 deduplicated wants, got %d: %v", len(wants), wants)
	}
}

func TestApplyRepairRecordsUpdatingNotice(t *testing.T) {
	dir := t.TempDir()
	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	data := []byte("important change\n")
	hash := object.HashObject(object.TypeBlob, data)
	store := object.NewStore(false, "")
	defer store.Close()
	store.PutResident(hash, object.TypeBlob, data)

	defects := []Defect{{Path: "UPDATING", Hash: hash, Mode: "100644"}}
	result, err := ApplyRepair(store, idx, dir, defects)
	if err != nil {
		t.Fatalf("ApplyRepair: %v", err)
	}
	if len(result.UpdatingNotices) != 1 || result.UpdatingNotices[0] != "UPDATING" {
		t.Fatalf("expected UPDATING notice, got %+v", result.UpdatingNotices)
	}
}

func TestApplyRepairWritesMissingFile(t *testing.T) {
	dir := t.TempDir()
	idx, err := ScanLocal(dir, NewIgnoreSet(nil))
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	data := []byte("recovered content\n")
	hash := object.HashObject(object.TypeBlob, data)
	store := object.NewStore(false, "")
	defer store.Close()
	store.PutResident(hash, object.TypeBlob, data)

	defects := []Defect{{Path: "recovered.txt", Hash: hash, Mode: "100644"}}
	result, err := ApplyRepair(store, idx, dir, defects)
	if err != nil {
		t.Fatalf("ApplyRepair: %v", err)
	}
	if len(result.Added) != 1 || result.Added[0] != "recovered.txt" {
		t.Fatalf("expected recovered.txt to be reported added, got %+v", result)
	}

	got, err := os.ReadFile(filepath.Join(dir, "recovered.txt"))
	if err != nil {
		t.Fatalf("read recovered file: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("file content mismatch: got %q want %q", got, data)
	}
}
