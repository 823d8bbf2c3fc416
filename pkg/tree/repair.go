package tree

import (
	"strings"

	"github.com/odvcencio/gitmirror/pkg/object"
)

// Defect is one manifest entry whose on-disk state no longer matches
// what the manifest recorded.
type Defect struct {
	Path string
	Hash object.Hash
	Mode string
}

// PlanRepair compares a manifest's flattened file list against the local
// scan and returns the set of defective paths: missing from disk, or
// present with a different content hash, and not covered by an ignore
// rule.
func PlanRepair(m *Manifest, local *LocalIndex, ignore *IgnoreSet) []Defect {
	var defects []Defect
	for _, fe := range m.Flatten() {
		node, ok := local.ByPath[fe.Path]
		if !ok || node.IsDir {
			defects = append(defects, Defect{Path: fe.Path, Hash: fe.Hash, Mode: fe.Mode})
			continue
		}
		if node.Hash != fe.Hash && !ignore.Match(fe.Path) {
			defects = append(defects, Defect{Path: fe.Path, Hash: fe.Hash, Mode: fe.Mode})
		}
	}
	return defects
}

// WantHashes extracts the deduplicated set of object hashes a repair
// fetch should request.
func WantHashes(defects []Defect) []string {
	seen := make(map[object.Hash]bool, len(defects))
	var wants []string
	for _, d := range defects {
		if seen[d.Hash] {
			continue
		}
		seen[d.Hash] = true
		wants = append(wants, string(d.Hash))
	}
	return wants
}

// ApplyRepair writes every defective path whose blob is now available in
// the store (either freshly fetched or already resident locally).
func ApplyRepair(store *object.Store, local *LocalIndex, root string, defects []Defect) (*WalkResult, error) {
	result := &WalkResult{}
	for _, d := range defects {
		var data []byte
		if entry, ok := store.Lookup(d.Hash); ok {
			buf, err := store.Buffer(entry)
			if err != nil {
				return nil, err
			}
			data = buf
		} else {
			entry, found, err := LoadFromLocal(store, local, d.Hash, d.Path)
			if err != nil {
				return nil, err
			}
			if !found {
				continue // object still unavailable; leave for the next run
			}
			data, err = store.Buffer(entry)
			if err != nil {
				return nil, err
			}
		}

		mode := d.Mode
		if mode == "" {
			mode = "100644"
		}
		if err := writeEntry(root, d.Path, mode, data); err != nil {
			return nil, err
		}
		if _, existed := local.ByPath[d.Path]; existed {
			result.Updated = append(result.Updated, d.Path)
		} else {
			result.Added = append(result.Added, d.Path)
		}
		if strings.Contains(d.Path, "UPDATING") {
			result.UpdatingNotices = append(result.UpdatingNotices, d.Path)
		}
	}
	return result, nil
}
