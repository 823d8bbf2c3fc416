package object

import (
	"errors"
	"fmt"
	"os"
)

// ErrOrphanOfsDelta is returned when an ofs-delta's backward offset does
// not land on any previously seen entry in the same pack.
var ErrOrphanOfsDelta = errors.New("orphan ofs-delta")

// Entry is one object held by the Store, in either resolved form (Hash and
// Type populated, buffer holds the canonical object payload) or
// unresolved delta form (RawType is PackOfsDelta or PackRefDelta, buffer
// holds the delta instruction bytes, and BaseIndex or BaseHash identifies
// the base).
//
// Index is the entry's position in insertion order; ofs-delta back
// references resolve to a BaseIndex rather than a pointer so the arena can
// grow without invalidating existing references.
type Entry struct {
	Index      int
	Hash       Hash
	Type       ObjectType
	RawType    PackObjectType // zero for resolved entries
	PackOffset int
	BaseIndex  int // index of ofs-delta base, -1 if not applicable
	BaseHash   Hash

	data       []byte // resident buffer; nil if spilled or released
	canFree    bool
	fileOffset int64
	size       int
}

// IsDelta reports whether the entry still needs delta resolution.
func (e *Entry) IsDelta() bool {
	return e.RawType == PackOfsDelta || e.RawType == PackRefDelta
}

// Store is the in-memory, per-run object index (component C6): an
// insertion-ordered arena plus a hash-keyed lookup, with an optional
// scratch-file spill mode for large packs.
//
// Only resolved commit/tree/blob/tag objects are indexed by hash; raw
// delta entries live only in the insertion-order arena, and the resolver
// appends a separate resolved entry for each while leaving the delta
// entry in place.
type Store struct {
	entries  []*Entry
	byHash   map[Hash]int
	byOffset map[int]int

	// Repair marks that a superseding write to an already-seen hash
	// should replace the materialization-visible mapping instead of being
	// treated as a no-op, matching the repair-as-verify contract.
	Repair bool

	lowMemory   bool
	scratch     *os.File
	scratchPath string
	writeOffset int64
}

// NewStore creates an object store. When lowMemory is true, resolved
// object buffers are spilled to a scratch file sharing scratchPath's
// directory instead of staying resident.
func NewStore(lowMemory bool, scratchPath string) *Store {
	return &Store{
		byHash:      make(map[Hash]int),
		byOffset:    make(map[int]int),
		lowMemory:   lowMemory,
		scratchPath: scratchPath,
	}
}

// Close releases the scratch file, if one was opened.
func (s *Store) Close() error {
	if s.scratch == nil {
		return nil
	}
	path := s.scratch.Name()
	err := s.scratch.Close()
	_ = os.Remove(path)
	s.scratch = nil
	return err
}

// Len returns the number of entries in insertion order.
func (s *Store) Len() int { return len(s.entries) }

// ByIndex returns the entry at the given insertion index.
func (s *Store) ByIndex(i int) (*Entry, bool) {
	if i < 0 || i >= len(s.entries) {
		return nil, false
	}
	return s.entries[i], true
}

// Lookup returns the resolved entry for a hash, if present.
func (s *Store) Lookup(hash Hash) (*Entry, bool) {
	idx, ok := s.byHash[hash]
	if !ok {
		return nil, false
	}
	return s.entries[idx], true
}

// LoadPack ingests every raw entry from a decoded pack in wire order.
// Delta entries are recorded unresolved; resolving them is the delta
// resolver's job (see resolve.go).
func (s *Store) LoadPack(pf *PackFile) error {
	for _, e := range pf.Entries {
		switch e.Type {
		case PackOfsDelta:
			baseOffset := e.Offset - int(e.BaseDistance)
			baseIdx, ok := s.byOffset[baseOffset]
			if !ok {
				return fmt.Errorf("%w: at offset %d, base offset %d not seen", ErrOrphanOfsDelta, e.Offset, baseOffset)
			}
			idx := s.appendDelta(e, baseIdx, "")
			s.byOffset[e.Offset] = idx
		case PackRefDelta:
			idx := s.appendDelta(e, -1, e.BaseRef)
			s.byOffset[e.Offset] = idx
		default:
			objType, err := packTypeToObjectType(e.Type)
			if err != nil {
				return err
			}
			hash := HashObject(objType, e.Data)
			idx := s.put(hash, objType, e.Data, e.Offset)
			s.byOffset[e.Offset] = idx
		}
	}
	return nil
}

func (s *Store) appendDelta(e PackEntry, baseIdx int, baseHash Hash) int {
	entry := &Entry{
		Index:      len(s.entries),
		RawType:    e.Type,
		PackOffset: e.Offset,
		BaseIndex:  baseIdx,
		BaseHash:   baseHash,
	}
	s.storeBuffer(entry, e.Data)
	s.entries = append(s.entries, entry)
	return entry.Index
}

// put inserts a resolved (non-delta) object straight from the pack,
// deduplicating on hash unless Repair is set.
func (s *Store) put(hash Hash, objType ObjectType, data []byte, packOffset int) int {
	if existing, ok := s.byHash[hash]; ok && !s.Repair {
		return existing
	}
	entry := &Entry{
		Index:      len(s.entries),
		Hash:       hash,
		Type:       objType,
		PackOffset: packOffset,
		BaseIndex:  -1,
	}
	s.storeBuffer(entry, data)
	s.entries = append(s.entries, entry)
	s.byHash[hash] = entry.Index
	return entry.Index
}

// PutResident stores an object that did not arrive via the pack (a
// manifest-synthesized tree, or a blob loaded from the local working
// tree). These entries are never spilled and never released: they have
// no pack offset to reload from.
func (s *Store) PutResident(hash Hash, objType ObjectType, data []byte) int {
	if existing, ok := s.byHash[hash]; ok {
		return existing
	}
	entry := &Entry{
		Index:     len(s.entries),
		Hash:      hash,
		Type:      objType,
		BaseIndex: -1,
		data:      data,
		canFree:   false,
	}
	s.entries = append(s.entries, entry)
	s.byHash[hash] = entry.Index
	return entry.Index
}

// StoreResolved records the output of delta resolution as a brand-new
// entry (the delta and its base are left untouched) and indexes it by
// hash, honoring the same dedup-or-supersede rule as put.
func (s *Store) StoreResolved(hash Hash, objType ObjectType, data []byte) int {
	if existing, ok := s.byHash[hash]; ok && !s.Repair {
		return existing
	}
	entry := &Entry{
		Index:     len(s.entries),
		Hash:      hash,
		Type:      objType,
		BaseIndex: -1,
	}
	s.storeBuffer(entry, data)
	s.entries = append(s.entries, entry)
	s.byHash[hash] = entry.Index
	return entry.Index
}

func (s *Store) storeBuffer(entry *Entry, data []byte) {
	entry.canFree = true
	if !s.lowMemory {
		entry.data = data
		return
	}
	off, err := s.writeScratch(data)
	if err != nil {
		// Scratch write failures degrade to resident storage rather than
		// losing the object; low-memory mode is a best-effort optimization.
		entry.data = data
		return
	}
	entry.fileOffset = off
	entry.size = len(data)
}

func (s *Store) writeScratch(data []byte) (int64, error) {
	if s.scratch == nil {
		f, err := os.CreateTemp(dirOf(s.scratchPath), ".objstore-*")
		if err != nil {
			return 0, err
		}
		s.scratch = f
	}
	off := s.writeOffset
	n, err := s.scratch.WriteAt(data, off)
	if err != nil {
		return 0, err
	}
	s.writeOffset += int64(n)
	return off, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// Buffer returns an entry's payload, lazily reading it back from the
// scratch file if it was spilled.
func (s *Store) Buffer(entry *Entry) ([]byte, error) {
	if entry.data != nil {
		return entry.data, nil
	}
	if s.scratch == nil {
		return nil, fmt.Errorf("object %d: buffer released with no scratch file", entry.Index)
	}
	buf := make([]byte, entry.size)
	if _, err := s.scratch.ReadAt(buf, entry.fileOffset); err != nil {
		return nil, fmt.Errorf("object %d: scratch read: %w", entry.Index, err)
	}
	return buf, nil
}

// Release drops an entry's resident buffer if it can be safely reloaded
// later. Entries with canFree=false (resident, pre-pack sources) are
// never released.
func (s *Store) Release(entry *Entry) {
	if !entry.canFree {
		return
	}
	if s.lowMemory {
		entry.data = nil
	}
}
