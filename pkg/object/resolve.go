package object

import (
	"errors"
	"fmt"
)

// ErrMissingDeltaBase is returned when a ref-delta's base is absent both
// from the store and from the caller-supplied local lookup.
var ErrMissingDeltaBase = errors.New("missing delta base")

type resolvedObject struct {
	objType ObjectType
	data    []byte
}

// LocalLookup resolves a ref-delta base hash against state outside the
// pack (the local scanner's working-tree index), used only when a thin
// pack references a base object it does not itself contain.
type LocalLookup func(hash Hash) (*Entry, bool, error)

// ResolveDeltas walks every delta entry in the store and materializes its
// full object buffer, storing the result as a new resolved entry. Deltas
// and their bases are left untouched; resolution only appends. Chains are
// resolved outermost objects first by walking from the newest entries
// backward, memoizing each index's resolved buffer so shared middle bases
// in long chains are only applied once.
func ResolveDeltas(store *Store, lookupLocal LocalLookup) error {
	cache := make(map[int]*resolvedObject, store.Len())

	var resolve func(idx int) (*resolvedObject, error)
	resolve = func(idx int) (*resolvedObject, error) {
		if r, ok := cache[idx]; ok {
			return r, nil
		}
		entry, ok := store.ByIndex(idx)
		if !ok {
			return nil, fmt.Errorf("delta chain: index %d out of range", idx)
		}
		if !entry.IsDelta() {
			buf, err := store.Buffer(entry)
			if err != nil {
				return nil, err
			}
			r := &resolvedObject{objType: entry.Type, data: buf}
			cache[idx] = r
			return r, nil
		}

		baseIdx, err := resolveBaseIndex(store, entry, lookupLocal)
		if err != nil {
			return nil, err
		}
		baseRes, err := resolve(baseIdx)
		if err != nil {
			return nil, err
		}
		deltaBuf, err := store.Buffer(entry)
		if err != nil {
			return nil, err
		}
		out, err := applyDelta(baseRes.data, deltaBuf)
		if err != nil {
			return nil, fmt.Errorf("apply delta at pack offset %d: %w", entry.PackOffset, err)
		}

		hash := HashObject(baseRes.objType, out)
		store.StoreResolved(hash, baseRes.objType, out)

		r := &resolvedObject{objType: baseRes.objType, data: out}
		cache[idx] = r
		return r, nil
	}

	for i := store.Len() - 1; i >= 0; i-- {
		entry, _ := store.ByIndex(i)
		if entry.IsDelta() {
			if _, err := resolve(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveBaseIndex(store *Store, entry *Entry, lookupLocal LocalLookup) (int, error) {
	if entry.RawType == PackOfsDelta {
		return entry.BaseIndex, nil
	}

	if baseEntry, ok := store.Lookup(entry.BaseHash); ok {
		return baseEntry.Index, nil
	}
	if lookupLocal == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingDeltaBase, entry.BaseHash)
	}
	local, found, err := lookupLocal(entry.BaseHash)
	if err != nil {
		return 0, fmt.Errorf("load local delta base %s: %w", entry.BaseHash, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrMissingDeltaBase, entry.BaseHash)
	}
	return local.Index, nil
}
