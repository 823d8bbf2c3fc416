package object

import "testing"

func TestStoreLoadPackResolvedEntry(t *testing.T) {
	data := []byte("blob content")
	hash := HashObject(TypeBlob, data)

	pf := &PackFile{
		Header:  PackHeader{Version: 2, NumObjects: 1},
		Entries: []PackEntry{{Offset: 12, Type: PackBlob, Size: uint64(len(data)), Data: data}},
	}

	s := NewStore(false, "")
	defer s.Close()

	if err := s.LoadPack(pf); err != nil {
		t.Fatalf("LoadPack: %v", err)
	}
	entry, ok := s.Lookup(hash)
	if !ok {
		t.Fatalf("expected hash %s to be resolved", hash)
	}
	buf, err := s.Buffer(entry)
	if err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if string(buf) != string(data) {
		t.Fatalf("buffer mismatch: got %q want %q", buf, data)
	}
}

func TestStoreLoadPackOrphanOfsDelta(t *testing.T) {
	pf := &PackFile{
		Header: PackHeader{Version: 2, NumObjects: 1},
		Entries: []PackEntry{
			{Offset: 100, Type: PackOfsDelta, BaseDistance: 50, Data: []byte{0, 0}},
		},
	}
	s := NewStore(false, "")
	defer s.Close()
	if err := s.LoadPack(pf); err == nil {
		t.Fatalf("expected orphan ofs-delta error")
	}
}

func TestStorePutResidentDeduplicates(t *testing.T) {
	s := NewStore(false, "")
	defer s.Close()

	hash := HashObject(TypeBlob, []byte("x"))
	i1 := s.PutResident(hash, TypeBlob, []byte("x"))
	i2 := s.PutResident(hash, TypeBlob, []byte("x"))
	if i1 != i2 {
		t.Fatalf("expected PutResident to dedupe by hash: got %d and %d", i1, i2)
	}
	if s.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", s.Len())
	}
}
