package protocol

import (
	"bytes"
	"testing"
)

func TestBuildFetchArgsClone(t *testing.T) {
	args, err := BuildFetchArgs(FetchClone, "abc123", "", nil)
	if err != nil {
		t.Fatalf("BuildFetchArgs: %v", err)
	}
	found := false
	for _, a := range args {
		if a == "want abc123" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a want line, got %v", args)
	}
}

func TestBuildFetchArgsPullIncludesHaveAndDeepen(t *testing.T) {
	args, err := BuildFetchArgs(FetchPull, "newhash", "oldhash", nil)
	if err != nil {
		t.Fatalf("BuildFetchArgs: %v", err)
	}
	wantHave := map[string]bool{"want newhash": false, "have oldhash": false, "deepen 1": false}
	for _, a := range args {
		if _, ok := wantHave[a]; ok {
			wantHave[a] = true
		}
	}
	for k, v := range wantHave {
		if !v {
			t.Fatalf("expected arg %q in pull args, got %v", k, args)
		}
	}
}

func TestBuildFetchArgsRepairEmptyWithNoDefects(t *testing.T) {
	args, err := BuildFetchArgs(FetchRepair, "", "", nil)
	if err != nil {
		t.Fatalf("BuildFetchArgs: %v", err)
	}
	if args != nil {
		t.Fatalf("expected nil args for an empty repair want list, got %v", args)
	}
}

func TestRepairWantSizeGrowsWithCount(t *testing.T) {
	small := RepairWantSize([]string{"aaaa"})
	large := RepairWantSize([]string{"aaaa", "bbbb", "cccc"})
	if large <= small {
		t.Fatalf("expected size to grow with more want lines: small=%d large=%d", small, large)
	}
}

func packFrame(payload []byte) []byte {
	var out bytes.Buffer
	WritePktLine(&out, append([]byte{bandPackData}, payload...))
	WriteFlush(&out)
	return out.Bytes()
}

func TestExtractPackDemuxesPackBand(t *testing.T) {
	pack := append([]byte("PACK"), []byte{0, 0, 0, 2, 0, 0, 0, 0}...)
	body := packFrame(pack)

	got, err := ExtractPack(body)
	if err != nil {
		t.Fatalf("ExtractPack: %v", err)
	}
	if !bytes.Equal(got, pack) {
		t.Fatalf("extracted pack mismatch: got %v want %v", got, pack)
	}
}

func TestExtractPackErrorBandAborts(t *testing.T) {
	var out bytes.Buffer
	// A pack-data band supplies the PACK anchor ExtractPack starts from;
	// the error band that follows it must abort extraction.
	WritePktLine(&out, append([]byte{bandPackData}, []byte("PACK")...))
	WritePktLine(&out, append([]byte{bandError}, []byte("remote exploded")...))
	body := out.Bytes()

	if _, err := ExtractPack(body); err == nil {
		t.Fatalf("expected error band to abort extraction")
	}
}

func TestExtractPackNoPackMagic(t *testing.T) {
	if _, err := ExtractPack([]byte("no magic here")); err == nil {
		t.Fatalf("expected error when no PACK magic present")
	}
}
