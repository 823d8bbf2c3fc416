package tree

import "testing"

func TestParseModeSplitsKindAndPerm(t *testing.T) {
	kind, perm, err := ParseMode("100755")
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
	if kind != modeRegular {
		t.Fatalf("expected regular-file kind, got %o", kind)
	}
	if perm != 0755 {
		t.Fatalf("expected perm 0755, got %o", perm)
	}
}

func TestIsDirModeAndIsSymlinkMode(t *testing.T) {
	if !IsDirMode("40000") {
		t.Fatalf("expected 40000 to be a dir mode")
	}
	if IsDirMode("100644") {
		t.Fatalf("did not expect 100644 to be a dir mode")
	}
	if !IsSymlinkMode("120000") {
		t.Fatalf("expected 120000 to be a symlink mode")
	}
	if IsSymlinkMode("100644") {
		t.Fatalf("did not expect 100644 to be a symlink mode")
	}
}

func TestParseModeRejectsMalformed(t *testing.T) {
	if _, _, err := ParseMode("not-octal"); err == nil {
		t.Fatalf("expected error for malformed mode")
	}
}

func TestFilePermFromMode(t *testing.T) {
	if filePermFromMode("100755")&0111 == 0 {
		t.Fatalf("expected executable bits preserved")
	}
	if filePermFromMode("bogus") != 0o644 {
		t.Fatalf("expected fallback permission for malformed mode")
	}
}
