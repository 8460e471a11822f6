package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestString(t *testing.T) {
	// sha256("abc")
	const full = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	if got := String(0, "abc"); got != full {
		t.Fatalf("String(0) = %s", got)
	}
	if got := String(8, "a", "bc"); got != full[:8] {
		t.Fatalf("String(8) = %s", got)
	}
	if got := String(8, "ab", "\x00c"); got == full[:8] {
		t.Fatal("separator did not change the digest")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != String(0, "abc") {
		t.Fatalf("File = %s", got)
	}
	if _, err := File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
