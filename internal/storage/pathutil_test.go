package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pending.csv", "pending.csv"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\report.csv`, "report.csv"},
		{"a:b?c.csv", "a_b_c.csv"},
		{"bad\x00name.csv", "badname.csv"},
		{"", "download"},
		{"..", "download"},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Fatalf("SafeFilename(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplaceFileOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "new.csv")
	dst := filepath.Join(dir, "out", "PEND-09.csv")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceFile(src, dst); err != nil {
		t.Fatalf("ReplaceFile() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "new" {
		t.Fatalf("dst = %q, %v; want %q", data, err, "new")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("src still present: %v", err)
	}
}

func TestReplaceFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := ReplaceFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("ReplaceFile() error = nil; want error for missing source")
	}
}
