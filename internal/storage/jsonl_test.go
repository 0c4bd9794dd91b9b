package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type entry struct {
	N int `json:"n"`
}

func decode(t *testing.T, raw []json.RawMessage) []int {
	t.Helper()
	out := make([]int, len(raw))
	for i, r := range raw {
		var e entry
		if err := json.Unmarshal(r, &e); err != nil {
			t.Fatalf("json.Unmarshal(%s) error = %v", r, err)
		}
		out[i] = e.N
	}
	return out
}

func TestJSONLWriterRecentNewestFirst(t *testing.T) {
	w, err := NewJSONLWriter(t.TempDir(), "runs", 1)
	if err != nil {
		t.Fatalf("NewJSONLWriter() error = %v", err)
	}
	defer w.Close()

	for i := 1; i <= 5; i++ {
		if err := w.Write(entry{N: i}); err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
	}

	got, err := w.Recent(3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if n := decode(t, got); len(n) != 3 || n[0] != 5 || n[2] != 3 {
		t.Fatalf("Recent(3) = %v; want [5 4 3]", n)
	}
}

func TestReadRecentSpansBackupsAndSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("os.WriteFile(%s) error = %v", name, err)
		}
	}
	write("runs-2026-01-01T00-00-00.000.jsonl", "{\"n\":1}\n{\"n\":2}\n")
	write("runs.jsonl", "{\"n\":3}\nnot json\n\n{\"n\":4}\n")

	got, err := ReadRecent(dir, "runs", 10)
	if err != nil {
		t.Fatalf("ReadRecent() error = %v", err)
	}
	n := decode(t, got)
	want := []int{4, 3, 2, 1}
	if len(n) != len(want) {
		t.Fatalf("ReadRecent() = %v; want %v", n, want)
	}
	for i := range want {
		if n[i] != want[i] {
			t.Fatalf("ReadRecent() = %v; want %v", n, want)
		}
	}
}

func TestReadRecentMissingDir(t *testing.T) {
	got, err := ReadRecent(filepath.Join(t.TempDir(), "nope"), "runs", 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("ReadRecent() = %v, %v; want empty, nil", got, err)
	}
}

func TestJSONLWriterClosed(t *testing.T) {
	w, err := NewJSONLWriter(t.TempDir(), "runs", 0)
	if err != nil {
		t.Fatalf("NewJSONLWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Write(entry{N: 1}); err == nil {
		t.Fatal("Write() after Close error = nil; want error")
	}
}
