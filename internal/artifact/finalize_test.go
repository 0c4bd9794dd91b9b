package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeStaged(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	return p
}

func TestTargetNameUsesHourBucket(t *testing.T) {
	f := &Finalizer{Prefix: "PEND", Ext: "csv"}
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 5, 1, 0, 5, 0, 0, time.UTC), "PEND-00.csv"},
		{time.Date(2024, 5, 1, 9, 59, 59, 0, time.UTC), "PEND-09.csv"},
		{time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), "PEND-23.csv"},
	}
	for _, tt := range tests {
		if got := f.TargetName(tt.at); got != tt.want {
			t.Fatalf("TargetName(%v) = %q; want %q", tt.at, got, tt.want)
		}
	}
}

func TestTargetNameHonoursLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	f := &Finalizer{Prefix: "PEND", Ext: ".csv", Location: loc}
	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	if got, want := f.TargetName(at), "PEND-11.csv"; got != want {
		t.Fatalf("TargetName() = %q; want %q", got, want)
	}
}

func TestFinalizeIsIdempotentPerBucket(t *testing.T) {
	staging := t.TempDir()
	out := t.TempDir()
	f := &Finalizer{Dir: out, Prefix: "PEND", Ext: "csv"}
	at := time.Date(2024, 5, 1, 14, 10, 0, 0, time.UTC)

	first := writeStaged(t, staging, "export-1.csv", "first")
	if _, err := f.Finalize(first, at); err != nil {
		t.Fatalf("Finalize(first) error = %v", err)
	}
	second := writeStaged(t, staging, "export-2.csv", "second")
	art, err := f.Finalize(second, at.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("Finalize(second) error = %v", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("artifact dir has %d entries; want 1", len(entries))
	}
	if got, want := art.Name, "PEND-14.csv"; got != want {
		t.Fatalf("Name = %q; want %q", got, want)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("artifact contents = %q; want %q", data, "second")
	}
	if art.SizeBytes != int64(len("second")) {
		t.Fatalf("SizeBytes = %d; want %d", art.SizeBytes, len("second"))
	}
	if _, err := os.Stat(second); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staged file still present after finalize: %v", err)
	}
}

func TestFinalizeDifferentBucketsKeepBoth(t *testing.T) {
	staging := t.TempDir()
	out := t.TempDir()
	f := &Finalizer{Dir: out, Prefix: "PEND", Ext: "csv"}
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, err := f.Finalize(writeStaged(t, staging, "a.csv", "a"), at); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if _, err := f.Finalize(writeStaged(t, staging, "b.csv", "b"), at.Add(time.Hour)); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 2 {
		t.Fatalf("artifact dir has %d entries; want 2", len(entries))
	}
}

func TestFinalizeMissingStagedFileFails(t *testing.T) {
	f := &Finalizer{Dir: t.TempDir(), Prefix: "PEND", Ext: "csv"}
	if _, err := f.Finalize(filepath.Join(t.TempDir(), "missing.csv"), time.Now()); err == nil {
		t.Fatal("Finalize() error = nil; want error for missing staged file")
	}
}
