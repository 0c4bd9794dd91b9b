package table

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadNormalisesMissingValues(t *testing.T) {
	in := "id,status,note\n1,NaN,ok\n2,,N/A\n3,null,#N/A\n"
	tbl, err := Read(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := [][]string{
		{"1", "", "ok"},
		{"2", "", ""},
		{"3", "", ""},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("Rows = %q; want %q", tbl.Rows, want)
	}
}

func TestReadKeepNA(t *testing.T) {
	tbl, err := Read(strings.NewReader("a\nNA\n"), Options{KeepNA: true})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := tbl.Rows[0][0]; got != "NA" {
		t.Fatalf("cell = %q; want %q", got, "NA")
	}
}

func TestReadPadsAndTruncatesRaggedRows(t *testing.T) {
	in := "a,b,c\n1\n1,2,3,4\n\n,,\n"
	tbl, err := Read(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := [][]string{{"1", "", ""}, {"1", "2", "3"}}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("Rows = %q; want %q", tbl.Rows, want)
	}
}

func TestReadHeaderHandling(t *testing.T) {
	in := "\xef\xbb\xbfTrip ID,Status,,Status,Status\n"
	tbl, err := Read(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := []string{"Trip ID", "Status", "Unnamed: 2", "Status.1", "Status.2"}
	if !reflect.DeepEqual(tbl.Header, want) {
		t.Fatalf("Header = %q; want %q", tbl.Header, want)
	}
	if len(tbl.Rows) != 0 {
		t.Fatalf("len(Rows) = %d; want 0", len(tbl.Rows))
	}
}

func TestReadSemicolonDelimiter(t *testing.T) {
	tbl, err := Read(strings.NewReader("a;b\n\"x;y\";2\n"), Options{Delimiter: ';'})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := tbl.Rows[0][0]; got != "x;y" {
		t.Fatalf("cell = %q; want %q", got, "x;y")
	}
}

func TestReadEmptyInputFails(t *testing.T) {
	if _, err := Read(strings.NewReader(""), Options{}); err == nil {
		t.Fatal("Read() error = nil; want error for empty input")
	}
}

func TestReadFileAndValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PEND-10.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	tbl, err := ReadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	vals := tbl.Values()
	if len(vals) != 3 {
		t.Fatalf("len(Values()) = %d; want 3", len(vals))
	}
	if vals[0][1] != "b" || vals[2][0] != "3" {
		t.Fatalf("Values() = %v", vals)
	}
}
