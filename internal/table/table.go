// Package table reads exported delimited files into a header plus rows of
// normalised string cells.
package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// naMarkers are cell values treated as missing and published as "".
var naMarkers = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {},
	"nan": {}, "null": {},
}

// Table is a parsed export. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Options controls parsing.
type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// KeepNA disables NA-marker normalisation.
	KeepNA bool
}

// ReadFile parses the file at path.
func ReadFile(ctx context.Context, path string, opts Options) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	defer f.Close()

	t, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("table: parsing %s: %w", path, err)
	}
	return t, nil
}

// Read parses delimited text with a header row. Short rows are padded, long
// rows truncated to the header width, and fully blank lines skipped.
func Read(r io.Reader, opts Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(raw))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}

	header := normaliseHeader(records[0])
	width := len(header)
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, width)
		for i := 0; i < width && i < len(rec); i++ {
			row[i] = cell(rec[i], opts.KeepNA)
		}
		rows = append(rows, row)
	}
	return &Table{Header: header, Rows: rows}, nil
}

// Values returns header followed by rows, in the shape spreadsheet APIs accept.
func (t *Table) Values() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	out = append(out, toAny(t.Header))
	for _, r := range t.Rows {
		out = append(out, toAny(r))
	}
	return out
}

func toAny(cells []string) []any {
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func cell(v string, keepNA bool) string {
	if keepNA {
		return v
	}
	if _, ok := naMarkers[v]; ok {
		return ""
	}
	return v
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// normaliseHeader names empty columns "Unnamed: <i>" and suffixes repeated
// names with ".1", ".2", ...
func normaliseHeader(in []string) []string {
	out := make([]string, len(in))
	seen := make(map[string]int, len(in))
	for i, name := range in {
		if strings.TrimSpace(name) == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for n := seen[base]; n > 0; n++ {
			candidate := base + "." + strconv.Itoa(n)
			if _, taken := seen[candidate]; !taken {
				name = candidate
				seen[base] = n + 1
				break
			}
		}
		if _, ok := seen[base]; !ok {
			seen[base] = 1
		}
		seen[name] = max(seen[name], 1)
		out[i] = name
	}
	return out
}
