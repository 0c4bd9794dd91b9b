package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultJSONLMaxSizeMB = 10

// JSONLWriter appends JSON lines to <dir>/<name>.jsonl, rotating through lumberjack.
type JSONLWriter struct {
	dir    string
	name   string
	logger *lumberjack.Logger
	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter creates dir and returns a writer for <dir>/<name>.jsonl.
func NewJSONLWriter(dir, name string, maxSizeMB int) (*JSONLWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultJSONLMaxSizeMB
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: mkdir %s: %w", dir, err)
	}
	filename := filepath.Join(dir, name+".jsonl")
	w := &JSONLWriter{
		dir:  dir,
		name: name,
		logger: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    maxSizeMB,
			MaxBackups: 20,
			MaxAge:     90,
			Compress:   false,
			LocalTime:  false,
		},
	}
	slog.Debug("opened jsonl ledger", "file", filename)
	return w, nil
}

// Write appends one record as a single line.
func (w *JSONLWriter) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("jsonl: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("jsonl: writer is closed")
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonl: write: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.logger.Close()
}

// Recent returns up to n of the newest records, newest first.
func (w *JSONLWriter) Recent(n int) ([]json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ReadRecent(w.dir, w.name, n)
}

// ReadRecent reads <name>.jsonl and its rotated backups in dir and returns
// up to n of the newest lines, newest first. Malformed lines are skipped.
func ReadRecent(dir, name string, n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	files, err := ledgerFiles(dir, name)
	if err != nil {
		return nil, err
	}

	var out []json.RawMessage
	// Newest file first; lumberjack backups carry a timestamp that sorts
	// before the active file.
	for i := len(files) - 1; i >= 0 && len(out) < n; i-- {
		lines, err := readLines(files[i])
		if err != nil {
			return nil, err
		}
		for j := len(lines) - 1; j >= 0 && len(out) < n; j-- {
			out = append(out, lines[j])
		}
	}
	return out, nil
}

func ledgerFiles(dir, name string) ([]string, error) {
	backups, err := filepath.Glob(filepath.Join(dir, name+"-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("jsonl: glob: %w", err)
	}
	sort.Strings(backups)
	active := filepath.Join(dir, name+".jsonl")
	if _, err := os.Stat(active); err == nil {
		backups = append(backups, active)
	}
	return backups, nil
}

func readLines(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !json.Valid([]byte(line)) {
			continue
		}
		lines = append(lines, json.RawMessage(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("jsonl: read %s: %w", path, err)
	}
	return lines, nil
}
