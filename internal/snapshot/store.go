package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// DefaultMaxHTMLBytes caps the stored page source.
const DefaultMaxHTMLBytes = 5 * 1024 * 1024

// SnapshotMeta describes a diagnostic capture of the browser page.
type SnapshotMeta struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Stage         string    `json:"stage"`
	Reason        string    `json:"reason"`
	URL           string    `json:"url,omitempty"`
	Format        string    `json:"format"`
	SizeBytes     int       `json:"size_bytes"`
	HTMLBytes     int       `json:"html_bytes,omitempty"`
	HTMLTruncated bool      `json:"html_truncated,omitempty"`
	HTMLSHA256    string    `json:"html_sha256,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store manages snapshot files on disk: <id>.<format>, <id>.html, <id>.json.
type Store struct {
	dir          string
	maxHTMLBytes int
	mu           sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxHTMLBytes: DefaultMaxHTMLBytes}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("invalid snapshot id: %q", id)
	}
	return nil
}

// Save writes the image, the optional page source and the metadata sidecar.
// Either payload may be empty when capture of it failed.
func (s *Store) Save(meta SnapshotMeta, imageData []byte, html []byte) (SnapshotMeta, error) {
	if err := s.validateID(meta.ID); err != nil {
		return meta, err
	}
	if meta.Format == "" {
		meta.Format = "png"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}

	if len(imageData) > 0 {
		imgPath := filepath.Join(s.dir, meta.ID+"."+meta.Format)
		if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
			return meta, fmt.Errorf("snapshot store: write image: %w", err)
		}
		written = append(written, imgPath)
		meta.SizeBytes = len(imageData)
	}

	if len(html) > 0 {
		c := clipHTML(html, s.maxHTMLBytes)
		htmlPath := filepath.Join(s.dir, meta.ID+".html")
		if err := os.WriteFile(htmlPath, c.data, 0o644); err != nil {
			cleanup()
			return meta, fmt.Errorf("snapshot store: write html: %w", err)
		}
		written = append(written, htmlPath)
		meta.HTMLBytes = c.origLen
		meta.HTMLTruncated = c.truncated
		meta.HTMLSHA256 = c.sha256
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		cleanup()
		return meta, fmt.Errorf("snapshot store: marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, meta.ID+".json"), data, 0o644); err != nil {
		cleanup()
		return meta, fmt.Errorf("snapshot store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads snapshot metadata by ID.
func (s *Store) Get(id string) (SnapshotMeta, error) {
	if err := s.validateID(id); err != nil {
		return SnapshotMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *Store) readMeta(id string) (SnapshotMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotMeta{}, fmt.Errorf("snapshot not found: %s", id)
		}
		return SnapshotMeta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}
	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SnapshotMeta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all snapshots sorted by creation time (newest first).
func (s *Store) List() ([]SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]SnapshotMeta, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}

	metas := make([]SnapshotMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta SnapshotMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage reads the raw image bytes and returns the format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+"."+meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("snapshot image not found: %s", id)
		}
		return nil, "", fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// ReadHTML returns the stored page source.
func (s *Store) ReadHTML(id string) ([]byte, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".html"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot html not found: %s", id)
		}
		return nil, fmt.Errorf("snapshot store: read html: %w", err)
	}
	return data, nil
}

// Delete removes the image, page source and metadata files.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	meta, err := s.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(meta)
	return nil
}

func (s *Store) deleteLocked(meta SnapshotMeta) {
	for _, name := range []string{meta.ID + "." + meta.Format, meta.ID + ".html"} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			slog.Debug("snapshot file cleanup failed", "file", name, "error", err)
		}
	}
	if err := os.Remove(filepath.Join(s.dir, meta.ID+".json")); err != nil {
		slog.Debug("snapshot meta cleanup failed", "id", meta.ID, "error", err)
	}
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.listLocked()
	if err != nil {
		return 0, err
	}
	if len(metas) <= keep {
		return 0, nil
	}
	for _, m := range metas[keep:] {
		s.deleteLocked(m)
	}
	return len(metas) - keep, nil
}
