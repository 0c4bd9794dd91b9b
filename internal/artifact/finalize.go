// Package artifact renames captured exports to their deterministic,
// time-bucketed names.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/pendsync/internal/storage"
)

// Bucket maps an instant to the name component that identifies its window.
type Bucket func(time.Time) string

// HourBucket buckets by two-digit local hour, "00" through "23".
func HourBucket(t time.Time) string { return t.Format("15") }

// Artifact is a finalized export on disk.
type Artifact struct {
	Dir       string    `json:"dir"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Finalizer names artifacts PREFIX-<bucket>.<ext> inside Dir.
type Finalizer struct {
	Dir      string
	Prefix   string
	Ext      string
	Bucket   Bucket
	Location *time.Location
}

// TargetName returns the artifact file name for t.
func (f *Finalizer) TargetName(t time.Time) string {
	if f.Location != nil {
		t = t.In(f.Location)
	}
	bucket := f.Bucket
	if bucket == nil {
		bucket = HourBucket
	}
	ext := strings.TrimPrefix(f.Ext, ".")
	if ext == "" {
		ext = "csv"
	}
	return fmt.Sprintf("%s-%s.%s", f.Prefix, bucket(t), ext)
}

// Finalize moves stagingPath into place, replacing any artifact already
// holding the same bucket name.
func (f *Finalizer) Finalize(stagingPath string, at time.Time) (Artifact, error) {
	if strings.TrimSpace(f.Prefix) == "" {
		return Artifact{}, fmt.Errorf("artifact: prefix is required")
	}
	if _, err := os.Stat(stagingPath); err != nil {
		return Artifact{}, fmt.Errorf("artifact: staged file: %w", err)
	}

	name := f.TargetName(at)
	dst := filepath.Join(f.Dir, name)
	if abs, err := filepath.Abs(stagingPath); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && abs == absDst {
			return f.describe(dst, name, at)
		}
	}
	if _, err := os.Stat(dst); err == nil {
		slog.Info("replacing existing artifact", "path", dst)
	}
	if err := storage.ReplaceFile(stagingPath, dst); err != nil {
		return Artifact{}, fmt.Errorf("artifact: finalize %s: %w", name, err)
	}
	return f.describe(dst, name, at)
}

func (f *Finalizer) describe(path, name string, at time.Time) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: stat %s: %w", path, err)
	}
	return Artifact{
		Dir:       f.Dir,
		Name:      name,
		Path:      path,
		SizeBytes: info.Size(),
		CreatedAt: at,
	}, nil
}
