package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SafeFilename reduces a browser-suggested download name to a single path
// element safe to join under a directory.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

// ReplaceFile moves src to dst, replacing any file already at dst. It falls
// back to copy-then-rename when src and dst are on different filesystems.
func ReplaceFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", filepath.Dir(dst), err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(src); statErr != nil {
		return fmt.Errorf("storage: move %s: %w", src, statErr)
	}

	// Some platforms refuse to rename over an existing file.
	if _, statErr := os.Stat(dst); statErr == nil {
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("storage: remove existing %s: %w", dst, rmErr)
		}
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
	}

	if copyErr := copyThenRename(src, dst); copyErr != nil {
		return fmt.Errorf("storage: move %s to %s: %w", src, dst, errors.Join(err, copyErr))
	}
	_ = os.Remove(src)
	return nil
}

func copyThenRename(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
