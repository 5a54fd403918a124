// Package pathutil resolves file paths that appear in configuration files.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Check rejects empty paths, NUL bytes and any ".." segment. Segments are
// inspected before cleaning, so "scripts/../../etc" fails even though its
// cleaned form might not start with "..".
func Check(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", path)
		}
	}
	return nil
}

// Resolve checks path and makes a relative path relative to baseDir.
// Absolute paths are only cleaned.
func Resolve(baseDir, path string) (string, error) {
	if err := Check(path); err != nil {
		return "", err
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path), nil
	}
	return filepath.Join(baseDir, path), nil
}
