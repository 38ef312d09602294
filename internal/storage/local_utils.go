package storage

import (
	"path/filepath"
	"strings"
)

func localStorageFullpath(baseDir, key string) string {
	return filepath.Join(baseDir, filepath.FromSlash(key))
}

// isWithinDir reports whether path is dir itself or lies below it. A sibling
// that only shares a name prefix with dir does not count.
func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
