package tools

import (
	"os"
	"path/filepath"
	"strings"
)

// confine canonicalizes path relative to workspaceRoot and rejects any
// result that escapes it (spec §4.9 step 6: "canonicalize the path; reject
// if it escapes the workspace root (PathEscape)").
func confine(workspaceRoot, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceRoot, path)
	}
	clean, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, clean)
	if err != nil {
		return "", ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return clean, nil
}

func parentDir(path string) string {
	return filepath.Dir(path)
}

// checkSize rejects files exceeding maxBytes (spec §4.9 step 6).
func checkSize(path string, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // write_file target need not exist yet
		}
		return err
	}
	if info.Size() > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}
