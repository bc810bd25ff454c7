package cache

import (
	"fmt"
	"strings"
)

// PathKey builds a deterministic cache key for a folder path under a root,
// normalizing the path first so "a//b/" and "a/b" share one entry.
// Format: folder:<rootID>:<normalized path>.
func PathKey(rootID, folderPath string) (string, error) {
	normalized := NormalizePath(folderPath)
	if normalized == "" {
		return "", ErrInvalidKey
	}

	key := fmt.Sprintf("folder:%s:%s", rootID, normalized)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// NormalizePath collapses separators and trims empty segments from a folder
// path. Returns "" for paths with no segments.
func NormalizePath(folderPath string) string {
	parts := Segments(folderPath)
	return strings.Join(parts, "/")
}

// Segments splits a folder path into its non-empty segments.
func Segments(folderPath string) []string {
	raw := strings.Split(folderPath, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
