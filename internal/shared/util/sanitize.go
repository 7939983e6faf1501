package util

import (
	"errors"
	"strings"
)

// SanitizeKeySegment removes path separators and rejects traversal patterns.
func SanitizeKeySegment(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid key segment")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errors.New("invalid key segment")
	}
	return s, nil
}
