package domain

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeIDChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// NormalizeID derives the stable document identifier from a source file name:
// the lowercased stem with runs of unsafe characters collapsed to "-".
func NormalizeID(fileName string) string {
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	id := unsafeIDChars.ReplaceAllString(strings.ToLower(stem), "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		id = "paper"
	}
	return id
}

// CollisionID disambiguates a normalized name already owned by another source file
func CollisionID(base, fingerprint string) string {
	if len(fingerprint) > 8 {
		fingerprint = fingerprint[:8]
	}
	return base + "-" + fingerprint
}

// IsPDF reports whether a path names a PDF source file
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
