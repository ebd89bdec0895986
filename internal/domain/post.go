package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Post is a social media post submitted for explanation.
// Immutable once accepted into a request.
type Post struct {
	Text     string
	ImageURL string
}

// ImageData is a downloaded image ready for a vision-capable model.
type ImageData struct {
	Bytes     []byte
	MediaType string
}

// Fingerprint returns the deterministic cache key for the post:
// sha256 over normalized text plus the image reference. Posts differing
// only in whitespace or letter case share a fingerprint.
func (p Post) Fingerprint() string {
	normalized := strings.ToLower(strings.TrimSpace(p.Text)) + "\x00" + p.ImageURL
	sum := sha256.Sum256([]byte(normalized))
	return "explain:" + hex.EncodeToString(sum[:])[:16]
}
