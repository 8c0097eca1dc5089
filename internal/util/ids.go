package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// NormalizeEntityID derives a deterministic entity ID from a display name:
// lowercase, non-alphanumeric characters stripped, runs of whitespace
// collapsed to single underscores. Identical names collide intentionally;
// the collision is the deduplication key.
func NormalizeEntityID(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

// RelationshipID derives a stable ID from the relationship's identity
// triple. The same (source, target, type) always hashes to the same ID.
func RelationshipID(sourceEntityID, targetEntityID, relType string) string {
	return hashID("rel", sourceEntityID, targetEntityID, strings.ToLower(strings.TrimSpace(relType)))
}

// ChunkID derives a stable ID from a chunk's position within its document,
// so re-chunking the same document with the same config reproduces the same
// IDs.
func ChunkID(documentID string, sequenceIndex, startOffset, endOffset int) string {
	return hashID("chunk", documentID, fmt.Sprintf("%d:%d:%d", sequenceIndex, startOffset, endOffset))
}

// ContentHash returns a stable hex digest of the given text with surrounding
// whitespace ignored. Used as the extraction cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

func hashID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}
