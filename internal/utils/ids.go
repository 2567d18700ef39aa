package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewRequestID returns an id like req_3f2a9c81d04e.
func NewRequestID() string {
	return "req_" + shortUUID()
}

// NewSessionID returns an id like sess_3f2a9c81d04e.
func NewSessionID() string {
	return "sess_" + shortUUID()
}

// DocumentID derives a stable id from a filename so re-uploading the same
// file maps to the same document.
func DocumentID(filename string) string {
	sum := md5.Sum([]byte(filename))
	return "doc_" + hex.EncodeToString(sum[:])[:12]
}

// ChunkID builds the deterministic per-document chunk id. The ordinal is
// zero padded to four digits so lexicographic and numeric order agree.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%04d", docID, ordinal)
}

// HashText returns the sha256 hex of text. Audit records store hashes of
// queries and answers rather than the raw text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TruncateText caps text at maxLen characters, ellipsis included.
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// SanitizeFilename strips path separators and anything outside a
// conservative allow list.
func SanitizeFilename(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
