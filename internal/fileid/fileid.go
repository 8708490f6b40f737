// Package fileid derives deterministic identifiers for ingested chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "chunk:"

// ChunkID returns a stable chunk identifier from its source, 1-based page and
// position within the page. Re-ingesting an unchanged file yields the same IDs.
func ChunkID(source string, page, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d", filepath.Clean(source), page, index)))
	return prefix + hex.EncodeToString(hash[:12])
}
