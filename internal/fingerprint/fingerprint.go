package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// quickScanLength is the hex length of the derived quick-scan digest. The
// quick-scan hash is a cheap pre-filter: equality is necessary but never
// sufficient evidence of a content match.
const quickScanLength = 16

// Fingerprint is a provenance artifact bound 1:1 to a completed job.
type Fingerprint struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	QuickScan   string    `json:"quick_scan"`
	GeneratedAt time.Time `json:"generated_at"`
	ShareLink   string    `json:"share_link,omitempty"`
}

// ContentHash computes the strong content hash for a canonical content
// representation.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// QuickScan derives the short fast-lookup digest from a strong hash. The
// derivation is deterministic and one-way: it hashes the hex form of the
// strong hash and keeps a fixed-length prefix.
func QuickScan(contentHash string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(contentHash))))
	return hex.EncodeToString(sum[:])[:quickScanLength]
}

// New mints a fingerprint for the given canonical content.
func New(content []byte) Fingerprint {
	hash := ContentHash(content)
	return Fingerprint{
		ID:          "spi-" + uuid.NewString(),
		ContentHash: hash,
		QuickScan:   QuickScan(hash),
		GeneratedAt: time.Now().UTC(),
	}
}

// StructurallyValid checks internal integrity: the id and hash fields are
// present, the strong hash is a well-formed SHA-256 hex digest, and the
// quick-scan field (when present) re-derives from the strong hash.
func (f Fingerprint) StructurallyValid() bool {
	if strings.TrimSpace(f.ID) == "" {
		return false
	}
	hash := strings.ToLower(strings.TrimSpace(f.ContentHash))
	if len(hash) != sha256.Size*2 {
		return false
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return false
	}
	if qs := strings.TrimSpace(f.QuickScan); qs != "" && qs != QuickScan(hash) {
		return false
	}
	return true
}
