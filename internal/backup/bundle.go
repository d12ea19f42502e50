package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/atinyakov/FitVault/internal/models"
)

// Checksum algorithm identifiers recorded in bundle metadata.
const (
	ChecksumSHA256 = "sha256"
	// ChecksumFNV32a is the non-cryptographic fallback. Explicitly weaker;
	// bundles carrying it are flagged by the algo field itself.
	ChecksumFNV32a = "fnv32a"
)

// Metadata describes a stored bundle. The checksum covers the stored
// payload, after compression and encryption.
type Metadata struct {
	ID                string              `json:"id"`
	Timestamp         time.Time           `json:"timestamp"`
	Domains           []models.Collection `json:"domains"`
	Compressed        bool                `json:"compressed"`
	Encrypted         bool                `json:"encrypted"`
	Checksum          string              `json:"checksum"`
	ChecksumAlgo      string              `json:"checksum_algo"`
	CompressionFormat string              `json:"compression_format,omitempty"`
	CipherAlgorithm   string              `json:"cipher_algorithm,omitempty"`
	KDF               string              `json:"kdf,omitempty"`
	// Salt is the base64 key-derivation salt for encrypted bundles. The GCM
	// nonce is stored as the leading bytes of Data.
	Salt string `json:"salt,omitempty"`
}

// Bundle is a self-contained snapshot of one or more domains. Data holds the
// final stored payload: serialized domains, possibly gzipped, possibly
// sealed.
type Bundle struct {
	Metadata Metadata `json:"metadata"`
	Data     []byte   `json:"data"`
}

// payload is the serialized plaintext shape inside a bundle: one JSON array
// of records per included domain.
type payload map[models.Collection]json.RawMessage

// checksum computes the named checksum over data.
func checksum(algo string, data []byte) (string, error) {
	switch algo {
	case ChecksumSHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case ChecksumFNV32a:
		h := fnv.New32a()
		_, _ = h.Write(data)
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		return "", fmt.Errorf("unknown checksum algorithm %q", algo)
	}
}

// verifyChecksum recomputes the bundle checksum and reports a mismatch as
// ErrIntegrity.
func verifyChecksum(b *Bundle) error {
	if b.Metadata.Checksum == "" || b.Metadata.ChecksumAlgo == "" {
		return fmt.Errorf("%w: bundle %q has no checksum", ErrIntegrity, b.Metadata.ID)
	}
	sum, err := checksum(b.Metadata.ChecksumAlgo, b.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if sum != b.Metadata.Checksum {
		return fmt.Errorf("%w: bundle %q checksum mismatch", ErrIntegrity, b.Metadata.ID)
	}
	return nil
}
