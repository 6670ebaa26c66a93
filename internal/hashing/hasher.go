// Package hashing computes stable content identities for files.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/pagepress/pagepress/internal/domain"
)

// Hasher computes content digests. Both digests stream file contents, so
// memory use is constant regardless of file size.
type Hasher struct{}

// New creates a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// HashFile returns the hex SHA-256 of the file contents. Used for document
// identity: output namespacing and duplicate-run detection.
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("open file for hashing: %s", path), err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", domain.IOError(fmt.Sprintf("read file for hashing: %s", path), err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ImageDigest returns the hex xxhash64 of the file contents. Used purely
// as a uniqueness key for image dedup, not for security.
func (h *Hasher) ImageDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("open image for digest: %s", path), err)
	}
	defer f.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", domain.IOError(fmt.Sprintf("read image for digest: %s", path), err)
	}
	return strconv.FormatUint(digest.Sum64(), 16), nil
}
