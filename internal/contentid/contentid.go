// Package contentid computes the content identifiers used to fingerprint
// prompts, responses, and output files.
package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ID is the pair of identifiers recorded for a payload.
type ID struct {
	CID    string `json:"cid"`
	SHA256 string `json:"sha256"`
}

// CID returns the CIDv1 (raw codec, sha2-256) of data in its default
// base32 string form.
func CID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// SHA256 returns the lowercase hex SHA-256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Of computes both identifiers for data.
func Of(data []byte) (ID, error) {
	c, err := CID(data)
	if err != nil {
		return ID{}, err
	}
	return ID{CID: c, SHA256: SHA256(data)}, nil
}

// OfString is Of for string payloads.
func OfString(s string) (ID, error) {
	return Of([]byte(s))
}

// OfFile reads the file at path and computes its identifiers.
func OfFile(path string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return ID{}, err
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return ID{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Of(data)
}

// Verify reports whether s parses as a CID whose multihash matches data.
func Verify(s string, data []byte) (bool, error) {
	parsed, err := cid.Decode(s)
	if err != nil {
		return false, fmt.Errorf("decoding cid %q: %w", s, err)
	}
	sum, err := parsed.Prefix().Sum(data)
	if err != nil {
		return false, err
	}
	return sum.Equals(parsed), nil
}
