// Package signing hashes finalized output files and writes their .cid
// sidecars, optionally signed with the operator key.
package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anushabukke/peerBench-sub002/internal/contentid"
)

// PrivateKeyEnv names the environment variable holding the operator key.
const PrivateKeyEnv = "PEERBENCH_PRIVATE_KEY"

// SidecarExt is appended to a data file's path to name its sidecar.
const SidecarExt = ".cid"

const algorithmEd25519 = "ed25519"

var (
	ErrHashMismatch     = errors.New("file content does not match sidecar hash")
	ErrInvalidSignature = errors.New("sidecar signature is invalid")
)

// Sidecar is the content of a <file>.cid companion file. The signature, when
// present, covers the CID string rather than the file bytes.
type Sidecar struct {
	File      string `json:"file"`
	CID       string `json:"cid"`
	SHA256    string `json:"sha256"`
	Algorithm string `json:"algorithm,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Signed reports whether the sidecar carries a signature.
func (s *Sidecar) Signed() bool {
	return s.Signature != ""
}

// Signer signs hash values with an ed25519 key.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner wraps key.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

// ParsePrivateKey decodes a hex-encoded ed25519 seed (32 bytes) or full
// private key (64 bytes). A leading "0x" is ignored.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// LoadSigner returns the operator signer configured in the environment, or
// nil when no key is set, meaning outputs are not signed.
func LoadSigner() (*Signer, error) {
	v := os.Getenv(PrivateKeyEnv)
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	key, err := ParsePrivateKey(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PrivateKeyEnv, err)
	}
	return NewSigner(key), nil
}

// PublicKeyHex returns the hex-encoded public half of the key.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign returns the hex-encoded signature of msg.
func (s *Signer) Sign(msg string) string {
	return hex.EncodeToString(ed25519.Sign(s.key, []byte(msg)))
}

// SidecarPath returns the sidecar path for a data file.
func SidecarPath(path string) string {
	return path + SidecarExt
}

// Finalize hashes the closed file at path and writes its sidecar. The data
// file itself is never modified. signer may be nil.
func Finalize(path string, signer *Signer) (*Sidecar, error) {
	id, err := contentid.OfFile(path)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}

	sc := &Sidecar{
		File:   filepath.Base(path),
		CID:    id.CID,
		SHA256: id.SHA256,
	}
	if signer != nil {
		sc.Algorithm = algorithmEd25519
		sc.PublicKey = signer.PublicKeyHex()
		sc.Signature = signer.Sign(id.CID)
	}

	if err := writeSidecar(SidecarPath(path), sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// ReadSidecar loads the sidecar of the data file at path.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing sidecar for %s: %w", path, err)
	}
	return &sc, nil
}

// Verify re-hashes the data file at path and checks it, and the signature if
// any, against its sidecar.
func Verify(path string) (*Sidecar, error) {
	sc, err := ReadSidecar(path)
	if err != nil {
		return nil, err
	}

	id, err := contentid.OfFile(path)
	if err != nil {
		return sc, fmt.Errorf("hashing %s: %w", path, err)
	}
	if id.CID != sc.CID || id.SHA256 != sc.SHA256 {
		return sc, ErrHashMismatch
	}

	if !sc.Signed() {
		return sc, nil
	}
	if sc.Algorithm != algorithmEd25519 {
		return sc, fmt.Errorf("unsupported signature algorithm %q", sc.Algorithm)
	}
	pub, err := hex.DecodeString(sc.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return sc, fmt.Errorf("%w: malformed public key", ErrInvalidSignature)
	}
	sig, err := hex.DecodeString(sc.Signature)
	if err != nil {
		return sc, fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(sc.CID), sig) {
		return sc, ErrInvalidSignature
	}
	return sc, nil
}

func writeSidecar(path string, sc *Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sidecar: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("writing sidecar: %w", err)
	}
	return nil
}
