package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func writeData(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "task.mock.acme.m1.1700000000000.responses.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestFinalize_Unsigned(t *testing.T) {
	p := writeData(t, "[\n{\"id\":1}\n]\n")

	sc, err := Finalize(p, nil)
	require.NoError(t, err)
	assert.False(t, sc.Signed())
	assert.Equal(t, filepath.Base(p), sc.File)
	assert.NotEmpty(t, sc.CID)
	assert.Len(t, sc.SHA256, 64)

	_, err = os.Stat(p + ".cid")
	require.NoError(t, err)

	got, err := Verify(p)
	require.NoError(t, err)
	assert.Equal(t, sc.CID, got.CID)
}

func TestFinalize_Idempotent(t *testing.T) {
	p := writeData(t, "[]\n")
	key, err := ParsePrivateKey(testSeed)
	require.NoError(t, err)
	signer := NewSigner(key)

	first, err := Finalize(p, signer)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(p + ".cid")
	require.NoError(t, err)

	second, err := Finalize(p, signer)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(p + ".cid")
	require.NoError(t, err)

	assert.Equal(t, first.SHA256, second.SHA256)
	assert.Equal(t, first.CID, second.CID)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestFinalize_DoesNotTouchDataFile(t *testing.T) {
	content := "[\n{\"id\":1}\n]\n"
	p := writeData(t, content)

	_, err := Finalize(p, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content, string(raw))
}

func TestFinalize_SignsCID(t *testing.T) {
	p := writeData(t, "[]\n")
	key, err := ParsePrivateKey(testSeed)
	require.NoError(t, err)

	sc, err := Finalize(p, NewSigner(key))
	require.NoError(t, err)
	require.True(t, sc.Signed())
	assert.Equal(t, "ed25519", sc.Algorithm)

	sig, err := hex.DecodeString(sc.Signature)
	require.NoError(t, err)
	pub := key.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, []byte(sc.CID), sig), "signature covers the cid string")

	_, err = Verify(p)
	require.NoError(t, err)
}

func TestVerify_DetectsTampering(t *testing.T) {
	t.Run("data changed", func(t *testing.T) {
		p := writeData(t, "[1]\n")
		_, err := Finalize(p, nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(p, []byte("[2]\n"), 0644))

		_, err = Verify(p)
		require.ErrorIs(t, err, ErrHashMismatch)
	})

	t.Run("signature from other key", func(t *testing.T) {
		p := writeData(t, "[1]\n")
		key, err := ParsePrivateKey(testSeed)
		require.NoError(t, err)
		_, err = Finalize(p, NewSigner(key))
		require.NoError(t, err)

		_, other, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		sc, err := ReadSidecar(p)
		require.NoError(t, err)
		sc.Signature = NewSigner(other).Sign(sc.CID)
		require.NoError(t, writeSidecar(SidecarPath(p), sc))

		_, err = Verify(p)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestParsePrivateKey(t *testing.T) {
	seedKey, err := ParsePrivateKey(testSeed)
	require.NoError(t, err)

	fullKey, err := ParsePrivateKey("0x" + hex.EncodeToString(seedKey))
	require.NoError(t, err)
	assert.Equal(t, seedKey, fullKey)

	_, err = ParsePrivateKey("abcd")
	require.Error(t, err)
	_, err = ParsePrivateKey("zz")
	require.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	t.Setenv(PrivateKeyEnv, "")
	s, err := LoadSigner()
	require.NoError(t, err)
	assert.Nil(t, s, "no key means no signing")

	t.Setenv(PrivateKeyEnv, "  "+testSeed+"\n")
	s, err = LoadSigner()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, strings.HasPrefix(s.PublicKeyHex(), "d75a9801"))

	t.Setenv(PrivateKeyEnv, "nothex")
	_, err = LoadSigner()
	require.Error(t, err)
}
