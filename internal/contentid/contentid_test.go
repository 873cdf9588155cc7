package contentid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_Deterministic(t *testing.T) {
	a, err := OfString("The answer is B")
	require.NoError(t, err)
	b, err := OfString("The answer is B")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a.SHA256, 64)
	assert.True(t, strings.HasPrefix(a.CID, "b"), "CIDv1 should use base32 multibase prefix")
}

func TestOf_SingleByteChange(t *testing.T) {
	a, err := OfString("The answer is B")
	require.NoError(t, err)
	b, err := OfString("The answer is C")
	require.NoError(t, err)

	assert.NotEqual(t, a.CID, b.CID)
	assert.NotEqual(t, a.SHA256, b.SHA256)
}

func TestSHA256_KnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256(nil))
}

func TestOfFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(p, []byte(`[{"a":1}]`), 0644))

	fromFile, err := OfFile(p)
	require.NoError(t, err)
	fromBytes, err := Of([]byte(`[{"a":1}]`))
	require.NoError(t, err)
	assert.Equal(t, fromBytes, fromFile)

	_, err = OfFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	id, err := OfString("payload")
	require.NoError(t, err)

	ok, err := Verify(id.CID, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(id.CID, []byte("payload!"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Verify("not-a-cid", []byte("payload"))
	require.Error(t, err)
}
