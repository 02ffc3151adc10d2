package cryptox

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	require.True(t, bytes.Equal(key1, key2))
	require.Len(t, key1, 32)
}

func TestDeriveMasterKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")
	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))
	assert.False(t, bytes.Equal(key1, key2))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	ct, nonce, err := Seal(key, []byte("hunter2"))
	require.NoError(t, err)
	require.Len(t, nonce, 12)

	pt, err := Open(key, ct, nonce)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(pt))
}

func TestOpen_TamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	ct, nonce, err := Seal(key, []byte("hunter2"))
	require.NoError(t, err)

	ct[0] ^= 0xff
	_, err = Open(key, ct, nonce)
	require.Error(t, err)
}

func TestSeal_RejectsShortKey(t *testing.T) {
	_, _, err := Seal([]byte("short"), []byte("x"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	_, n1, err := Seal(key, []byte("a"))
	require.NoError(t, err)
	_, n2, err := Seal(key, []byte("a"))
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestChecksum_KnownVector(t *testing.T) {
	sum, n, err := Checksum(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, n, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	_, err = hex.DecodeString(sum)
	require.NoError(t, err)

	_, _, err = FileChecksum(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.Len(t, HashString("abc"), 64)
}
