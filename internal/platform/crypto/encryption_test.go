package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)
	require.True(t, svc.Configured())

	sealed, err := svc.Encrypt([]byte("declaration"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte("declaration")))

	plain, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "declaration", string(plain))
}

func TestUnconfiguredServicePassesThrough(t *testing.T) {
	svc, err := New("")
	require.NoError(t, err)
	assert.False(t, svc.Configured())

	out, err := svc.Encrypt([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))

	derived, err := svc.ForPurpose(PurposeDeclarationExport)
	require.NoError(t, err)
	assert.False(t, derived.Configured())
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New("short")
	assert.Error(t, err)
}

func TestForPurposeDerivesDistinctKeys(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)

	exports, err := svc.ForPurpose(PurposeDeclarationExport)
	require.NoError(t, err)
	snapshots, err := svc.ForPurpose(PurposePayslipSnapshot)
	require.NoError(t, err)

	sealed, err := exports.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = snapshots.Decrypt(sealed)
	assert.Error(t, err)
	_, err = svc.Decrypt(sealed)
	assert.Error(t, err)

	plain, err := exports.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	svc, err := New(strings.Repeat("k!", 16))
	require.NoError(t, err)
	_, err = svc.Decrypt([]byte("abc"))
	assert.Error(t, err)
}
