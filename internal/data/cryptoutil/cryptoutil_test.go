package cryptoutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestAESGCMEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey(0x42))
	require.NoError(t, err)

	plaintext := []byte(`{"base_url":"https://tickets.example.com","api_token":"secret"}`)
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Contains(t, ciphertext, "v1:")
	assert.NotContains(t, ciphertext, "secret")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESGCMEncryptor_NonceVariesPerCall(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey(0x42))
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestAESGCMEncryptor_WrongKeyFails(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey(0x42))
	require.NoError(t, err)
	other, err := NewAESGCMEncryptor(testKey(0x43))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("credentials"))
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestAESGCMEncryptor_RejectsBadKeyLength(t *testing.T) {
	_, err := NewAESGCMEncryptor([]byte("short"))
	assert.Error(t, err)

	_, err = NewAESGCMEncryptor(bytes.Repeat([]byte{1}, 33))
	assert.Error(t, err)
}

func TestAESGCMEncryptor_RejectsUnknownVersion(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey(0x42))
	require.NoError(t, err)

	_, err = enc.Decrypt("v2:AAAA")
	assert.Error(t, err)

	_, err = enc.Decrypt("garbage")
	assert.Error(t, err)
}

func TestAESGCMEncryptor_ReadsNoopValues(t *testing.T) {
	// Rows written before a key was configured carry the noop prefix.
	noopCiphertext, err := NoopEncryptor{}.Encrypt([]byte("legacy"))
	require.NoError(t, err)

	enc, err := NewAESGCMEncryptor(testKey(0x42))
	require.NoError(t, err)

	decrypted, err := enc.Decrypt(noopCiphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), decrypted)
}

func TestNoopEncryptor_RoundTrip(t *testing.T) {
	enc := NoopEncryptor{}

	ciphertext, err := enc.Encrypt([]byte("plain"))
	require.NoError(t, err)
	assert.Contains(t, ciphertext, "noop:")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), decrypted)

	_, err = enc.Decrypt("v1:AAAA")
	assert.Error(t, err)
}
