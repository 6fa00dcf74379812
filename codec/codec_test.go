package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/databox/types"
)

const testSigningKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testSigningKey)
	require.NoError(t, err)
	return c
}

func TestNew_KeyValidation(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = New("0xzz")
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = New("0xdeadbeef") // 4 bytes, not 32
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	_, err = New(testSigningKey[2:]) // no 0x prefix is fine
	require.NoError(t, err)
}

func TestEncrypt_PadsToMinimum(t *testing.T) {
	c := newTestCodec(t)

	blob, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, MinObjectSize, len(blob))

	// Large plaintext gets no padding: nonce + tag + len(plaintext).
	big := bytes.Repeat([]byte{0xab}, 500)
	blob, err = c.Encrypt(big)
	require.NoError(t, err)
	assert.Equal(t, NonceSize+TagSize+500, len(blob))
}

func TestRoundTrip_SmallPlaintexts(t *testing.T) {
	c := newTestCodec(t)

	cases := [][]byte{
		{},
		[]byte("h"),
		[]byte("hello"),
		[]byte("a slightly longer message that still pads"),
		bytes.Repeat([]byte{0x7f}, 98), // one under the padding threshold
	}
	for _, plaintext := range cases {
		blob, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		got, legacy := c.Decrypt(blob)
		assert.False(t, legacy)
		assert.Equal(t, plaintext, got)
	}
}

func TestRoundTrip_LargePlaintextExact(t *testing.T) {
	c := newTestCodec(t)

	// At or above the padding threshold the round trip is exact, including
	// trailing zero bytes.
	plaintext := append(bytes.Repeat([]byte{0x11}, 200), 0x00, 0x00, 0x00)
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	got, legacy := c.Decrypt(blob)
	assert.False(t, legacy)
	assert.Equal(t, plaintext, got)
}

func TestRoundTrip_SmallZeroTailedPlaintextIsTrimmed(t *testing.T) {
	c := newTestCodec(t)

	// Under the threshold the pad boundary is unrecorded, so genuine
	// trailing zeros are lost on the way back.
	plaintext := []byte{0x01, 0x02, 0x00, 0x00}
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	got, legacy := c.Decrypt(blob)
	assert.False(t, legacy)
	assert.Equal(t, []byte{0x01, 0x02}, got)
}

func TestDecrypt_LegacyFallback(t *testing.T) {
	c := newTestCodec(t)

	// Too short to even hold nonce + tag.
	short := []byte("old data")
	got, legacy := c.Decrypt(short)
	assert.True(t, legacy)
	assert.Equal(t, short, got)

	// Long enough but never encrypted: auth fails, bytes come back as is.
	unencrypted := bytes.Repeat([]byte("plain old stored text "), 10)
	got, legacy = c.Decrypt(unencrypted)
	assert.True(t, legacy)
	assert.Equal(t, unencrypted, got)
}

func TestDecrypt_WrongKeyFallsBackToLegacy(t *testing.T) {
	c := newTestCodec(t)
	other, err := New("0x1111111111111111111111111111111111111111111111111111111111111111")
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	got, legacy := other.Decrypt(blob)
	assert.True(t, legacy)
	assert.Equal(t, blob, got)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}
