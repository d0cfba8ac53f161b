package radcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAuthenticator(t *testing.T) {
	auth1, err := GenerateAuthenticator()
	require.NoError(t, err)

	auth2, err := GenerateAuthenticator()
	require.NoError(t, err)

	assert.NotEqual(t, auth1, auth2)
	assert.False(t, auth1.IsZero())
	assert.Len(t, auth1.String(), AuthenticatorLength*2)
}

func TestResponseAuthenticator(t *testing.T) {
	requestAuth := Authenticator{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	secret := []byte("secret")
	attrs := []byte{0x06, 0x06, 0x00, 0x00, 0x00, 0x01}

	auth := ResponseAuthenticator(2, 123, 26, requestAuth, attrs, secret)
	assert.False(t, auth.IsZero())

	// Deterministic
	assert.Equal(t, auth, ResponseAuthenticator(2, 123, 26, requestAuth, attrs, secret))

	assert.True(t, VerifyResponseAuthenticator(2, 123, 26, requestAuth, attrs, auth, secret))

	tampered := auth
	tampered[0] ^= 0xff
	assert.False(t, VerifyResponseAuthenticator(2, 123, 26, requestAuth, attrs, tampered, secret))
	assert.False(t, VerifyResponseAuthenticator(2, 123, 26, requestAuth, attrs, auth, []byte("wrong")))
}

func TestRequestAuthenticator(t *testing.T) {
	secret := []byte("secret")
	attrs := []byte{0x28, 0x06, 0x00, 0x00, 0x00, 0x01}

	auth := RequestAuthenticator(4, 77, 26, attrs, secret)
	assert.True(t, VerifyRequestAuthenticator(4, 77, 26, attrs, auth, secret))

	tampered := auth
	tampered[5] ^= 0x01
	assert.False(t, VerifyRequestAuthenticator(4, 77, 26, attrs, tampered, secret))
}

func TestSignWirePacket(t *testing.T) {
	requestAuth := Authenticator{0xaa, 0xbb}
	secret := []byte("secret")

	// Minimal Access-Accept with one Reply-Message attribute
	data := []byte{
		0x02, 0x05, 0x00, 0x18,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x12, 0x04, 0x6f, 0x6b,
	}

	require.NoError(t, SignWirePacket(data, requestAuth, secret))

	var got Authenticator
	copy(got[:], data[4:20])
	expected := ResponseAuthenticator(2, 5, 24, requestAuth, data[20:], secret)
	assert.Equal(t, expected, got)

	assert.Error(t, SignWirePacket(make([]byte, 4), requestAuth, secret))
}

func TestFromBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	auth, err := FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, data, auth[:])

	_, err = FromBytes([]byte{1, 2})
	assert.Error(t, err)
}
