package radcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCHAPRoundTrip(t *testing.T) {
	challenge, err := GenerateCHAPChallenge(16)
	require.NoError(t, err)
	password := []byte("arctangent")

	chapPassword := CHAPResponse(0x42, password, challenge)
	assert.Len(t, chapPassword, 1+CHAPResponseLength)
	assert.Equal(t, byte(0x42), chapPassword[0])

	assert.True(t, VerifyCHAP(chapPassword, password, challenge))
}

func TestVerifyCHAPRejectsSingleByteChange(t *testing.T) {
	challenge, err := GenerateCHAPChallenge(16)
	require.NoError(t, err)
	password := []byte("secret1")

	chapPassword := CHAPResponse(0x01, password, challenge)

	// Flipping any single byte of the password must cause rejection
	for i := range password {
		altered := append([]byte(nil), password...)
		altered[i] ^= 0x01
		assert.False(t, VerifyCHAP(chapPassword, altered, challenge), "byte %d", i)
	}

	// Wrong challenge
	otherChallenge, err := GenerateCHAPChallenge(16)
	require.NoError(t, err)
	assert.False(t, VerifyCHAP(chapPassword, password, otherChallenge))

	// Malformed CHAP-Password value
	assert.False(t, VerifyCHAP(chapPassword[:10], password, challenge))
}

func TestGenerateCHAPChallengeBounds(t *testing.T) {
	c, err := GenerateCHAPChallenge(0)
	require.NoError(t, err)
	assert.Len(t, c, CHAPChallengeLength)

	c, err = GenerateCHAPChallenge(1000)
	require.NoError(t, err)
	assert.Len(t, c, 255)
}
