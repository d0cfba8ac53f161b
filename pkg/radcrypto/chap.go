package radcrypto

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
)

const (
	// CHAPChallengeLength is the default length of a CHAP challenge in bytes
	CHAPChallengeLength = 16
	// CHAPResponseLength is the length of the CHAP response (MD5 hash)
	CHAPResponseLength = 16
)

// GenerateCHAPChallenge generates a random CHAP challenge
func GenerateCHAPChallenge(length int) ([]byte, error) {
	if length <= 0 {
		length = CHAPChallengeLength
	}
	if length > 255 {
		length = 255
	}

	challenge := make([]byte, length)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// CHAPResponse generates a CHAP-Password value per RFC 2865 Section 5.3:
// 1 byte identifier followed by MD5(identifier + password + challenge).
func CHAPResponse(identifier byte, password, challenge []byte) []byte {
	hash := md5.New()
	hash.Write([]byte{identifier})
	hash.Write(password)
	hash.Write(challenge)

	response := make([]byte, 1+CHAPResponseLength)
	response[0] = identifier
	copy(response[1:], hash.Sum(nil))
	return response
}

// VerifyCHAP checks a CHAP-Password value against the known plaintext
// password and challenge. The comparison is constant-time.
func VerifyCHAP(chapPassword, password, challenge []byte) bool {
	if len(chapPassword) != 1+CHAPResponseLength {
		return false
	}

	expected := CHAPResponse(chapPassword[0], password, challenge)
	return subtle.ConstantTimeCompare(chapPassword, expected) == 1
}
