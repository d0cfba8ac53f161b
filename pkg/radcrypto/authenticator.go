package radcrypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"errors"
	"fmt"
)

// AuthenticatorLength is the length of RADIUS authenticators in bytes
const AuthenticatorLength = 16

// Authenticator represents a 16-byte RADIUS authenticator
type Authenticator [AuthenticatorLength]byte

var (
	// ErrIntegrityCheckFailed indicates an authenticator or Message-Authenticator mismatch
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
	// ErrInvalidCredentialEncoding indicates a credential that decoded to invalid data
	ErrInvalidCredentialEncoding = errors.New("invalid credential encoding")
)

// GenerateAuthenticator generates a random authenticator for outbound requests
func GenerateAuthenticator() (Authenticator, error) {
	var auth Authenticator
	if _, err := rand.Read(auth[:]); err != nil {
		return auth, fmt.Errorf("failed to generate random authenticator: %w", err)
	}
	return auth, nil
}

// ResponseAuthenticator calculates the Response Authenticator as defined
// in RFC 2865 Section 3:
// MD5(Code + ID + Length + Request Authenticator + Response Attributes + Secret)
func ResponseAuthenticator(code uint8, identifier uint8, length uint16, requestAuth Authenticator, attrs []byte, secret []byte) Authenticator {
	hash := md5.New()
	hash.Write([]byte{code, identifier, byte(length >> 8), byte(length)})
	hash.Write(requestAuth[:])
	hash.Write(attrs)
	hash.Write(secret)

	var result Authenticator
	copy(result[:], hash.Sum(nil))
	return result
}

// VerifyResponseAuthenticator verifies a received Response Authenticator
// in constant time
func VerifyResponseAuthenticator(code uint8, identifier uint8, length uint16, requestAuth Authenticator, attrs []byte, received Authenticator, secret []byte) bool {
	expected := ResponseAuthenticator(code, identifier, length, requestAuth, attrs, secret)
	return hmac.Equal(expected[:], received[:])
}

// RequestAuthenticator calculates the Request Authenticator for
// Accounting-Request, CoA-Request and Disconnect-Request packets
// (RFC 2866 Section 3, RFC 5176 Section 2.3):
// MD5(Code + ID + Length + 16 zero octets + Attributes + Secret)
func RequestAuthenticator(code uint8, identifier uint8, length uint16, attrs []byte, secret []byte) Authenticator {
	hash := md5.New()
	hash.Write([]byte{code, identifier, byte(length >> 8), byte(length)})
	hash.Write(make([]byte, AuthenticatorLength))
	hash.Write(attrs)
	hash.Write(secret)

	var result Authenticator
	copy(result[:], hash.Sum(nil))
	return result
}

// VerifyRequestAuthenticator verifies a received Request Authenticator
// in constant time
func VerifyRequestAuthenticator(code uint8, identifier uint8, length uint16, attrs []byte, received Authenticator, secret []byte) bool {
	expected := RequestAuthenticator(code, identifier, length, attrs, secret)
	return hmac.Equal(expected[:], received[:])
}

// SignWirePacket overwrites the authenticator field of an encoded
// response with the Response Authenticator computed over its final
// bytes. The packet length must already be final.
func SignWirePacket(data []byte, requestAuth Authenticator, secret []byte) error {
	if len(data) < 20 {
		return fmt.Errorf("packet too short to sign: %d bytes", len(data))
	}
	length := uint16(data[2])<<8 | uint16(data[3])
	auth := ResponseAuthenticator(data[0], data[1], length, requestAuth, data[20:], secret)
	copy(data[4:20], auth[:])
	return nil
}

// Equal compares two authenticators in constant time
func (a Authenticator) Equal(other Authenticator) bool {
	return hmac.Equal(a[:], other[:])
}

// IsZero returns true if the authenticator is all zeros
func (a Authenticator) IsZero() bool {
	return a.Equal(Authenticator{})
}

// String returns a hex representation of the authenticator
func (a Authenticator) String() string {
	return fmt.Sprintf("%x", a[:])
}

// FromBytes creates an authenticator from a byte slice
func FromBytes(data []byte) (Authenticator, error) {
	var auth Authenticator
	if len(data) != AuthenticatorLength {
		return auth, fmt.Errorf("authenticator must be exactly %d bytes, got %d", AuthenticatorLength, len(data))
	}
	copy(auth[:], data)
	return auth, nil
}
