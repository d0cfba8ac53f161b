package radcrypto

import (
	"crypto/md5"
	"fmt"
	"unicode/utf8"
)

// User-Password hiding per RFC 2865 Section 5.2: the password is padded
// with NULs to a multiple of 16 bytes and each block is XORed with
// MD5(secret || previous ciphertext block), seeded with the Request
// Authenticator.

const (
	passwordBlockSize = 16
	// MaxPasswordLength is the RFC 2865 limit on User-Password plaintext
	MaxPasswordLength = 128
)

// EncryptUserPassword produces the User-Password attribute value for a
// plaintext password
func EncryptUserPassword(password, secret []byte, requestAuth Authenticator) ([]byte, error) {
	if len(password) == 0 || len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: password length %d", ErrInvalidCredentialEncoding, len(password))
	}

	padded := make([]byte, ((len(password)+passwordBlockSize-1)/passwordBlockSize)*passwordBlockSize)
	copy(padded, password)

	result := make([]byte, len(padded))
	prev := requestAuth[:]
	for i := 0; i < len(padded); i += passwordBlockSize {
		hash := md5.New()
		hash.Write(secret)
		hash.Write(prev)
		key := hash.Sum(nil)

		for j := 0; j < passwordBlockSize; j++ {
			result[i+j] = padded[i+j] ^ key[j]
		}
		prev = result[i : i+passwordBlockSize]
	}

	return result, nil
}

// DecryptUserPassword recovers the plaintext from a User-Password
// attribute value. The decoded result is stripped of NUL padding and
// must be valid UTF-8 before it may reach a backend.
func DecryptUserPassword(ciphertext, secret []byte, requestAuth Authenticator) (string, error) {
	if len(ciphertext) == 0 || len(ciphertext)%passwordBlockSize != 0 || len(ciphertext) > MaxPasswordLength {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrInvalidCredentialEncoding, len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	prev := requestAuth[:]
	for i := 0; i < len(ciphertext); i += passwordBlockSize {
		hash := md5.New()
		hash.Write(secret)
		hash.Write(prev)
		key := hash.Sum(nil)

		for j := 0; j < passwordBlockSize; j++ {
			plain[i+j] = ciphertext[i+j] ^ key[j]
		}
		prev = ciphertext[i : i+passwordBlockSize]
	}

	// Strip NUL padding from the final block
	end := len(plain)
	for end > 0 && plain[end-1] == 0 {
		end--
	}
	plain = plain[:end]

	if len(plain) == 0 {
		return "", fmt.Errorf("%w: empty password", ErrInvalidCredentialEncoding)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: password is not valid UTF-8", ErrInvalidCredentialEncoding)
	}

	return string(plain), nil
}
