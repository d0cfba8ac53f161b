package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/vitalvas/radiusd/pkg/radcrypto"
)

// LocalBackend authenticates against an in-memory user table loaded
// from configuration. It handles PAP and CHAP; other protocols are
// rejected as unsupported.
type LocalBackend struct {
	name  string
	users map[string]string
}

// NewLocalBackend creates a local backend from a username→password map
func NewLocalBackend(name string, users map[string]string) *LocalBackend {
	table := make(map[string]string, len(users))
	for username, password := range users {
		table[username] = password
	}

	return &LocalBackend{
		name:  name,
		users: table,
	}
}

// Name implements Backend
func (b *LocalBackend) Name() string {
	return b.name
}

// Authenticate implements Backend
func (b *LocalBackend) Authenticate(_ context.Context, username string, cred Credential) (Verdict, error) {
	password, ok := b.users[username]
	if !ok {
		return Reject("user not found"), nil
	}

	switch cred.Protocol {
	case ProtocolPAP:
		if subtle.ConstantTimeCompare([]byte(password), []byte(cred.Password)) != 1 {
			return Reject("password mismatch"), nil
		}
		return Accept(), nil

	case ProtocolCHAP:
		chapPassword := append([]byte{cred.CHAPID}, cred.CHAPResponse...)
		if !radcrypto.VerifyCHAP(chapPassword, []byte(password), cred.CHAPChallenge) {
			return Reject("chap response mismatch"), nil
		}
		return Accept(), nil

	default:
		return Reject(fmt.Sprintf("protocol %s not supported by local backend", cred.Protocol)), nil
	}
}
