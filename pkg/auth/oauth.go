package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vitalvas/radiusd/pkg/packet"
)

// OAuthBackend validates bearer tokens against an RFC 7662 token
// introspection endpoint. The NAS places the token in the password
// field of a PAP Access-Request.
type OAuthBackend struct {
	name     string
	endpoint string
	client   *resty.Client
}

// OAuthConfig configures an OAuthBackend
type OAuthConfig struct {
	IntrospectionURL string
	ClientID         string
	ClientSecret     string
	Timeout          time.Duration
}

type introspectionResponse struct {
	Active   bool   `json:"active"`
	Username string `json:"username"`
	Scope    string `json:"scope"`
}

// NewOAuthBackend creates an OAuth introspection backend
func NewOAuthBackend(name string, cfg OAuthConfig) *OAuthBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	return &OAuthBackend{
		name:     name,
		endpoint: cfg.IntrospectionURL,
		client:   client,
	}
}

// Name implements Backend
func (b *OAuthBackend) Name() string {
	return b.name
}

// Authenticate implements Backend. A network or server failure is
// returned as an error so the dispatcher can fall through; an
// inactive token is a definitive reject.
func (b *OAuthBackend) Authenticate(ctx context.Context, username string, cred Credential) (Verdict, error) {
	token := cred.Token
	if token == "" {
		token = cred.Password
	}
	if token == "" {
		return Reject("no token presented"), nil
	}

	var result introspectionResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token}).
		SetResult(&result).
		Post(b.endpoint)
	if err != nil {
		return Verdict{}, fmt.Errorf("token introspection: %w", err)
	}
	if resp.IsError() {
		return Verdict{}, fmt.Errorf("token introspection: unexpected status %d", resp.StatusCode())
	}

	if !result.Active {
		return Reject("token inactive"), nil
	}

	if result.Username != "" && result.Username != username {
		return Reject("token subject mismatch"), nil
	}

	if result.Scope != "" {
		return Accept(packet.NewStringAttribute(packet.AttrFilterID, result.Scope)), nil
	}
	return Accept(), nil
}
