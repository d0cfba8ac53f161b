// Package auth defines the authentication backend contract and the
// dispatcher that consults configured backends in priority order.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitalvas/radiusd/pkg/packet"
)

// Protocol identifies an authentication method carried inside an
// Access-Request.
type Protocol uint8

const (
	ProtocolPAP Protocol = iota
	ProtocolCHAP
	ProtocolMSCHAP
	ProtocolPEAP
	ProtocolEAPTTLS
)

var protocolNames = map[Protocol]string{
	ProtocolPAP:     "pap",
	ProtocolCHAP:    "chap",
	ProtocolMSCHAP:  "mschap",
	ProtocolPEAP:    "peap",
	ProtocolEAPTTLS: "eap-ttls",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("protocol(%d)", uint8(p))
}

// ParseProtocol converts a configuration string into a Protocol
func ParseProtocol(s string) (Protocol, error) {
	for p, name := range protocolNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown authentication protocol: %q", s)
}

// UnmarshalYAML lets protocol lists appear in config files as plain strings
func (p *Protocol) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := ParseProtocol(s)
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

// Credential carries the material extracted from an Access-Request.
// Exactly one protocol's fields are populated.
type Credential struct {
	Protocol Protocol

	// PAP
	Password string

	// CHAP
	CHAPID        byte
	CHAPChallenge []byte
	CHAPResponse  []byte

	// Bearer token (password field repurposed by the client)
	Token string
}

// VerdictKind is the outcome class of an authentication attempt
type VerdictKind uint8

const (
	VerdictAccept VerdictKind = iota
	VerdictReject
	VerdictChallenge
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictAccept:
		return "accept"
	case VerdictReject:
		return "reject"
	case VerdictChallenge:
		return "challenge"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(k))
	}
}

// Verdict is a definitive answer from a backend.
//
// Reject carries an internal Reason that is logged but never sent to
// the client; the wire response stays generic. Unavailable marks
// rejects caused by infrastructure failure rather than bad
// credentials, so operators can tell the two apart in logs and stats.
type Verdict struct {
	Kind VerdictKind

	// Accept
	ReplyAttributes []*packet.Attribute

	// Reject
	Reason      string
	Unavailable bool

	// Challenge
	State   []byte
	Message string
}

// Accept builds an accepting verdict with optional reply attributes
func Accept(attrs ...*packet.Attribute) Verdict {
	return Verdict{Kind: VerdictAccept, ReplyAttributes: attrs}
}

// Reject builds a credential-failure verdict with an internal reason
func Reject(reason string) Verdict {
	return Verdict{Kind: VerdictReject, Reason: reason}
}

// Unavailable builds a reject verdict caused by backend failure
func Unavailable(reason string) Verdict {
	return Verdict{Kind: VerdictReject, Reason: reason, Unavailable: true}
}

// Challenge builds a challenge verdict carrying opaque state
func Challenge(state []byte, message string) Verdict {
	return Verdict{Kind: VerdictChallenge, State: state, Message: message}
}

// Backend authenticates a single user. Returning an error means the
// backend could not produce a verdict (network failure, timeout) and
// the dispatcher moves on; a Reject verdict is definitive and stops
// the chain.
type Backend interface {
	Name() string
	Authenticate(ctx context.Context, username string, cred Credential) (Verdict, error)
}
