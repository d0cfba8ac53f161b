// Package coa originates Dynamic Authorization requests (RFC 5176):
// Disconnect-Request and CoA-Request messages sent from the server to
// a NAS, with retransmission and response verification.
package coa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitalvas/radiusd/pkg/log"
	"github.com/vitalvas/radiusd/pkg/packet"
	"github.com/vitalvas/radiusd/pkg/radcrypto"
)

var (
	// ErrTimeout is returned when the NAS never answered within the retry budget
	ErrTimeout = errors.New("no response from NAS")
	// ErrBadResponse is returned when the NAS answer failed verification
	ErrBadResponse = errors.New("response verification failed")
)

const (
	defaultAttempts       = 3
	defaultAttemptTimeout = 2 * time.Second
)

// Result is the outcome of a dynamic authorization exchange
type Result struct {
	// Acked is true for Disconnect-ACK / CoA-ACK
	Acked bool
	// ErrorCause carries the Error-Cause value from a NAK, 0 if absent
	ErrorCause uint32
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithAttempts sets the number of transmission attempts
func WithAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt response wait
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client sends Disconnect and CoA requests. Safe for concurrent use;
// each exchange runs on its own ephemeral UDP socket.
type Client struct {
	attempts       int
	attemptTimeout time.Duration
	identifier     atomic.Uint32
	logger         log.Logger
}

// NewClient creates a dynamic authorization client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		attempts:       defaultAttempts,
		attemptTimeout: defaultAttemptTimeout,
		logger:         log.NewDefaultLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Disconnect asks the NAS to terminate a session. The attrs must
// identify the session (Acct-Session-Id, User-Name, NAS-IP-Address).
func (c *Client) Disconnect(ctx context.Context, nasAddr string, secret []byte, attrs []*packet.Attribute) (Result, error) {
	return c.exchange(ctx, nasAddr, secret, packet.CodeDisconnectRequest, attrs)
}

// ChangeAuthorization asks the NAS to apply new authorization
// attributes to a running session.
func (c *Client) ChangeAuthorization(ctx context.Context, nasAddr string, secret []byte, attrs []*packet.Attribute) (Result, error) {
	return c.exchange(ctx, nasAddr, secret, packet.CodeCoARequest, attrs)
}

func (c *Client) exchange(ctx context.Context, nasAddr string, secret []byte, code packet.Code, attrs []*packet.Attribute) (Result, error) {
	identifier := uint8(c.identifier.Add(1))
	txid := uuid.NewString()

	request := packet.New(code, identifier)
	for _, attr := range attrs {
		request.AddAttribute(attr)
	}

	data, err := request.Encode()
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", code, err)
	}

	// Request authenticator over the packet with a zeroed field
	auth := radcrypto.RequestAuthenticator(uint8(code), identifier, uint16(len(data)), data[packet.PacketHeaderLength:], secret)
	copy(data[4:20], auth[:])

	raddr, err := net.ResolveUDPAddr("udp", nasAddr)
	if err != nil {
		return Result{}, fmt.Errorf("resolve NAS address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return Result{}, fmt.Errorf("dial NAS: %w", err)
	}
	defer conn.Close()

	c.logger.Debugf("coa tx %s: sending %s id=%d to %s", txid, code, identifier, nasAddr)

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if _, err := conn.Write(data); err != nil {
			return Result{}, fmt.Errorf("send %s: %w", code, err)
		}

		result, err := c.awaitResponse(ctx, conn, code, identifier, auth, secret)
		if err == nil {
			c.logger.Infof("coa tx %s: %s id=%d acked=%v error-cause=%d",
				txid, code, identifier, result.Acked, result.ErrorCause)
			return result, nil
		}
		if !errors.Is(err, errAttemptTimeout) {
			return Result{}, err
		}

		c.logger.Debugf("coa tx %s: attempt %d/%d timed out", txid, attempt, c.attempts)
	}

	return Result{}, fmt.Errorf("%w after %d attempts", ErrTimeout, c.attempts)
}

var errAttemptTimeout = errors.New("attempt timed out")

func (c *Client) awaitResponse(ctx context.Context, conn *net.UDPConn, code packet.Code, identifier uint8, requestAuth radcrypto.Authenticator, secret []byte) (Result, error) {
	deadline := time.Now().Add(c.attemptTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return Result{}, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, packet.MaxPacketLength)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Result{}, errAttemptTimeout
			}
			return Result{}, fmt.Errorf("read response: %w", err)
		}

		response, err := packet.Decode(buf[:n], packet.MaxPacketLength)
		if err != nil {
			c.logger.Debugf("coa: discarding malformed response: %v", err)
			continue
		}

		if response.Identifier != identifier {
			continue
		}
		if !expectedResponse(code, response.Code) {
			continue
		}

		attrBytes := buf[packet.PacketHeaderLength:n]
		if !radcrypto.VerifyResponseAuthenticator(uint8(response.Code), response.Identifier,
			uint16(n), requestAuth, attrBytes, response.Authenticator, secret) {
			return Result{}, fmt.Errorf("%w: bad response authenticator", ErrBadResponse)
		}

		result := Result{
			Acked: response.Code == packet.CodeDisconnectACK || response.Code == packet.CodeCoAAck,
		}

		if !result.Acked {
			if attr, ok := response.GetAttribute(packet.AttrErrorCause); ok {
				if cause, err := attr.Integer(); err == nil {
					result.ErrorCause = cause
				}
			}
		}

		return result, nil
	}
}

func expectedResponse(request, response packet.Code) bool {
	switch request {
	case packet.CodeDisconnectRequest:
		return response == packet.CodeDisconnectACK || response == packet.CodeDisconnectNAK
	case packet.CodeCoARequest:
		return response == packet.CodeCoAAck || response == packet.CodeCoANak
	default:
		return false
	}
}
