// Package session tracks accounting sessions reported by network
// access servers and emits completed records to a sink.
package session

import (
	"context"
	"errors"
	"net"
	"time"
)

// Session status values
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

var (
	// ErrUnknownSession is returned for updates to a session never started
	ErrUnknownSession = errors.New("unknown accounting session")
	// ErrCounterRegression is returned when octet counters decrease
	ErrCounterRegression = errors.New("accounting counters decreased")
)

// Record is the state of one accounting session
type Record struct {
	SessionID      string    `json:"session_id"`
	Username       string    `json:"username"`
	NASIdentifier  string    `json:"nas_identifier"`
	NASIPAddress   net.IP    `json:"nas_ip_address"`
	CallingStation string    `json:"calling_station,omitempty"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
	InputOctets    uint64    `json:"input_octets"`
	OutputOctets   uint64    `json:"output_octets"`
	SessionTime    uint32    `json:"session_time"`
	TerminateCause uint32    `json:"terminate_cause,omitempty"`
}

// Key identifies a session uniquely across NAS restarts: the same
// Acct-Session-Id may be reissued by a different NAS.
func (r *Record) Key() string {
	return r.NASIdentifier + "/" + r.SessionID
}

// Sink receives finalized or updated session records
type Sink interface {
	Record(ctx context.Context, rec Record) error
}
