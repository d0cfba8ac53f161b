package server

import "sync/atomic"

// Stats is a snapshot of server counters
type Stats struct {
	AuthRequests      uint64 `json:"auth_requests"`
	AuthAccepts       uint64 `json:"auth_accepts"`
	AuthRejects       uint64 `json:"auth_rejects"`
	AuthChallenges    uint64 `json:"auth_challenges"`
	AcctRequests      uint64 `json:"acct_requests"`
	CoARequests       uint64 `json:"coa_requests"`
	DedupHits         uint64 `json:"dedup_hits"`
	IntegrityFailures uint64 `json:"integrity_failures"`
	MalformedPackets  uint64 `json:"malformed_packets"`
	Dropped           uint64 `json:"dropped"`
	Responses         uint64 `json:"responses"`
}

type statCounters struct {
	authRequests      atomic.Uint64
	authAccepts       atomic.Uint64
	authRejects       atomic.Uint64
	authChallenges    atomic.Uint64
	acctRequests      atomic.Uint64
	coaRequests       atomic.Uint64
	dedupHits         atomic.Uint64
	integrityFailures atomic.Uint64
	malformedPackets  atomic.Uint64
	dropped           atomic.Uint64
	responses         atomic.Uint64
}

func (s *statCounters) snapshot() Stats {
	return Stats{
		AuthRequests:      s.authRequests.Load(),
		AuthAccepts:       s.authAccepts.Load(),
		AuthRejects:       s.authRejects.Load(),
		AuthChallenges:    s.authChallenges.Load(),
		AcctRequests:      s.acctRequests.Load(),
		CoARequests:       s.coaRequests.Load(),
		DedupHits:         s.dedupHits.Load(),
		IntegrityFailures: s.integrityFailures.Load(),
		MalformedPackets:  s.malformedPackets.Load(),
		Dropped:           s.dropped.Load(),
		Responses:         s.responses.Load(),
	}
}
