// Package dedup suppresses RADIUS retransmissions. The protocol runs
// over UDP with client-side retries and no acknowledgement: re-running
// a backend call or an accounting mutation for every retry would
// amplify load and double-count usage, so each (client, identifier,
// request authenticator) triple executes at most once within the
// dedup window and retransmissions observe the cached response.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Decision classifies an admitted datagram
type Decision int

const (
	// DecisionNew means the caller owns the computation for this request
	DecisionNew Decision = iota
	// DecisionDuplicate means an identical request is in flight; wait for its result
	DecisionDuplicate
	// DecisionReplay means an identical request completed; the cached response applies
	DecisionReplay
)

type tableKey struct {
	addr       string
	identifier uint8
}

type entry struct {
	auth        [16]byte
	done        chan struct{}
	response    []byte
	completedAt time.Time
}

// Table tracks in-flight and recently completed requests per
// (client address, identifier). Entries with different request
// authenticators under the same key are independent logical requests:
// identifiers wrap at 256 and are reused.
type Table struct {
	mu      sync.Mutex
	entries map[tableKey][]*entry
	window  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// Tx is a handle on a single admitted request
type Tx struct {
	table *Table
	key   tableKey
	e     *entry
}

// NewTable creates a dedup table. window is how long a completed
// response is retained for retransmission replies.
func NewTable(window time.Duration) *Table {
	if window <= 0 {
		window = 5 * time.Second
	}

	t := &Table{
		entries: make(map[tableKey][]*entry),
		window:  window,
		stop:    make(chan struct{}),
	}

	go t.sweep()
	return t
}

// Admit registers a request. The returned Decision tells the caller
// whether to compute (New), wait for the in-flight original
// (Duplicate), or resend the cached bytes (Replay).
func (t *Table) Admit(addr string, identifier uint8, auth [16]byte) (*Tx, Decision) {
	key := tableKey{addr: addr, identifier: identifier}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries[key] {
		if e.auth != auth {
			continue
		}
		select {
		case <-e.done:
			if e.response == nil {
				// Original was dropped without a response; treat the
				// retransmission as a fresh request
				continue
			}
			return &Tx{table: t, key: key, e: e}, DecisionReplay
		default:
			return &Tx{table: t, key: key, e: e}, DecisionDuplicate
		}
	}

	e := &entry{auth: auth, done: make(chan struct{})}
	t.entries[key] = append(t.entries[key], e)
	return &Tx{table: t, key: key, e: e}, DecisionNew
}

// Finish publishes the response bytes for this request and wakes all
// waiters. Must be called exactly once by the DecisionNew owner.
func (tx *Tx) Finish(response []byte) {
	tx.e.response = response
	tx.e.completedAt = time.Now()
	close(tx.e.done)
}

// Drop marks the request as finished without a response (the engine
// dropped it). Waiters observe a nil response and drop as well; the
// entry is removed so a later retransmission starts fresh.
func (tx *Tx) Drop() {
	tx.e.completedAt = time.Now()
	close(tx.e.done)
	tx.table.remove(tx.key, tx.e)
}

// Wait blocks until the in-flight original completes and returns its
// response bytes. A nil response means the original was dropped.
func (tx *Tx) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-tx.e.done:
		return tx.e.response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Response returns the cached bytes for a DecisionReplay handle
func (tx *Tx) Response() []byte {
	return tx.e.response
}

// Len reports the number of tracked entries
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, list := range t.entries {
		n += len(list)
	}
	return n
}

// Close stops the background sweeper
func (t *Table) Close() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

func (t *Table) remove(key tableKey, target *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.entries[key]
	for i, e := range list {
		if e == target {
			t.entries[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(t.entries[key]) == 0 {
		delete(t.entries, key)
	}
}

func (t *Table) sweep() {
	interval := t.window / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.evictExpired(now)
		}
	}
}

func (t *Table) evictExpired(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, list := range t.entries {
		kept := list[:0]
		for _, e := range list {
			expired := false
			select {
			case <-e.done:
				expired = now.Sub(e.completedAt) > t.window
			default:
			}
			if !expired {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(t.entries, key)
		} else {
			t.entries[key] = kept
		}
	}
}
