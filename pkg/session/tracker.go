package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/vitalvas/radiusd/pkg/log"
	"github.com/vitalvas/radiusd/pkg/packet"
)

const lockShards = 64

// Tracker maintains the set of active sessions. Operations on the
// same session serialize on a sharded mutex; unrelated sessions
// proceed concurrently.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*Record

	shards [lockShards]sync.Mutex

	sink   Sink
	logger log.Logger
}

// NewTracker creates a session tracker emitting completed records to sink
func NewTracker(sink Sink, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.NewDefaultLogger()
	}

	return &Tracker{
		active: make(map[string]*Record),
		sink:   sink,
		logger: logger,
	}
}

func (t *Tracker) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &t.shards[h.Sum32()%lockShards]
}

// Start registers a new session. A Start for an already-active
// session means the NAS restarted or retransmitted outside the dedup
// window: the stale session is finalized with a synthesized Stop
// before the fresh one is registered.
func (t *Tracker) Start(ctx context.Context, rec Record) error {
	key := rec.Key()
	lock := t.shard(key)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	var stopped Record
	_, exists := t.active[key]
	if exists {
		stopped = *t.active[key]
	}
	t.mu.RUnlock()

	if exists {
		t.logger.Warnf("duplicate start for session %s, finalizing stale session", key)

		stopped.Status = StatusStopped
		stopped.TerminateCause = packet.TerminateCauseNASReboot
		stopped.LastUpdate = time.Now()

		if err := t.emit(ctx, stopped); err != nil {
			t.logger.Errorf("emit synthesized stop for %s: %v", key, err)
		}
	}

	now := time.Now()
	rec.Status = StatusActive
	if rec.StartTime.IsZero() {
		rec.StartTime = now
	}
	rec.LastUpdate = now

	t.mu.Lock()
	t.active[key] = &rec
	t.mu.Unlock()

	return nil
}

// InterimUpdate refreshes counters for an active session. Octet
// counters must be monotonic; a regression leaves the stored record
// untouched and returns ErrCounterRegression.
func (t *Tracker) InterimUpdate(_ context.Context, key string, inputOctets, outputOctets uint64, sessionTime uint32) error {
	lock := t.shard(key)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.active[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}

	if inputOctets < rec.InputOctets || outputOctets < rec.OutputOctets {
		return fmt.Errorf("%w: session %s", ErrCounterRegression, key)
	}

	rec.InputOctets = inputOctets
	rec.OutputOctets = outputOctets
	rec.SessionTime = sessionTime
	rec.LastUpdate = time.Now()

	return nil
}

// Stop finalizes a session: counters are applied, the record is
// emitted to the sink and removed from the active set. Octet counters
// stay monotonic: a Stop carrying lower values than the last update
// (or none at all) keeps the stored maximum. The session is removed
// even when the sink fails. Stopping an unknown session returns
// ErrUnknownSession.
func (t *Tracker) Stop(ctx context.Context, key string, inputOctets, outputOctets uint64, sessionTime uint32, terminateCause uint32) error {
	lock := t.shard(key)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	rec, exists := t.active[key]
	if !exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}

	if inputOctets < rec.InputOctets || outputOctets < rec.OutputOctets {
		t.logger.Warnf("stop for session %s regresses counters, keeping stored values", key)
	}
	if inputOctets > rec.InputOctets {
		rec.InputOctets = inputOctets
	}
	if outputOctets > rec.OutputOctets {
		rec.OutputOctets = outputOctets
	}
	if sessionTime > rec.SessionTime {
		rec.SessionTime = sessionTime
	}
	rec.TerminateCause = terminateCause
	rec.Status = StatusStopped
	rec.LastUpdate = time.Now()

	final := *rec
	delete(t.active, key)
	t.mu.Unlock()

	if err := t.emit(ctx, final); err != nil {
		return fmt.Errorf("emit stop record: %w", err)
	}

	return nil
}

// Lookup returns a copy of an active session record
func (t *Tracker) Lookup(key string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.active[key]
	if !exists {
		return Record{}, false
	}
	return *rec, true
}

// Find returns the active session with the given Acct-Session-Id,
// regardless of NAS. Used by the management boundary where only the
// session id is known.
func (t *Tracker) Find(sessionID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, rec := range t.active {
		if rec.SessionID == sessionID {
			return *rec, true
		}
	}
	return Record{}, false
}

// Active returns a snapshot of all active sessions
func (t *Tracker) Active() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, len(t.active))
	for _, rec := range t.active {
		out = append(out, *rec)
	}
	return out
}

func (t *Tracker) emit(ctx context.Context, rec Record) error {
	if t.sink == nil {
		return nil
	}
	return t.sink.Record(ctx, rec)
}
