package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name    string
	verdict Verdict
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Authenticate(ctx context.Context, _ string, _ Credential) (Verdict, error) {
	s.calls.Add(1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}

	if s.err != nil {
		return Verdict{}, s.err
	}
	return s.verdict, nil
}

func TestDispatcherPriorityOrder(t *testing.T) {
	low := &stubBackend{name: "low", verdict: Accept()}
	high := &stubBackend{name: "high", verdict: Accept()}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: low, Priority: 20},
		{Backend: high, Priority: 10},
	})
	require.NoError(t, err)

	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictAccept, verdict.Kind)
	assert.Equal(t, int64(1), high.calls.Load())
	assert.Equal(t, int64(0), low.calls.Load())
}

func TestDispatcherRejectIsFinal(t *testing.T) {
	first := &stubBackend{name: "first", verdict: Reject("bad password")}
	second := &stubBackend{name: "second", verdict: Accept()}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: first, Priority: 10},
		{Backend: second, Priority: 20},
	})
	require.NoError(t, err)

	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictReject, verdict.Kind)
	assert.False(t, verdict.Unavailable)

	// A credential reject must never fall through to the next backend
	assert.Equal(t, int64(0), second.calls.Load())
}

func TestDispatcherFallsThroughOnError(t *testing.T) {
	broken := &stubBackend{name: "broken", err: errors.New("connection refused")}
	working := &stubBackend{name: "working", verdict: Accept()}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: broken, Priority: 10},
		{Backend: working, Priority: 20},
	})
	require.NoError(t, err)

	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictAccept, verdict.Kind)
	assert.Equal(t, int64(1), broken.calls.Load())
	assert.Equal(t, int64(1), working.calls.Load())
}

func TestDispatcherExhaustionIsUnavailable(t *testing.T) {
	broken := &stubBackend{name: "broken", err: errors.New("down")}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: broken, Priority: 10},
	})
	require.NoError(t, err)

	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictReject, verdict.Kind)
	assert.True(t, verdict.Unavailable)
}

func TestDispatcherTimeout(t *testing.T) {
	slow := &stubBackend{name: "slow", verdict: Accept(), delay: time.Second}
	fast := &stubBackend{name: "fast", verdict: Accept()}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: slow, Priority: 10},
		{Backend: fast, Priority: 20},
	}, WithBackendTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictAccept, verdict.Kind)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(1), fast.calls.Load())
}

func TestDispatcherBreakerOpensAfterFailures(t *testing.T) {
	broken := &stubBackend{name: "broken", err: errors.New("down")}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: broken, Priority: 10},
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		verdict := disp.Authenticate(context.Background(), "alice", Credential{})
		assert.True(t, verdict.Unavailable)
	}

	// The breaker trips after five consecutive failures; later
	// requests short-circuit without reaching the backend
	assert.Equal(t, int64(5), broken.calls.Load())
}

func TestNewDispatcherRequiresBackends(t *testing.T) {
	_, err := NewDispatcher(nil)
	assert.ErrorIs(t, err, ErrNoBackends)
}

func TestDispatcherEqualPriorityKeepsOrder(t *testing.T) {
	first := &stubBackend{name: "first", err: errors.New("down")}
	second := &stubBackend{name: "second", verdict: Accept()}

	disp, err := NewDispatcher([]PrioritizedBackend{
		{Backend: first, Priority: 10},
		{Backend: second, Priority: 10},
	})
	require.NoError(t, err)

	verdict := disp.Authenticate(context.Background(), "alice", Credential{})
	assert.Equal(t, VerdictAccept, verdict.Kind)
	assert.Equal(t, int64(1), first.calls.Load())
}
