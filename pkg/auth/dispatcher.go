package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vitalvas/radiusd/pkg/log"
)

// ErrNoBackends is returned by NewDispatcher when no backends are configured
var ErrNoBackends = errors.New("no authentication backends configured")

const defaultBackendTimeout = 2 * time.Second

// DispatcherOption customizes dispatcher construction
type DispatcherOption func(*Dispatcher)

// WithBackendTimeout bounds each individual backend call
func WithBackendTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithDispatcherLogger sets the dispatcher logger
func WithDispatcherLogger(logger log.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

// PrioritizedBackend pairs a backend with its configured priority.
// Lower priority values are consulted first; equal priorities keep
// their declaration order.
type PrioritizedBackend struct {
	Backend  Backend
	Priority int
}

type breakerBackend struct {
	backend Backend
	breaker *gobreaker.CircuitBreaker
}

// Dispatcher walks the configured backends in order until one
// produces a definitive verdict. Backend errors, timeouts and open
// circuit breakers fall through to the next backend; a Reject is
// final and never retried against lower-priority backends. If every
// backend fails, the verdict is an unavailable Reject.
type Dispatcher struct {
	backends []breakerBackend
	timeout  time.Duration
	logger   log.Logger
}

// NewDispatcher orders the backends and wraps each in its own
// circuit breaker.
func NewDispatcher(backends []PrioritizedBackend, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	ordered := make([]PrioritizedBackend, len(backends))
	copy(ordered, backends)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	disp := &Dispatcher{
		backends: make([]breakerBackend, 0, len(ordered)),
		timeout:  defaultBackendTimeout,
		logger:   log.NewDefaultLogger(),
	}

	for _, opt := range opts {
		opt(disp)
	}

	for _, pb := range ordered {
		breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    pb.Backend.Name(),
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})

		disp.backends = append(disp.backends, breakerBackend{
			backend: pb.Backend,
			breaker: breaker,
		})
	}

	return disp, nil
}

// Authenticate consults backends until one answers
func (d *Dispatcher) Authenticate(ctx context.Context, username string, cred Credential) Verdict {
	for _, bb := range d.backends {
		verdict, err := d.tryBackend(ctx, bb, username, cred)
		if err != nil {
			d.logger.Warnf("auth backend %s failed for user %s: %v", bb.backend.Name(), username, err)
			continue
		}
		return verdict
	}

	return Unavailable("all authentication backends unavailable")
}

func (d *Dispatcher) tryBackend(ctx context.Context, bb breakerBackend, username string, cred Credential) (Verdict, error) {
	result, err := bb.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		verdict, err := bb.backend.Authenticate(callCtx, username, cred)
		if err != nil {
			return nil, err
		}
		return verdict, nil
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("backend call: %w", err)
	}

	return result.(Verdict), nil
}
