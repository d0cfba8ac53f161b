package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/radiusd/pkg/log"
	"github.com/vitalvas/radiusd/pkg/packet"
)

func newTestRecord(sessionID string) Record {
	return Record{
		SessionID:     sessionID,
		Username:      "alice",
		NASIdentifier: "nas-01",
		NASIPAddress:  net.ParseIP("192.0.2.10"),
	}
}

func TestTrackerLifecycle(t *testing.T) {
	sink := NewMemorySink()
	tracker := NewTracker(sink, log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))

	key := rec.Key()
	active, ok := tracker.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, StatusActive, active.Status)
	assert.False(t, active.StartTime.IsZero())

	require.NoError(t, tracker.InterimUpdate(ctx, key, 1000, 2000, 60))

	active, ok = tracker.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), active.InputOctets)
	assert.Equal(t, uint64(2000), active.OutputOctets)

	require.NoError(t, tracker.Stop(ctx, key, 5000, 9000, 300, packet.TerminateCauseUserRequest))

	_, ok = tracker.Lookup(key)
	assert.False(t, ok)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusStopped, records[0].Status)
	assert.Equal(t, uint64(5000), records[0].InputOctets)
	assert.Equal(t, uint64(9000), records[0].OutputOctets)
	assert.Equal(t, packet.TerminateCauseUserRequest, records[0].TerminateCause)
}

func TestTrackerInterimUnknownSession(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())

	err := tracker.InterimUpdate(context.Background(), "nas-01/nope", 1, 1, 1)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestTrackerStopUnknownSession(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())

	err := tracker.Stop(context.Background(), "nas-01/nope", 1, 1, 1, 0)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestTrackerCounterRegression(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))
	key := rec.Key()

	require.NoError(t, tracker.InterimUpdate(ctx, key, 1000, 1000, 60))

	err := tracker.InterimUpdate(ctx, key, 500, 2000, 120)
	assert.ErrorIs(t, err, ErrCounterRegression)

	// Stored counters untouched by the rejected update
	active, ok := tracker.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), active.InputOctets)
	assert.Equal(t, uint64(1000), active.OutputOctets)
}

func TestTrackerStopCounterRegressionClamped(t *testing.T) {
	sink := NewMemorySink()
	tracker := NewTracker(sink, log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))
	key := rec.Key()

	require.NoError(t, tracker.InterimUpdate(ctx, key, 1000, 2000, 60))

	// NAS reset its counters before the final report; the session still
	// finalizes but the stored maximum wins
	require.NoError(t, tracker.Stop(ctx, key, 10, 20, 5, packet.TerminateCauseLostCarrier))

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint64(1000), records[0].InputOctets)
	assert.Equal(t, uint64(2000), records[0].OutputOctets)
	assert.Equal(t, uint32(60), records[0].SessionTime)
	assert.Equal(t, packet.TerminateCauseLostCarrier, records[0].TerminateCause)
}

func TestTrackerStopWithoutCountersKeepsInterimValues(t *testing.T) {
	sink := NewMemorySink()
	tracker := NewTracker(sink, log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))
	key := rec.Key()

	require.NoError(t, tracker.InterimUpdate(ctx, key, 4000, 8000, 120))

	// A Stop with no octet attributes reports zeroes
	require.NoError(t, tracker.Stop(ctx, key, 0, 0, 0, packet.TerminateCauseUserRequest))

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint64(4000), records[0].InputOctets)
	assert.Equal(t, uint64(8000), records[0].OutputOctets)
	assert.Equal(t, uint32(120), records[0].SessionTime)
}

type failingSink struct {
	err error
}

func (s *failingSink) Record(context.Context, Record) error {
	return s.err
}

func TestTrackerStopSinkErrorStillRemovesSession(t *testing.T) {
	sink := &failingSink{err: errors.New("sink down")}
	tracker := NewTracker(sink, log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))
	key := rec.Key()

	err := tracker.Stop(ctx, key, 100, 200, 10, packet.TerminateCauseUserRequest)
	assert.Error(t, err)

	// The session is gone; a late interim cannot resurrect it
	_, ok := tracker.Lookup(key)
	assert.False(t, ok)
	assert.ErrorIs(t, tracker.InterimUpdate(ctx, key, 300, 400, 20), ErrUnknownSession)
}

func TestTrackerDuplicateStartSynthesizesStop(t *testing.T) {
	sink := NewMemorySink()
	tracker := NewTracker(sink, log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-1")
	require.NoError(t, tracker.Start(ctx, rec))
	require.NoError(t, tracker.InterimUpdate(ctx, rec.Key(), 777, 888, 60))

	// NAS restarted and reissued the same session id
	require.NoError(t, tracker.Start(ctx, newTestRecord("sess-1")))

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusStopped, records[0].Status)
	assert.Equal(t, packet.TerminateCauseNASReboot, records[0].TerminateCause)
	assert.Equal(t, uint64(777), records[0].InputOctets)

	// Fresh session starts clean
	active, ok := tracker.Lookup(rec.Key())
	require.True(t, ok)
	assert.Equal(t, uint64(0), active.InputOctets)
}

func TestTrackerSameSessionIDDifferentNAS(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())
	ctx := context.Background()

	first := newTestRecord("sess-1")
	second := newTestRecord("sess-1")
	second.NASIdentifier = "nas-02"

	require.NoError(t, tracker.Start(ctx, first))
	require.NoError(t, tracker.Start(ctx, second))

	assert.Len(t, tracker.Active(), 2)
}

func TestTrackerFind(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())
	ctx := context.Background()

	rec := newTestRecord("sess-42")
	require.NoError(t, tracker.Start(ctx, rec))

	found, ok := tracker.Find("sess-42")
	require.True(t, ok)
	assert.Equal(t, "nas-01", found.NASIdentifier)

	_, ok = tracker.Find("sess-43")
	assert.False(t, ok)
}

func TestTrackerConcurrentUpdates(t *testing.T) {
	tracker := NewTracker(NewMemorySink(), log.NewNopLogger())
	ctx := context.Background()

	const sessions = 16

	for i := 0; i < sessions; i++ {
		rec := newTestRecord(string(rune('a' + i)))
		require.NoError(t, tracker.Start(ctx, rec))
	}

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "nas-01/" + string(rune('a'+i))
			for n := uint64(1); n <= 100; n++ {
				_ = tracker.InterimUpdate(ctx, key, n*10, n*20, uint32(n))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		key := "nas-01/" + string(rune('a'+i))
		active, ok := tracker.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, uint64(1000), active.InputOctets)
		assert.Equal(t, uint64(2000), active.OutputOctets)
	}
}
