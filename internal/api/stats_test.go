package api

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/events"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/ledger"
)

func publish(bus *events.Bus, path string, status int) {
	bus.Publish(events.VerdictEvent{
		Timestamp:  time.Now().Unix(),
		Path:       path,
		Method:     "GET",
		ClientIP:   "172.18.0.2",
		StatusCode: status,
		LatencyMS:  2.0,
		Allowed:    status == 200,
	})
}

func waitForTotal(t *testing.T, s *StatsAggregator, want int) StatsResponse {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := s.Snapshot()
		if snap.TotalRequests >= want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("stats never reached %d requests (got %d)", want, snap.TotalRequests)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStatsAggregator_CountsVerdicts(t *testing.T) {
	bus := events.NewBus()
	s := NewStatsAggregator(bus)
	defer s.Close()

	publish(bus, "/a", 200)
	publish(bus, "/b", 403)
	publish(bus, "/c", 503)
	publish(bus, "/d", 200)

	snap := waitForTotal(t, s, 4)
	assert.Equal(t, 4, snap.TotalRequests)
	assert.Equal(t, 2, snap.AllowedCount)
	assert.Equal(t, 2, snap.BlockedCount)
}

func TestStatsAggregator_RecentLogsNewestFirstCapped(t *testing.T) {
	bus := events.NewBus()
	s := NewStatsAggregator(bus)
	defer s.Close()

	for i := 0; i < 15; i++ {
		publish(bus, "/req", 200)
	}
	publish(bus, "/latest", 403)

	snap := waitForTotal(t, s, 16)
	require.Len(t, snap.RecentLogs, 10)
	assert.Equal(t, "/latest", snap.RecentLogs[0].Path)
	assert.Equal(t, 403, snap.RecentLogs[0].Status)
}

func TestStatsAggregator_SeedFromLedger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veil.ledger.jsonl")

	rec, err := ledger.NewRecorder(path, nil)
	require.NoError(t, err)
	rec.Record(ledger.Outcome{Path: "/a", Method: "GET", StatusCode: 200, LatencyMS: 1})
	rec.Close()
	rec.Record(ledger.Outcome{Path: "/b", Method: "POST", StatusCode: 403, LatencyMS: 2})
	rec.Close()

	s := NewStatsAggregator(nil)
	require.NoError(t, s.SeedFromLedger(path))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TotalRequests, "genesis must not count")
	assert.Equal(t, 1, snap.AllowedCount)
	assert.Equal(t, 1, snap.BlockedCount)
	require.Len(t, snap.RecentLogs, 2)
	assert.Equal(t, "/b", snap.RecentLogs[0].Path)
}

func TestStatsAggregator_SeedMissingFileIsNotAnError(t *testing.T) {
	s := NewStatsAggregator(nil)
	assert.NoError(t, s.SeedFromLedger(filepath.Join(t.TempDir(), "absent.jsonl")))
	assert.Zero(t, s.Snapshot().TotalRequests)
}
