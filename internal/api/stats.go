package api

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/events"
)

const recentLogLimit = 10

// RecentLog is one row of the dashboard's recent-activity feed.
type RecentLog struct {
	Timestamp int64   `json:"timestamp"`
	Path      string  `json:"path"`
	Status    int     `json:"status"`
	Latency   float64 `json:"latency"`
}

// StatsResponse is the /api/v1/stats read-model.
type StatsResponse struct {
	TotalRequests int         `json:"total_requests"`
	AllowedCount  int         `json:"allowed_count"`
	BlockedCount  int         `json:"blocked_count"`
	RecentLogs    []RecentLog `json:"recent_logs"`
}

// StatsAggregator keeps live dashboard counters fed by the verdict event
// bus, seeded from the ledger file at boot so restarts don't zero the
// dashboard.
type StatsAggregator struct {
	mu      sync.RWMutex
	total   int
	allowed int
	blocked int
	recent  []RecentLog

	bus *events.Bus
	ch  chan events.VerdictEvent
}

// NewStatsAggregator subscribes to the bus and starts consuming.
func NewStatsAggregator(bus *events.Bus) *StatsAggregator {
	s := &StatsAggregator{bus: bus}
	if bus != nil {
		s.ch = bus.Subscribe()
		go s.consume()
	}
	return s
}

func (s *StatsAggregator) consume() {
	for e := range s.ch {
		s.mu.Lock()
		s.record(e.Timestamp, e.Path, e.StatusCode, e.LatencyMS)
		s.mu.Unlock()
	}
}

// Close detaches from the bus.
func (s *StatsAggregator) Close() {
	if s.bus != nil && s.ch != nil {
		s.bus.Unsubscribe(s.ch)
	}
}

// record assumes s.mu is held.
func (s *StatsAggregator) record(timestamp int64, path string, status int, latency float64) {
	s.total++
	switch {
	case status == 200:
		s.allowed++
	case status == 403 || status == 503:
		s.blocked++
	}

	s.recent = append(s.recent, RecentLog{
		Timestamp: timestamp,
		Path:      path,
		Status:    status,
		Latency:   latency,
	})
	if len(s.recent) > recentLogLimit {
		s.recent = s.recent[len(s.recent)-recentLogLimit:]
	}
}

// SeedFromLedger replays the ledger file into the counters. Genesis and
// malformed lines are skipped; a missing file is not an error.
func (s *StatsAggregator) SeedFromLedger(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		var entry struct {
			Event     string `json:"event"`
			Timestamp int64  `json:"timestamp"`
			Data      struct {
				Path       string  `json:"path"`
				StatusCode int     `json:"status_code"`
				LatencyMS  float64 `json:"latency_ms"`
			} `json:"data"`
		}
		if json.Unmarshal([]byte(line), &entry) != nil {
			continue
		}
		if entry.Event == "GENESIS" {
			continue
		}
		s.record(entry.Timestamp, entry.Data.Path, entry.Data.StatusCode, entry.Data.LatencyMS)
	}
	return nil
}

// Snapshot returns the current read-model.
func (s *StatsAggregator) Snapshot() StatsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]RecentLog, len(s.recent))
	// Newest first, matching the dashboard's feed order.
	for i, r := range s.recent {
		recent[len(s.recent)-1-i] = r
	}
	return StatsResponse{
		TotalRequests: s.total,
		AllowedCount:  s.allowed,
		BlockedCount:  s.blocked,
		RecentLogs:    recent,
	}
}
