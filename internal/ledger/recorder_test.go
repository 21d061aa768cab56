package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLedger(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "veil.ledger.jsonl")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func sampleOutcome(status int) Outcome {
	return Outcome{
		Path:                "/v1/assess",
		Method:              "POST",
		ClientIP:            "172.18.0.2",
		StatusCode:          status,
		LatencyMS:           12.5,
		LayersPassed:        "ALL",
		IntentHeaderPresent: true,
	}
}

func TestRecorder_WritesGenesisOnFreshFile(t *testing.T) {
	path := tempLedger(t)

	r, err := NewRecorder(path, nil)
	require.NoError(t, err)
	r.Close()

	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var genesis map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &genesis))
	assert.Equal(t, "GENESIS", genesis["event"])
	assert.Equal(t, GenesisPrevHash, genesis["prev_hash"])
	assert.Equal(t, "GENESIS", genesis["signature"])
}

func TestRecorder_EmptyFileStillGetsGenesis(t *testing.T) {
	path := tempLedger(t)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := NewRecorder(path, nil)
	require.NoError(t, err)
	r.Record(sampleOutcome(200))
	r.Close()

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var genesis map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &genesis))
	assert.Equal(t, "GENESIS", genesis["signature"])

	// The first real entry anchors on genesis, not on a floating zero hash.
	canonical, err := canonicalizeLine([]byte(lines[0]))
	require.NoError(t, err)
	var entry struct {
		PrevHash string `json:"prev_hash"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, hashLine(canonical), entry.PrevHash)

	var out bytes.Buffer
	violations, err := VerifyFile(path, &out)
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestRecorder_ChainsEntries(t *testing.T) {
	path := tempLedger(t)

	r, err := NewRecorder(path, nil)
	require.NoError(t, err)

	r.Record(sampleOutcome(200))
	r.Close()
	r.Record(sampleOutcome(403))
	r.Close()

	lines := readLines(t, path)
	require.Len(t, lines, 3)

	// entry[i].prev_hash must equal SHA256(canonical(entry[i-1]))
	prev, err := canonicalizeLine([]byte(lines[0]))
	require.NoError(t, err)
	for _, line := range lines[1:] {
		var entry struct {
			PrevHash  string `json:"prev_hash"`
			Signature string `json:"signature"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, hashLine(prev), entry.PrevHash)
		assert.NotEqual(t, "GENESIS", entry.Signature)

		prev, err = canonicalizeLine([]byte(line))
		require.NoError(t, err)
	}
}

func TestRecorder_ResumesChainAcrossRestart(t *testing.T) {
	path := tempLedger(t)

	r1, err := NewRecorder(path, nil)
	require.NoError(t, err)
	r1.Record(sampleOutcome(200))
	r1.Close()

	// A new process with a new key must still extend the same chain.
	r2, err := NewRecorder(path, nil)
	require.NoError(t, err)
	r2.Record(sampleOutcome(403))
	r2.Close()

	var out bytes.Buffer
	violations, err := VerifyFile(path, &out)
	require.NoError(t, err)
	assert.Zero(t, violations)
	assert.Contains(t, out.String(), "INTEGRITY CONFIRMED")
}

func TestRecorder_ConcurrentRecordsKeepChainIntact(t *testing.T) {
	path := tempLedger(t)

	r, err := NewRecorder(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(status int) {
			defer wg.Done()
			r.Record(sampleOutcome(status))
		}(200 + i)
	}
	wg.Wait()
	r.Close()

	lines := readLines(t, path)
	assert.Len(t, lines, 26) // genesis + 25

	var out bytes.Buffer
	violations, err := VerifyFile(path, &out)
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestRecorder_SignaturesVerifyAgainstPublishedKey(t *testing.T) {
	path := tempLedger(t)

	r, err := NewRecorder(path, nil)
	require.NoError(t, err)
	r.Record(sampleOutcome(200))
	r.Record(sampleOutcome(503))
	r.Close()

	var out bytes.Buffer
	violations, err := VerifyFileWithKey(path, &out, r.PublicKey())
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestLoadSigningKey_RoundTrip(t *testing.T) {
	path := tempLedger(t)

	keyPath := filepath.Join(t.TempDir(), "ledger.key")
	// 32-byte seed, base64.
	require.NoError(t, os.WriteFile(keyPath, []byte("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="), 0o600))

	key, err := LoadSigningKey(keyPath)
	require.NoError(t, err)

	r, err := NewRecorder(path, key)
	require.NoError(t, err)
	r.Record(sampleOutcome(200))
	r.Close()

	var out bytes.Buffer
	violations, err := VerifyFileWithKey(path, &out, r.PublicKey())
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestLoadSigningKey_RejectsGarbage(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "ledger.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("dG9vLXNob3J0"), 0o600))

	_, err := LoadSigningKey(keyPath)
	assert.Error(t, err)
}

func TestCanonicalJSON_SortsKeysAndStripsWhitespace(t *testing.T) {
	a, err := CanonicalJSON(map[string]interface{}{"b": 1, "a": map[string]interface{}{"z": true, "y": "x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":"x","z":true},"b":1}`, string(a))

	// Struct field order must not leak into the canonical form.
	b, err := CanonicalJSON(sampleOutcome(200))
	require.NoError(t, err)
	c, err := CanonicalJSON(map[string]interface{}{
		"path": "/v1/assess", "method": "POST", "client_ip": "172.18.0.2",
		"status_code": 200, "latency_ms": 12.5, "layers_passed": "ALL",
		"intent_header_present": true,
	})
	require.NoError(t, err)
	assert.Equal(t, string(c), string(b))
}
