// Package ledger is the verifiable action ledger: a hash-chained, signed,
// append-only JSONL file recording the outcome of every assessment, plus
// the offline verifier that detects tampering.
package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// GenesisSignature marks the anchoring entry; it carries no real
	// signature because there is nothing before it to bind.
	GenesisSignature = "GENESIS"

	ledgerVersion = "v1.0"
)

// GenesisPrevHash is the zero prev-hash of the first entry.
var GenesisPrevHash = strings.Repeat("0", 64)

// Outcome is the captured result of one assessment, the "data" field of a
// ledger entry.
type Outcome struct {
	Path                string  `json:"path"`
	Method              string  `json:"method"`
	ClientIP            string  `json:"client_ip"`
	StatusCode          int     `json:"status_code"`
	LatencyMS           float64 `json:"latency_ms"`
	LayersPassed        string  `json:"layers_passed"` // "ALL" or "BLOCKED"
	IntentHeaderPresent bool    `json:"intent_header_present"`
}

// Recorder owns the ledger file within the process: it serializes every
// append-and-hash-update under one lock so concurrent assessments can
// never interleave entries or race on the chain tip.
type Recorder struct {
	mu       sync.Mutex
	path     string
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	lastHash string

	wg  sync.WaitGroup
	now func() int64
}

// NewRecorder opens (or creates, with a genesis entry) the ledger at path.
// A nil key generates an ephemeral keypair — acceptable in dev only; load
// a persistent key with LoadSigningKey for anything that must survive a
// restart.
func NewRecorder(path string, priv ed25519.PrivateKey) (*Recorder, error) {
	if priv == nil {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}

	r := &Recorder{
		path: path,
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
		now:  func() int64 { return time.Now().Unix() },
	}

	if err := r.init(); err != nil {
		return nil, err
	}

	// The public key is printed once for out-of-band archival; signature
	// verification later depends on the operator keeping it.
	slog.Info("Ledger inspector public key",
		"pubkey", base64.StdEncoding.EncodeToString(r.pub))

	return r, nil
}

// LoadSigningKey reads a base64-encoded Ed25519 seed or private key from
// a file.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	}
	return nil, fmt.Errorf("signing key must be %d or %d bytes, got %d",
		ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
}

// PublicKey returns the verification key for this recorder's signatures.
func (r *Recorder) PublicKey() ed25519.PublicKey {
	return r.pub
}

func (r *Recorder) init() error {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return r.writeGenesis()
	}

	tail, err := lastLine(r.path)
	if err != nil {
		return fmt.Errorf("read ledger tail: %w", err)
	}
	if tail == "" {
		// A pre-created empty file has no anchoring entry yet; the chain
		// must still start with genesis, not with a floating zero prev_hash.
		return r.writeGenesis()
	}
	canonical, err := canonicalizeLine([]byte(tail))
	if err != nil {
		return fmt.Errorf("parse ledger tail: %w", err)
	}
	r.lastHash = hashLine(canonical)
	return nil
}

func (r *Recorder) writeGenesis() error {
	genesis := map[string]interface{}{
		"event":     GenesisSignature,
		"timestamp": r.now(),
		"prev_hash": GenesisPrevHash,
		"signature": GenesisSignature,
		"meta":      map[string]interface{}{"version": ledgerVersion},
	}
	line, err := CanonicalJSON(genesis)
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}
	if err := r.appendLine(line); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}
	r.lastHash = hashLine(line)
	return nil
}

// Record schedules one ledger entry for the outcome. The append runs in
// the background so request latency is unaffected; ordering is whatever
// the recorder lock serializes, not arrival order.
func (r *Recorder) Record(outcome Outcome) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.signAndAppend(outcome); err != nil {
			slog.Error("Ledger write failed", "error", err)
		}
	}()
}

// Close waits for in-flight appends to land.
func (r *Recorder) Close() {
	r.wg.Wait()
}

func (r *Recorder) signAndAppend(outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := r.now()
	prevHash := r.lastHash

	dataJSON, err := CanonicalJSON(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	// The signature binds content, chain link and time together.
	payload := fmt.Sprintf("%s|%s|%d", prevHash, dataJSON, timestamp)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(r.priv, []byte(payload)))

	entry := map[string]interface{}{
		"timestamp":         timestamp,
		"data":              outcome,
		"prev_hash":         prevHash,
		"signature":         signature,
		"verification_data": "prev_hash|data_json|timestamp",
	}
	line, err := CanonicalJSON(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.appendLine(line); err != nil {
		return err
	}

	r.lastHash = hashLine(line)
	return nil
}

func (r *Recorder) appendLine(line []byte) error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// hashLine is SHA-256 over a canonical entry line, hex-encoded: the chain
// link carried by the next entry.
func hashLine(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func lastLine(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 0 {
		return "", nil
	}
	return lines[len(lines)-1], nil
}
