package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// GateName identifies this gate in verdicts and metrics.
const GateName = "intent"

// NonceTTL is the replay-defense window. A consumed nonce stays consumed
// for this long; within it a second use of the same nonce is a replay.
const NonceTTL = 300 * time.Second

// NonceStore is the atomic check-and-set collaborator for single-use
// tokens. ClaimNonce returns false when the nonce was already consumed;
// the claim and its TTL must be a single atomic operation.
type NonceStore interface {
	ClaimNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// Gate parses the declaration, cross-checks it against the actual request
// ("the lie detector") and burns the nonce.
type Gate struct {
	nonces NonceStore
	dev    bool
}

// NewGate wires the intent gate. dev permits fail-open when the nonce
// store is unreachable; production blocks.
func NewGate(nonces NonceStore, dev bool) *Gate {
	return &Gate{nonces: nonces, dev: dev}
}

func (g *Gate) Name() string { return GateName }

func (g *Gate) Assess(ctx *pipeline.Context, next pipeline.Next) core.Verdict {
	if pipeline.PublicPath(ctx.Path) {
		return next()
	}

	raw := ctx.Header.Get(HeaderName)
	if raw == "" {
		slog.Warn("Missing intent header", "path", ctx.Path)
		return core.Block(GateName, "Missing Intent Declaration")
	}

	decl, err := ParseDeclaration(raw)
	if err != nil {
		if errors.Is(err, ErrInvalidJSON) {
			slog.Warn("Invalid intent JSON", "path", ctx.Path)
			return core.Block(GateName, "Invalid Intent JSON")
		}
		slog.Warn("Intent schema rejected", "path", ctx.Path, "error", err)
		return core.Block(GateName, fmt.Sprintf("Intent Schema Error - %v", err))
	}

	actual := ctx.Action()
	if decl.Action != actual {
		slog.Warn("Intent-action mismatch", "claimed", decl.Action, "actual", actual)
		return core.Block(GateName,
			fmt.Sprintf("Intent-Action Mismatch (Claimed: %s, Actual: %s)", decl.Action, actual))
	}

	claimCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fresh, err := g.nonces.ClaimNonce(claimCtx, decl.Nonce, NonceTTL)
	if err != nil {
		if g.dev {
			slog.Warn("Nonce store unreachable, allowing in dev", "error", err)
			ctx.Intent = decl
			return next()
		}
		slog.Error("Nonce store unreachable", "error", err)
		return core.Unavailable(GateName, "Nonce Store Unavailable")
	}
	if !fresh {
		slog.Warn("Replay detected", "nonce", decl.Nonce)
		return core.Block(GateName, "Replay Attack Detected (Nonce Already Used)")
	}

	ctx.Intent = decl
	return next()
}
