package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// GateName identifies this gate in verdicts and metrics.
const GateName = "judge"

const (
	// CacheTTL bounds how long a judgement is reused for identical
	// (justification, evidence) content.
	CacheTTL = 3600 * time.Second

	// ConfidenceFloor is the skeptical threshold: a positive model verdict
	// below it is overridden to BLOCK.
	ConfidenceFloor = 0.7

	// evidenceLimit truncates the body before it reaches the model.
	evidenceLimit = 500

	noPayload = "No Payload"
)

// VerdictCache is the shared TTL cache of judge outcomes keyed by content
// fingerprint. A miss is (nil, nil).
type VerdictCache interface {
	GetJudgement(ctx context.Context, fingerprint string) (*core.Judgement, error)
	PutJudgement(ctx context.Context, fingerprint string, j core.Judgement, ttl time.Duration) error
}

// Model produces a judgement for a (justification, evidence) pair.
type Model interface {
	Evaluate(ctx context.Context, justification, evidence string) (core.Judgement, error)
}

// Gate implements the judge path: fast path for low risk, deterministic
// pre-filter, cache lookup, model call with skeptical override, cache
// write. Every failure along the way is a BLOCK; failures are never
// written to the cache.
type Gate struct {
	cache VerdictCache
	model Model
}

func NewGate(cache VerdictCache, model Model) *Gate {
	return &Gate{cache: cache, model: model}
}

func (g *Gate) Name() string { return GateName }

func (g *Gate) Assess(ctx *pipeline.Context, next pipeline.Next) core.Verdict {
	if pipeline.PublicPath(ctx.Path) {
		return next()
	}

	// The intent gate runs before us; without a declaration there is
	// nothing to judge (bypass-path shapes only).
	if ctx.Intent == nil {
		return next()
	}

	if ctx.Intent.RiskLevel == core.RiskLow {
		return next()
	}

	evidence := g.extractEvidence(ctx)

	// Pre-filter precedence: a deterministic match blocks even when the
	// cache holds an ALLOW for the same fingerprint.
	if match, hit := PreCheck(evidence); hit {
		slog.Warn("Pre-check block", "pattern", match, "path", ctx.Path)
		return core.Block(GateName,
			fmt.Sprintf("Judge Denied - Pre-Check Block: Dangerous pattern detected: %s", match))
	}

	fingerprint := Fingerprint(ctx.Intent.Justification, evidence)

	callCtx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()

	if cached, err := g.cache.GetJudgement(callCtx, fingerprint); err != nil {
		slog.Warn("Verdict cache read failed", "error", err)
	} else if cached != nil {
		pipeline.CacheHits.WithLabelValues("judge").Inc()
		slog.Info("Verdict cache hit", "verdict", cached.Verdict)
		return g.decide(*cached, next)
	}

	slog.Info("Invoking judge", "justification", ctx.Intent.Justification)
	judgement, err := g.model.Evaluate(callCtx, ctx.Intent.Justification, evidence)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadOutput):
			slog.Error("Invalid judge output, failing closed", "error", err)
			return core.Block(GateName, "Judge Denied - Invalid Judge Output (Fail-Closed)")
		case errors.Is(err, ErrUnavailable):
			slog.Error("Judge unavailable, failing closed", "error", err)
			return core.Unavailable(GateName, "Judge Unavailable (Fail-Closed)")
		default:
			slog.Error("Judge error, failing closed", "error", err)
			return core.Unavailable(GateName, "Judge Error (Fail-Closed)")
		}
	}

	if judgement.Verdict && judgement.Confidence < ConfidenceFloor {
		slog.Warn("Skeptical override", "confidence", judgement.Confidence)
		judgement.Verdict = false
		judgement.Reason = fmt.Sprintf("Skeptical Override: Confidence too low (%v)", judgement.Confidence)
	}

	// Only real judgements are cached; fail-closed outcomes never are.
	if err := g.cache.PutJudgement(callCtx, fingerprint, judgement, CacheTTL); err != nil {
		slog.Warn("Verdict cache write failed", "error", err)
	}

	return g.decide(judgement, next)
}

func (g *Gate) decide(j core.Judgement, next pipeline.Next) core.Verdict {
	if j.Verdict && j.Confidence >= ConfidenceFloor {
		return next()
	}
	return core.Block(GateName, fmt.Sprintf("Judge Denied - %s", j.Reason))
}

// extractEvidence decodes the buffered body as UTF-8 and truncates it.
func (g *Gate) extractEvidence(ctx *pipeline.Context) string {
	body, err := ctx.Body()
	if err != nil || len(body) == 0 || !utf8.Valid(body) {
		return noPayload
	}
	if len(body) > evidenceLimit {
		body = body[:evidenceLimit]
		// The cut can land mid-rune; drop the trailing partial bytes so the
		// model never sees a broken sequence.
		for len(body) > 0 {
			r, size := utf8.DecodeLastRune(body)
			if r != utf8.RuneError || size > 1 {
				break
			}
			body = body[:len(body)-1]
		}
	}
	return string(body)
}

// Fingerprint is the cache key: SHA-256 over the canonical
// "<justification>|<evidence>" byte string.
func Fingerprint(justification, evidence string) string {
	sum := sha256.Sum256([]byte(justification + "|" + evidence))
	return hex.EncodeToString(sum[:])
}
