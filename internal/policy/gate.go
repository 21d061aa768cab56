package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// GateName identifies this gate in verdicts and metrics.
const GateName = "policy"

// Evaluator is the rule-evaluation collaborator.
type Evaluator interface {
	Evaluate(ctx context.Context, input map[string]interface{}) (bool, error)
}

// Gate buffers the request body (making it re-readable downstream via the
// pipeline context), builds the policy input document and enforces the
// evaluator's verdict.
type Gate struct {
	evaluator Evaluator
}

func NewGate(evaluator Evaluator) *Gate {
	return &Gate{evaluator: evaluator}
}

func (g *Gate) Name() string { return GateName }

func (g *Gate) Assess(ctx *pipeline.Context, next pipeline.Next) core.Verdict {
	if pipeline.PublicPath(ctx.Path) {
		return next()
	}

	// First Body() call buffers the bytes; the judge gate reads the same
	// buffer afterwards.
	var payload interface{} = map[string]interface{}{}
	body, err := ctx.Body()
	if err != nil {
		slog.Error("Body read failed", "path", ctx.Path, "error", err)
	} else if len(body) > 0 {
		var parsed interface{}
		if json.Unmarshal(body, &parsed) == nil {
			payload = parsed
		} else {
			payload = map[string]interface{}{"raw_size": len(body)}
		}
	}

	var intentValue interface{} = map[string]interface{}{}
	if ctx.Intent != nil {
		intentValue = ctx.Intent
	}

	input := map[string]interface{}{
		"method":         ctx.Method,
		"path":           ctx.Path,
		"intent":         intentValue,
		"payload":        payload,
		"client_address": ctx.ClientAddr,
	}

	evalCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	allowed, err := g.evaluator.Evaluate(evalCtx, input)
	if err != nil {
		if errors.Is(err, ErrEngineResponse) {
			slog.Error("Policy engine error, failing closed", "error", err)
			return core.Unavailable(GateName, "Policy Engine Unavailable")
		}
		slog.Error("Policy engine unreachable, failing closed", "error", err)
		return core.Unavailable(GateName, "Policy Engine Unreachable")
	}

	if !allowed {
		slog.Warn("Policy violation", "path", ctx.Path, "client", ctx.ClientAddr)
		return core.Block(GateName, "Policy Violation")
	}

	return next()
}
