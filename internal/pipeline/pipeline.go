// Package pipeline composes the VEIL assessment gates into a fixed,
// explicitly ordered chain. Each gate either forwards to the next one or
// short-circuits with a BLOCK verdict; nothing about the order is
// discovered at runtime.
package pipeline

import (
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

// Next invokes the remainder of the chain and yields its verdict.
type Next func() core.Verdict

// Gate is one layer of the assessment pipeline.
//
// A gate must never panic its way out or return an error: every failure
// mode, including broken dependencies, maps to a concrete BLOCK verdict
// (fail-closed).
type Gate interface {
	Name() string
	Assess(ctx *Context, next Next) core.Verdict
}

// Chain is the fixed composition of gates, outermost first.
type Chain struct {
	gates []Gate
}

// NewChain builds the pipeline. The declaration order is the execution
// order: gates[0] sees every request, gates[len-1] only what the others
// admitted.
func NewChain(gates ...Gate) *Chain {
	return &Chain{gates: gates}
}

// Assess runs ctx through every gate. terminal is the innermost step,
// reached only when all gates forward; for the engine server it runs the
// application handler.
func (c *Chain) Assess(ctx *Context, terminal Next) core.Verdict {
	start := time.Now()
	verdict := c.step(0, ctx, terminal)
	verdict.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0

	assessDuration.Observe(time.Since(start).Seconds())
	verdictTotal.WithLabelValues(verdict.Gate, string(verdict.Status)).Inc()
	return verdict
}

func (c *Chain) step(i int, ctx *Context, terminal Next) core.Verdict {
	if i == len(c.gates) {
		return terminal()
	}
	return c.gates[i].Assess(ctx, func() core.Verdict {
		return c.step(i+1, ctx, terminal)
	})
}
