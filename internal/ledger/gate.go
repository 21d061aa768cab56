package ledger

import (
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/events"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/intent"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// GateName identifies the recorder layer in verdicts and metrics.
const GateName = "ledger"

// Gate is the outermost pipeline layer: it sees every outcome, including
// requests the inner gates rejected, and records exactly one ledger entry
// per assessment after the verdict is determined.
type Gate struct {
	recorder *Recorder
	bus      *events.Bus
}

// NewGate wires the recorder layer. bus may be nil when no read-model is
// interested in live outcomes.
func NewGate(recorder *Recorder, bus *events.Bus) *Gate {
	return &Gate{recorder: recorder, bus: bus}
}

func (g *Gate) Name() string { return GateName }

func (g *Gate) Assess(ctx *pipeline.Context, next pipeline.Next) core.Verdict {
	verdict := next()

	layers := "BLOCKED"
	if verdict.Allowed() {
		layers = "ALL"
	}

	outcome := Outcome{
		Path:                ctx.Path,
		Method:              ctx.Method,
		ClientIP:            ctx.ClientAddr,
		StatusCode:          verdict.HTTPStatus,
		LatencyMS:           ctx.ElapsedMS(),
		LayersPassed:        layers,
		IntentHeaderPresent: ctx.Header.Get(intent.HeaderName) != "",
	}
	g.recorder.Record(outcome)

	if g.bus != nil {
		g.bus.Publish(events.VerdictEvent{
			Timestamp:  time.Now().Unix(),
			Path:       outcome.Path,
			Method:     outcome.Method,
			ClientIP:   outcome.ClientIP,
			StatusCode: outcome.StatusCode,
			LatencyMS:  outcome.LatencyMS,
			Allowed:    verdict.Allowed(),
		})
	}

	return verdict
}
