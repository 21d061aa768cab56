package identity

import (
	"context"
	"crypto/hmac"
	"fmt"
	"log/slog"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// GateName identifies this gate in verdicts and metrics.
const GateName = "identity"

// Gate enforces the proxy/engine handshake: the shared internal token plus
// the runtime identity of the calling container.
type Gate struct {
	token          string
	authorizedHash string
	dev            bool
	inspector      RuntimeInspector
}

// NewGate wires the identity gate. inspector resolves addresses to image
// digests; dev permits the UNKNOWN fingerprint (host clients, tests).
func NewGate(token, authorizedHash string, dev bool, inspector RuntimeInspector) *Gate {
	return &Gate{
		token:          token,
		authorizedHash: authorizedHash,
		dev:            dev,
		inspector:      inspector,
	}
}

func (g *Gate) Name() string { return GateName }

func (g *Gate) Assess(ctx *pipeline.Context, next pipeline.Next) core.Verdict {
	if pipeline.PublicPath(ctx.Path) {
		return next()
	}

	// Constant-time comparison; the token is a bearer secret.
	token := ctx.Header.Get("X-Internal-Token")
	if token == "" || !hmac.Equal([]byte(token), []byte(g.token)) {
		slog.Warn("Identity handshake rejected", "path", ctx.Path, "client", ctx.ClientAddr)
		return core.Block(GateName, "Unauthorized Handshake")
	}

	inspectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fingerprint := g.inspector.ContainerIdentity(inspectCtx, ctx.ClientAddr)

	if fingerprint == FingerprintUnknown && g.dev {
		slog.Warn("Accepting UNKNOWN runtime fingerprint in dev", "client", ctx.ClientAddr)
		return next()
	}
	if fingerprint != g.authorizedHash {
		slog.Warn("Runtime identity rejected", "client", ctx.ClientAddr, "fingerprint", fingerprint)
		return core.Block(GateName, fmt.Sprintf("Runtime Identity Mismatch (Target: %s)", fingerprint))
	}

	return next()
}
