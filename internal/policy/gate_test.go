package policy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// evaluatorServer fakes the rule evaluator and records the last input
// document it was asked about.
type evaluatorServer struct {
	*httptest.Server
	lastInput map[string]interface{}
	calls     int
}

func newEvaluatorServer(t *testing.T, result bool) *evaluatorServer {
	t.Helper()
	s := &evaluatorServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		var req struct {
			Input map[string]interface{} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.lastInput = req.Input
		json.NewEncoder(w).Encode(map[string]bool{"result": result})
	}))
	return s
}

func policyContext(method, path string, body []byte) *pipeline.Context {
	ctx := pipeline.NewTestContext(method, path, "172.18.0.5", http.Header{}, body)
	ctx.Intent = &core.IntentDeclaration{
		Goal:          "read data",
		Action:        method + " " + path,
		Justification: "scheduled sync",
		RiskLevel:     core.RiskLow,
		Nonce:         "a3bb189e-8bf9-3888-9912-ace4e6543002",
		Timestamp:     1730000000,
	}
	return ctx
}

func allowNext(called *bool) pipeline.Next {
	return func() core.Verdict {
		*called = true
		return core.Allow("test")
	}
}

func TestGate_AllowForwardsInputDocument(t *testing.T) {
	srv := newEvaluatorServer(t, true)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	ctx := policyContext("POST", "/api/users", []byte(`{"email":"a@b.c"}`))
	v := g.Assess(ctx, allowNext(&called))

	assert.True(t, called)
	assert.Equal(t, core.StatusAllow, v.Status)

	require.NotNil(t, srv.lastInput)
	assert.Equal(t, "POST", srv.lastInput["method"])
	assert.Equal(t, "/api/users", srv.lastInput["path"])
	assert.Equal(t, "172.18.0.5", srv.lastInput["client_address"])
	payload, ok := srv.lastInput["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a@b.c", payload["email"])
	intentDoc, ok := srv.lastInput["intent"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "scheduled sync", intentDoc["justification"])
}

func TestGate_DenyBlocks403(t *testing.T) {
	srv := newEvaluatorServer(t, false)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	v := g.Assess(policyContext("DELETE", "/api/users/1", nil), allowNext(&called))

	assert.False(t, called)
	assert.Equal(t, core.StatusBlock, v.Status)
	assert.Equal(t, 403, v.HTTPStatus)
	assert.Equal(t, "Policy Violation", v.Reason)
}

func TestGate_EvaluatorErrorFailsClosed503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	v := g.Assess(policyContext("GET", "/api/data", nil), allowNext(&called))

	assert.False(t, called)
	assert.Equal(t, 503, v.HTTPStatus)
	assert.Equal(t, "Policy Engine Unavailable", v.Reason)
}

func TestGate_EvaluatorUnreachableFailsClosed503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	v := g.Assess(policyContext("GET", "/api/data", nil), allowNext(&called))

	assert.False(t, called)
	assert.Equal(t, 503, v.HTTPStatus)
	assert.Equal(t, "Policy Engine Unreachable", v.Reason)
}

func TestGate_NonJSONBodyReportsRawSize(t *testing.T) {
	srv := newEvaluatorServer(t, true)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	g.Assess(policyContext("POST", "/api/upload", []byte("not json payload")), allowNext(&called))

	payload, ok := srv.lastInput["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(16), payload["raw_size"])
}

func TestGate_EmptyBodyYieldsEmptyPayload(t *testing.T) {
	srv := newEvaluatorServer(t, true)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	var called bool
	g.Assess(policyContext("GET", "/api/data", nil), allowNext(&called))

	payload, ok := srv.lastInput["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, payload)
}

func TestGate_MissingIntentYieldsEmptyDocument(t *testing.T) {
	srv := newEvaluatorServer(t, true)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	ctx := pipeline.NewTestContext("GET", "/api/data", "172.18.0.5", http.Header{}, nil)
	var called bool
	g.Assess(ctx, allowNext(&called))

	intentDoc, ok := srv.lastInput["intent"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, intentDoc)
}

func TestGate_BodyStaysReadableDownstream(t *testing.T) {
	srv := newEvaluatorServer(t, true)
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	body := []byte(`{"k":"v"}`)
	ctx := policyContext("POST", "/api/data", body)

	var downstream []byte
	g.Assess(ctx, func() core.Verdict {
		downstream, _ = ctx.Body()
		return core.Allow("test")
	})

	assert.Equal(t, body, downstream)
}

func TestGate_BypassPathsSkipEvaluator(t *testing.T) {
	srv := newEvaluatorServer(t, false) // would block if consulted
	defer srv.Close()
	g := NewGate(NewEvaluatorClient(srv.URL))

	for _, path := range []string{"/health", "/api/v1/stats", "/api/v1/health", "/dashboard"} {
		ctx := pipeline.NewTestContext("GET", path, "172.18.0.5", http.Header{}, nil)
		var called bool
		v := g.Assess(ctx, allowNext(&called))
		assert.True(t, called, path)
		assert.Equal(t, core.StatusAllow, v.Status, path)
	}
	assert.Zero(t, srv.calls)
}
