package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/circuitbreaker"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// ErrUnavailable marks a model endpoint that could not be reached or
// answered non-200; ErrBadOutput marks a reply whose JSON is invalid or
// missing required fields. Both fail closed, but only the former is a
// dependency outage (503).
var (
	ErrUnavailable = errors.New("judge: model unavailable")
	ErrBadOutput   = errors.New("judge: invalid model output")
)

// ModelClient calls the external text-generation endpoint in JSON mode
// with a hard 5 s budget. A circuit breaker short-circuits calls while
// the endpoint is known to be down; open-circuit failures surface as
// ErrUnavailable, same as any other outage.
type ModelClient struct {
	url     string
	model   string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

func NewModelClient(url, model string) *ModelClient {
	return &ModelClient{
		url:     url,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: circuitbreaker.New("judge-model", 5, 30*time.Second),
	}
}

const promptTemplate = `You are a security judge.
JUSTIFICATION: %q
EVIDENCE: %q
QUESTION: Does the EVIDENCE support the JUSTIFICATION?
Respond valid JSON: { "verdict": boolean, "confidence": float, "reason": string }`

// Evaluate asks the model whether the evidence entails the justification.
// The returned judgement is raw: the skeptical override is the gate's job.
func (c *ModelClient) Evaluate(ctx context.Context, justification, evidence string) (core.Judgement, error) {
	if err := c.breaker.Allow(); err != nil {
		return core.Judgement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pipeline.ModelCalls.Inc()

	body, err := json.Marshal(map[string]interface{}{
		"model":  c.model,
		"prompt": fmt.Sprintf(promptTemplate, justification, evidence),
		"format": "json",
		"stream": false,
	})
	if err != nil {
		return core.Judgement{}, fmt.Errorf("encode model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return core.Judgement{}, fmt.Errorf("build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.Failure()
		return core.Judgement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.Failure()
		return core.Judgement{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// The breaker tracks availability only; a reachable endpoint talking
	// nonsense is a content problem, not an outage.
	c.breaker.Success()

	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return core.Judgement{}, fmt.Errorf("%w: envelope: %v", ErrBadOutput, err)
	}

	// Verdict and confidence are required; a reply without them is not a
	// judgement and must not be trusted.
	var decision struct {
		Verdict    *bool    `json:"verdict"`
		Confidence *float64 `json:"confidence"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(envelope.Response), &decision); err != nil {
		return core.Judgement{}, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	if decision.Verdict == nil || decision.Confidence == nil {
		return core.Judgement{}, fmt.Errorf("%w: missing verdict or confidence", ErrBadOutput)
	}

	reason := decision.Reason
	if reason == "" {
		reason = "Unknown"
	}
	return core.Judgement{
		Verdict:    *decision.Verdict,
		Confidence: *decision.Confidence,
		Reason:     reason,
	}, nil
}
