// Package policy submits each admitted request to the external rule
// evaluator and enforces its binary verdict, failing closed on any doubt.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/circuitbreaker"
)

// ErrEngineResponse marks a reply the evaluator did produce but which is
// unusable (non-2xx status or an unparseable body). Transport failures
// surface as ordinary wrapped errors.
var ErrEngineResponse = errors.New("policy: engine response unusable")

// EvaluatorClient queries the rule evaluator over HTTP with a hard 500 ms
// budget. The evaluator receives {"input": {...}} and answers
// {"result": bool}. A circuit breaker converts repeated failures into
// immediate ones; an open circuit surfaces as a transport error.
type EvaluatorClient struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

func NewEvaluatorClient(url string) *EvaluatorClient {
	return &EvaluatorClient{
		url:     url,
		client:  &http.Client{Timeout: 500 * time.Millisecond},
		breaker: circuitbreaker.New("policy", 5, 15*time.Second),
	}
}

// Evaluate submits the policy input document and returns the evaluator's
// boolean result.
func (c *EvaluatorClient) Evaluate(ctx context.Context, input map[string]interface{}) (bool, error) {
	if err := c.breaker.Allow(); err != nil {
		return false, fmt.Errorf("policy engine: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return false, fmt.Errorf("encode policy input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.Failure()
		return false, fmt.Errorf("policy engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.breaker.Failure()
		return false, fmt.Errorf("%w: status %d", ErrEngineResponse, resp.StatusCode)
	}

	var decision struct {
		Result bool `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		c.breaker.Failure()
		return false, fmt.Errorf("%w: %v", ErrEngineResponse, err)
	}

	c.breaker.Success()
	return decision.Result, nil
}
