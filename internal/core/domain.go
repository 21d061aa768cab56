// Package core holds the shared domain types of the VEIL decision engine.
package core

// VerdictStatus is the binary outcome of an assessment.
type VerdictStatus string

const (
	StatusAllow VerdictStatus = "ALLOW"
	StatusBlock VerdictStatus = "BLOCK"
)

// RiskLevel is the agent's self-assessed risk of the declared action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether the level is one of the three accepted values.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// AssessmentRequest is what the intercepting proxy submits to /v1/assess.
type AssessmentRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Host    string            `json:"host"`
	Headers map[string]string `json:"headers"`
}

// AssessmentResponse is the engine's answer to the proxy.
type AssessmentResponse struct {
	Verdict VerdictStatus `json:"verdict"`
	Reason  string        `json:"reason"`
}

// Verdict is the outcome of one pass through the gate pipeline.
//
// HTTPStatus distinguishes a clean client rejection (403) from a
// dependency failure (503); the proxy treats both as BLOCK but the
// difference is observable and logged.
type Verdict struct {
	Status     VerdictStatus
	Reason     string
	Gate       string
	HTTPStatus int
	LatencyMS  float64
}

// Allowed reports whether the pipeline admitted the request.
func (v Verdict) Allowed() bool {
	return v.Status == StatusAllow
}

// Allow builds an admitting verdict attributed to the given gate.
func Allow(gate string) Verdict {
	return Verdict{Status: StatusAllow, Gate: gate, HTTPStatus: 200}
}

// Block builds a 403 client-rejection verdict.
func Block(gate, reason string) Verdict {
	return Verdict{Status: StatusBlock, Gate: gate, Reason: reason, HTTPStatus: 403}
}

// Unavailable builds a 503 fail-closed verdict for a broken dependency.
func Unavailable(gate, reason string) Verdict {
	return Verdict{Status: StatusBlock, Gate: gate, Reason: reason, HTTPStatus: 503}
}
