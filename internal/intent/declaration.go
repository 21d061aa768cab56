// Package intent enforces cognitive accountability: every request must be
// preceded by a declaration of what the agent is doing and why, and the
// declaration must match reality.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

// HeaderName carries the JSON-encoded declaration.
const HeaderName = "X-Veil-Intent"

// ErrInvalidJSON marks a declaration that is not parseable JSON at all;
// ErrSchema marks valid JSON that violates the strict declaration schema.
// The two produce different block reasons.
var (
	ErrInvalidJSON = errors.New("intent: invalid JSON")
	ErrSchema      = errors.New("intent: schema violation")
)

// ParseDeclaration decodes and validates the X-Veil-Intent header value.
// The schema is strict: all required fields present, risk_level a lowercase
// enum, the nonce UUID-shaped, and no unknown fields.
func ParseDeclaration(raw string) (*core.IntentDeclaration, error) {
	if !json.Valid([]byte(raw)) {
		return nil, ErrInvalidJSON
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var d core.IntentDeclaration
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	switch {
	case d.Goal == "":
		return nil, fmt.Errorf("%w: goal is required", ErrSchema)
	case d.Action == "":
		return nil, fmt.Errorf("%w: action is required", ErrSchema)
	case d.Justification == "":
		return nil, fmt.Errorf("%w: justification is required", ErrSchema)
	case !d.RiskLevel.Valid():
		return nil, fmt.Errorf("%w: risk_level must be low, medium or high", ErrSchema)
	case d.Nonce == "":
		return nil, fmt.Errorf("%w: nonce is required", ErrSchema)
	}

	if _, err := uuid.Parse(d.Nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce must be a UUID", ErrSchema)
	}

	return &d, nil
}
