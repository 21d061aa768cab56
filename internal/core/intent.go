package core

// IntentDeclaration is the agent's self-description of the request it is
// about to make. It travels JSON-encoded in the X-Veil-Intent header and
// is validated by the intent gate before anything else trusts it.
type IntentDeclaration struct {
	Goal          string    `json:"goal"`
	Action        string    `json:"action"` // "METHOD /path", no query string
	Justification string    `json:"justification"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Nonce         string    `json:"nonce"` // UUID, single-use within the TTL window
	Timestamp     int64     `json:"timestamp"`
}
