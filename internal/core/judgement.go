package core

// Judgement is the semantic judge's conclusion for one
// (justification, evidence) pair. It is what the verdict cache stores.
type Judgement struct {
	Verdict    bool    `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
