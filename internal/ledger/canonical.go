package ledger

import "encoding/json"

// CanonicalJSON serializes v with lexicographically sorted keys and no
// insignificant whitespace. Every hash and signature in the ledger is
// computed over this form, so recorder and verifier must agree on it.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Round-trip through a generic value: encoding/json emits map keys in
	// sorted order, which normalizes struct field order too.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
