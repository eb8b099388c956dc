package payment

import (
	"bytes"
	"encoding/json"
	"math"
)

// ParseAmount decodes a JSON amount in minor units. Only positive integral
// numbers are accepted; strings, booleans, null and fractions are rejected.
func ParseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || raw[0] == '{' || raw[0] == '[' {
		return 0, invalidAmount()
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		// null, true and false land here
		return 0, invalidAmount()
	}
	if v, err := n.Int64(); err == nil {
		if v <= 0 {
			return 0, invalidAmount()
		}
		return v, nil
	}
	// 1e3 or 100.0 are integral even though they are not written as integers
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || f <= 0 || f >= math.MaxInt64 {
		return 0, invalidAmount()
	}
	return int64(f), nil
}
