package monster

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the raw JSON result payload of a completed job.
type Result json.RawMessage

// MarshalJSON returns r as is, or null when empty.
func (r Result) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of data.
func (r *Result) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("monster.Result: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	if len(r) == 0 {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(r, v)
}

// Output returns the generated content. Text models report it under "output"
// or "text", either as a string or a list of strings. Other values are
// returned as JSON.
func (r Result) Output() string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r, &fields); err != nil {
		return ""
	}

	for _, key := range []string{"output", "text"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}

		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			return strings.Join(list, "\n")
		}

		return string(raw)
	}

	return ""
}
