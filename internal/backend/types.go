package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is a row identifier that the backend may return either as a JSON
// number or as a string, depending on the column type and the query shape.
// It always normalizes to the string form so identifiers compare reliably.
type FlexID string

// UnmarshalJSON accepts both `"42"` and `42`.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// MarshalJSON emits the string form.
func (id FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id FlexID) String() string { return string(id) }

// CoerceID normalizes an arbitrary decoded identifier value to its string
// form, mirroring FlexID for values that arrive as `any`.
func CoerceID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// Round-trip through a precise formatter so 42.0 prints as "42".
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
