package models

import (
	"bytes"
	"encoding/json"
)

// LooseID is an identifier the guide service sends sometimes as a JSON number
// and sometimes as a string. The literal as received is kept so it round-trips
// unchanged into our documents.
type LooseID json.RawMessage

// String returns the identifier without JSON quoting; "" for null or absent.
func (id LooseID) String() string {
	raw := bytes.TrimSpace(id)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// Valid reports whether a value was sent at all (absent and null are not).
func (id LooseID) Valid() bool {
	raw := bytes.TrimSpace(id)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func (id LooseID) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(id)) == 0 {
		return []byte("null"), nil
	}
	return id, nil
}

func (id *LooseID) UnmarshalJSON(b []byte) error {
	*id = append((*id)[:0], b...)
	return nil
}
