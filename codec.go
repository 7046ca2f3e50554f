package reqcoord

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the byte form of an Entry used by stores that hold []byte.
type envelope struct {
	V json.RawMessage `json:"v"`
	T int64           `json:"t"`
}

// MarshalEntry encodes an entry as {"v": <value json>, "t": <unix nanos>}.
// Value is encoded with encoding/json unless only Raw is set.
func MarshalEntry(entry Entry) ([]byte, error) {
	raw := json.RawMessage(entry.Raw)
	if entry.Value != nil || raw == nil {
		b, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		raw = b
	}
	return json.Marshal(envelope{V: raw, T: entry.StoredAt.UnixNano()})
}

// UnmarshalEntry decodes the output of MarshalEntry. The result has Raw set
// and Value nil; readers decode Raw into their own type.
func UnmarshalEntry(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("decode cache envelope: %w", err)
	}
	return Entry{Raw: []byte(env.V), StoredAt: time.Unix(0, env.T)}, nil
}
