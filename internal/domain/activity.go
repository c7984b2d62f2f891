package domain

import (
	"encoding/json"
	"slices"

	"github.com/pkg/errors"
)

// ActivityEntry is one line of an identity's activity log. Raw holds the
// whole JSON object as it is stored, including fields the server never reads.
type ActivityEntry struct {
	Type      string
	Timestamp int64
	Raw       json.RawMessage
}

func (e ActivityEntry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) == 0 {
		return []byte("null"), nil
	}
	return e.Raw, nil
}

// NewActivityEntry stamps fields with timestamp and encodes them as a single
// line. fields must carry a string "type".
func NewActivityEntry(fields map[string]json.RawMessage, timestamp int64) (ActivityEntry, error) {
	rawType, ok := fields["type"]
	if !ok {
		return ActivityEntry{}, InvalidRequestError{Field: "type"}
	}
	var entryType string
	if err := json.Unmarshal(rawType, &entryType); err != nil {
		return ActivityEntry{}, InvalidRequestError{Field: "type", Reason: "must be a string"}
	}

	stamped := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		stamped[k] = v
	}
	ts, err := json.Marshal(timestamp)
	if err != nil {
		return ActivityEntry{}, err
	}
	stamped["timestamp"] = ts

	raw, err := json.Marshal(stamped)
	if err != nil {
		return ActivityEntry{}, errors.Wrap(err, "failed to encode activity entry")
	}

	return ActivityEntry{
		Type:      entryType,
		Timestamp: timestamp,
		Raw:       raw,
	}, nil
}

// ParseActivityEntry decodes a stored log line.
func ParseActivityEntry(line []byte) (ActivityEntry, error) {
	var head struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return ActivityEntry{}, err
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return ActivityEntry{
		Type:      head.Type,
		Timestamp: head.Timestamp,
		Raw:       raw,
	}, nil
}

// Field returns the raw value of a top-level field of the entry.
func (e ActivityEntry) Field(name string) (json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Raw, &fields); err != nil {
		return nil, false
	}
	v, ok := fields[name]
	return v, ok
}

// TypeIn builds a predicate matching entries of the given types.
func TypeIn(types ...string) func(ActivityEntry) bool {
	return func(e ActivityEntry) bool {
		return slices.Contains(types, e.Type)
	}
}
