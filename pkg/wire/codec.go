package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned by Decode when the payload is valid JSON but its
// top level is not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Encode encodes a state mapping into the wire representation.
func Encode(state map[string]any) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Decode decodes a wire payload into a state mapping.
// It returns ErrNotObject for payloads like arrays, strings or null: the
// remote peer always sends a full state object, so anything else is a
// malformed message.
func Decode(data []byte) (map[string]any, error) {
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("decode state: %w", ErrNotObject)
		}
		return nil, fmt.Errorf("decode state: %w", err)
	}
	// json decodes the literal "null" into a nil map without error
	if state == nil {
		return nil, fmt.Errorf("decode state: %w", ErrNotObject)
	}
	return state, nil
}
