package taskqueue

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// Context trees are maps/slices of basic types; gob needs the container
	// kinds registered to move them through interface fields.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// encodeInput gob-encodes a task's context snapshot for durable queues.
func encodeInput(input map[string]any) ([]byte, error) {
	if input == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(input); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeInput(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var input map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&input); err != nil {
		return nil, err
	}
	return input, nil
}
