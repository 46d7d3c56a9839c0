package wire

import (
	"encoding/json"
	"fmt"
)

// Frame type tags. Every frame on the wire is a JSON array whose first
// element is one of these.
const (
	msgWelcome     = 0
	msgPrefix      = 1
	msgCall        = 2
	msgCallResult  = 3
	msgCallError   = 4
	msgSubscribe   = 5
	msgUnsubscribe = 6
	msgPublish     = 7
	msgEvent       = 8
)

// protocolVersion is the protocol revision this client speaks. The server
// advertises its version in the welcome frame; a mismatch is fatal.
const protocolVersion = 1

// frame is a decoded wire frame: the numeric type tag plus the remaining
// elements, left raw for the caller to interpret per tag.
type frame struct {
	typ  int
	rest []json.RawMessage
}

func decodeFrame(data []byte) (frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return frame{}, fmt.Errorf("wire: malformed frame: %w", err)
	}
	if len(parts) == 0 {
		return frame{}, fmt.Errorf("wire: empty frame")
	}
	var typ int
	if err := json.Unmarshal(parts[0], &typ); err != nil {
		return frame{}, fmt.Errorf("wire: non-numeric frame type: %w", err)
	}
	return frame{typ: typ, rest: parts[1:]}, nil
}

// str decodes element i of the frame body as a string.
func (f frame) str(i int) (string, error) {
	if i >= len(f.rest) {
		return "", fmt.Errorf("wire: frame type %d: missing element %d", f.typ, i)
	}
	var s string
	if err := json.Unmarshal(f.rest[i], &s); err != nil {
		return "", fmt.Errorf("wire: frame type %d: element %d: %w", f.typ, i, err)
	}
	return s, nil
}

// raw returns element i of the frame body, or null when absent. Result
// frames for void procedures may omit the payload entirely.
func (f frame) raw(i int) json.RawMessage {
	if i >= len(f.rest) {
		return json.RawMessage("null")
	}
	return f.rest[i]
}

func encodeFrame(typ int, elems ...any) ([]byte, error) {
	arr := make([]any, 0, len(elems)+1)
	arr = append(arr, typ)
	arr = append(arr, elems...)
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("wire: encode frame type %d: %w", typ, err)
	}
	return data, nil
}
