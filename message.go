package lexmcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidBatch is returned by DecodeBatch when the body is neither a JSON object
// nor a JSON array of objects.
var ErrInvalidBatch = errors.New("body must be a JSON-RPC message or an array of messages")

// DecodeBatch decodes a raw HTTP body into an ordered batch of JSON-RPC messages.
// The body may be a single object or an array of objects; anything else is a framing
// error. An empty array decodes to an empty batch, which callers reject separately.
func DecodeBatch(data []byte) ([]JSONRPCMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrInvalidBatch
	}

	switch trimmed[0] {
	case '{':
		var msg JSONRPCMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		return []JSONRPCMessage{msg}, nil
	case '[':
		var msgs []JSONRPCMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode batch: %w", err)
		}
		return msgs, nil
	default:
		return nil, ErrInvalidBatch
	}
}

// Partition splits a batch into the three disjoint ordered sequences of the protocol.
// Classification is structural only: a message with a method and an id is a request, a
// message with a method and no id is a notification, and anything else is treated as a
// response. Every input message lands in exactly one sequence, in its original order.
func Partition(msgs []JSONRPCMessage) (requests, notifications, responses []JSONRPCMessage) {
	for _, msg := range msgs {
		switch {
		case msg.Method != "" && msg.ID != "":
			requests = append(requests, msg)
		case msg.Method != "":
			notifications = append(notifications, msg)
		default:
			responses = append(responses, msg)
		}
	}
	return requests, notifications, responses
}

// IsInitialize reports whether msg is the handshake request.
func IsInitialize(msg JSONRPCMessage) bool {
	return msg.Method == MethodInitialize
}
