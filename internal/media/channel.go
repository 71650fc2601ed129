package media

import (
	"encoding/json"
	"fmt"
)

// ChannelMessage is one message delivered over the native message channel
type ChannelMessage struct {
	Action string         `json:"action"`
	Status *StatusPayload `json:"status,omitempty"`
}

// StatusPayload is the body of a "status" channel message
type StatusPayload struct {
	ID      string  `json:"id"`
	MsgType MsgType `json:"msgType"`
	Value   any     `json:"value"`
}

// DecodeChannelMessage accepts a message as a ChannelMessage, raw JSON or
// a decoded JSON object. Any action other than "status" is ErrUnknownAction.
func DecodeChannelMessage(v any) (ChannelMessage, error) {
	var msg ChannelMessage
	switch m := v.(type) {
	case ChannelMessage:
		msg = m
	case *ChannelMessage:
		if m == nil {
			return msg, fmt.Errorf("empty channel message")
		}
		msg = *m
	case json.RawMessage:
		if err := json.Unmarshal(m, &msg); err != nil {
			return msg, fmt.Errorf("failed to decode channel message: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(m, &msg); err != nil {
			return msg, fmt.Errorf("failed to decode channel message: %w", err)
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return msg, fmt.Errorf("failed to encode channel message: %w", err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return msg, fmt.Errorf("failed to decode channel message: %w", err)
		}
	}

	if msg.Action != "status" {
		return msg, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
	if msg.Status == nil {
		return msg, fmt.Errorf("status message without payload")
	}
	return msg, nil
}
