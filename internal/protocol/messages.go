package protocol

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientSubmit      MessageType = "client_submit"
	TypeClientControl     MessageType = "client_control"
	TypeTurnRendered      MessageType = "turn_rendered"
	TypeBusyState         MessageType = "busy_state"
	TypeTranscriptCleared MessageType = "transcript_cleared"
	TypeSystemEvent       MessageType = "system_event"
	TypeErrorEvent        MessageType = "error_event"
)

const ActionClear = "clear"

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientSubmit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type TurnRendered struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
	HTML      string      `json:"html"`
	Replay    bool        `json:"replay,omitempty"`
}

type BusyState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Busy      bool        `json:"busy"`
}

type TranscriptCleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates a client envelope. Submit text is
// passed through untrimmed; empty-after-trim handling belongs to the caller.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "invalid envelope")
	}

	switch env.Type {
	case TypeClientSubmit:
		var msg ClientSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decode client_submit")
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_submit")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decode client_control")
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
