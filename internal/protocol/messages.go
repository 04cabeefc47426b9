package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeTurnStart       MessageType = "turn_start"
	TypeTextDelta       MessageType = "text_delta"
	TypeSegmentEmitted  MessageType = "segment_emitted"
	TypeRenderDone      MessageType = "render_done"
	TypeRenderFailed    MessageType = "render_failed"
	TypePlaybackStarted MessageType = "playback_started"
	TypeTurnEnd         MessageType = "turn_end"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type TurnStart struct {
	Type         MessageType `json:"type"`
	TurnID       string      `json:"turn_id"`
	Conversation string      `json:"conversation"`
	Input        string      `json:"input"`
	TSMs         int64       `json:"ts_ms"`
}

type TextDelta struct {
	Type      MessageType `json:"type"`
	TurnID    string      `json:"turn_id"`
	TextDelta string      `json:"text_delta"`
}

type SegmentEmitted struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Index  int         `json:"index"`
	Text   string      `json:"text"`
}

type RenderDone struct {
	Type       MessageType `json:"type"`
	TurnID     string      `json:"turn_id"`
	Index      int         `json:"index"`
	OutputPath string      `json:"output_path,omitempty"`
	Skipped    bool        `json:"skipped,omitempty"`
	ElapsedMs  int64       `json:"elapsed_ms"`
}

type RenderFailed struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Index  int         `json:"index"`
	Stage  string      `json:"stage"`
	Detail string      `json:"detail"`
}

type PlaybackStarted struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Index  int         `json:"index"`
}

type TurnEnd struct {
	Type     MessageType `json:"type"`
	TurnID   string      `json:"turn_id"`
	Reason   string      `json:"reason"`
	Segments int         `json:"segments"`
	Text     string      `json:"text"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	TurnID    string      `json:"turn_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// TypeOf returns the MessageType carried by an outbound message value.
func TypeOf(msg any) MessageType {
	switch m := msg.(type) {
	case TurnStart:
		return m.Type
	case TextDelta:
		return m.Type
	case SegmentEmitted:
		return m.Type
	case RenderDone:
		return m.Type
	case RenderFailed:
		return m.Type
	case PlaybackStarted:
		return m.Type
	case TurnEnd:
		return m.Type
	case SystemEvent:
		return m.Type
	case ErrorEvent:
		return m.Type
	default:
		return ""
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
