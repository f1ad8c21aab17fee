package clientws

import (
    "sync/atomic"
    "time"
)

// Client to server message types.
const (
    TypeClientHello       = "client_hello"
    TypeListenStart       = "listen_start"
    TypeListenStop        = "listen_stop"
    TypeRecognitionStart  = "recognition_start"
    TypeRecognitionResult = "recognition_result"
    TypeRecognitionError  = "recognition_error"
    TypeRecognitionEnd    = "recognition_end"
    TypeSynthesisStart    = "synthesis_start"
    TypeSynthesisEnd      = "synthesis_end"
    TypeSynthesisError    = "synthesis_error"
    TypeSpeakStop         = "speak_stop"
    TypeUISettled         = "ui_settled"
)

// Server to client message types.
const (
    TypeRecognizeStart = "recognize_start"
    TypeRecognizeStop  = "recognize_stop"
    TypeSpeak          = "speak"
    TypeSpeakCancel    = "speak_cancel"
    TypeState          = "state"
    TypeNotice         = "notice"
)

type Message struct {
    Type        string         `json:"type"`
    TsMs        int64          `json:"ts_ms"`
    SessionID   string         `json:"session_id"`
    Seq         int64          `json:"seq"`
    CommandID   string         `json:"command_id,omitempty"`
    UtteranceID string         `json:"utterance_id,omitempty"`
    Payload     map[string]any `json:"payload,omitempty"`
}

var seq atomic.Int64

// NewMessage stamps an outgoing message with time and sequence number.
func NewMessage(sessionID, typ string, payload map[string]any) Message {
    return Message{
        Type:      typ,
        TsMs:      time.Now().UnixMilli(),
        SessionID: sessionID,
        Seq:       seq.Add(1),
        Payload:   payload,
    }
}

// Str returns payload[key] if it is a string.
func (m Message) Str(key string) string {
    if m.Payload == nil {
        return ""
    }
    s, _ := m.Payload[key].(string)
    return s
}

// Bool returns payload[key] if it is a bool.
func (m Message) Bool(key string) bool {
    if m.Payload == nil {
        return false
    }
    b, _ := m.Payload[key].(bool)
    return b
}

// Uint returns payload[key] as a non-negative integer. JSON numbers arrive as float64.
func (m Message) Uint(key string) uint64 {
    if m.Payload == nil {
        return 0
    }
    switch v := m.Payload[key].(type) {
    case float64:
        if v > 0 {
            return uint64(v)
        }
    case int:
        if v > 0 {
            return uint64(v)
        }
    case uint64:
        return v
    }
    return 0
}
