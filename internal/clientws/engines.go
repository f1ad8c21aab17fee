package clientws

import (
    "context"
    "time"

    "codetutor/voicedebug/internal/speech"
)

const sendTimeout = 5 * time.Second

// Sender delivers a message to a session's voice client.
type Sender interface {
    SendJSON(ctx context.Context, sessionID string, v any) error
}

// Recognizer drives the browser speech recognizer of one session.
type Recognizer struct {
    SessionID string
    Out       Sender
}

func (r *Recognizer) Start(ctx context.Context, opts speech.RecognitionOptions) error {
    msg := NewMessage(r.SessionID, TypeRecognizeStart, map[string]any{
        "capture_id": opts.CaptureID,
        "locale":     opts.Locale,
        "continuous": opts.Continuous,
        "interim":    opts.Interim,
    })
    msg.CommandID = opts.CaptureID
    return send(ctx, r.Out, r.SessionID, msg)
}

func (r *Recognizer) Stop(captureID string) error {
    msg := NewMessage(r.SessionID, TypeRecognizeStop, map[string]any{"capture_id": captureID})
    msg.CommandID = captureID
    return send(context.Background(), r.Out, r.SessionID, msg)
}

// Synthesizer drives the browser speech synthesizer of one session.
type Synthesizer struct {
    SessionID string
    Out       Sender
}

func (s *Synthesizer) Speak(ctx context.Context, req speech.UtteranceRequest) error {
    msg := NewMessage(s.SessionID, TypeSpeak, map[string]any{
        "text":   req.Text,
        "rate":   req.Rate,
        "pitch":  req.Pitch,
        "volume": req.Volume,
    })
    msg.UtteranceID = req.ID
    return send(ctx, s.Out, s.SessionID, msg)
}

func (s *Synthesizer) Cancel() error {
    return send(context.Background(), s.Out, s.SessionID, NewMessage(s.SessionID, TypeSpeakCancel, nil))
}

func send(ctx context.Context, out Sender, sessionID string, msg Message) error {
    ctx, cancel := context.WithTimeout(ctx, sendTimeout)
    defer cancel()
    return out.SendJSON(ctx, sessionID, msg)
}
