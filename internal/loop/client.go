package loop

import (
    "context"
    "time"

    "codetutor/voicedebug/internal/clientws"
    "codetutor/voicedebug/internal/floor"
    "codetutor/voicedebug/internal/speech"
)

// Exists implements clientws.Router.
func (d *Dispatcher) Exists(sessionID string) bool {
    return d.state(sessionID) != nil
}

// OnConnect implements clientws.Router.
func (d *Dispatcher) OnConnect(sessionID string) {
    s := d.state(sessionID)
    if s == nil {
        return
    }
    s.mu.Lock()
    s.connected = true
    s.mu.Unlock()
    snap := s.orch.Snapshot()
    d.send(sessionID, clientws.NewMessage(sessionID, clientws.TypeState, map[string]any{
        "event":           "draft",
        "state":           snap.State,
        "language":        string(snap.Language),
        "code":            snap.Code,
        "has_explanation": snap.Explanation != nil,
        "revision":        snap.Revision,
    }))
}

// OnDisconnect implements clientws.Router. Without a client there are no engines.
func (d *Dispatcher) OnDisconnect(sessionID string) {
    s := d.state(sessionID)
    if s == nil {
        return
    }
    s.mu.Lock()
    s.connected = false
    s.capability = speech.VoiceCapability{}
    s.mu.Unlock()
    s.in.SetAvailable(false)
    s.out.SetAvailable(false)
}

// OnMessage processes a voice client message and may send commands back.
func (d *Dispatcher) OnMessage(sessionID string, msg clientws.Message) {
    s := d.state(sessionID)
    if s == nil {
        return
    }
    d.events.AppendEvent(sessionID, "client_"+msg.Type, eventPayload(msg))

    switch msg.Type {
    case clientws.TypeClientHello:
        capability := speech.VoiceCapability{
            RecognitionAvailable: msg.Bool("recognition"),
            SynthesisAvailable:   msg.Bool("synthesis"),
        }
        // Engines start idle after a hello; drop whatever we thought was running
        s.in.SetAvailable(false)
        s.out.SetAvailable(false)
        s.mu.Lock()
        s.capability = capability
        s.fsm = floor.New()
        s.speakStarted = time.Time{}
        s.mu.Unlock()
        s.in.SetAvailable(capability.RecognitionAvailable)
        s.out.SetAvailable(capability.SynthesisAvailable)
        d.sendVoiceState(s)
    case clientws.TypeListenStart:
        _ = d.listen(context.Background(), s)
    case clientws.TypeListenStop:
        s.in.StopListening()
    case clientws.TypeRecognitionStart:
        s.in.OnStart(msg.Str("capture_id"))
    case clientws.TypeRecognitionResult:
        s.in.OnResult(msg.Str("capture_id"), msg.Str("transcript"))
    case clientws.TypeRecognitionError:
        s.in.OnError(msg.Str("capture_id"), msg.Str("error"))
    case clientws.TypeRecognitionEnd:
        s.in.OnEnd(msg.Str("capture_id"))
    case clientws.TypeSynthesisStart:
        s.out.OnStart(msg.UtteranceID)
    case clientws.TypeSynthesisEnd:
        s.out.OnEnd(msg.UtteranceID)
    case clientws.TypeSynthesisError:
        s.out.OnError(msg.UtteranceID, msg.Str("error"))
    case clientws.TypeSpeakStop:
        s.out.StopSpeaking()
    case clientws.TypeUISettled:
        s.orch.Settled(msg.Uint("revision"))
    }

    d.checkSpeakTimeout(s)
}

// checkSpeakTimeout resets a speaking state the client never ended.
func (d *Dispatcher) checkSpeakTimeout(s *sessState) {
    if d.opts.SpeakTimeout <= 0 {
        return
    }
    s.mu.Lock()
    expired := !s.speakStarted.IsZero() && time.Since(s.speakStarted) > d.opts.SpeakTimeout
    s.mu.Unlock()
    if !expired {
        return
    }
    metricSpeakTimeouts.Inc()
    d.events.AppendEvent(s.id, "speak_timeout_reset", nil)
    s.out.StopSpeaking()
}

func eventPayload(msg clientws.Message) map[string]any {
    payload := make(map[string]any, len(msg.Payload)+4)
    for k, v := range msg.Payload {
        payload[k] = v
    }
    payload["ts_ms"] = msg.TsMs
    payload["seq"] = msg.Seq
    if msg.CommandID != "" {
        payload["command_id"] = msg.CommandID
    }
    if msg.UtteranceID != "" {
        payload["utterance_id"] = msg.UtteranceID
    }
    return payload
}
