package loop

import (
    "context"
    "errors"
    "sync"
    "time"

    "codetutor/voicedebug/internal/clientws"
    "codetutor/voicedebug/internal/floor"
    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/speech"
    "codetutor/voicedebug/internal/types"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

var ErrUnknownSession = errors.New("unknown session")

// EventLog is the per-session event history.
type EventLog interface {
    AppendEvent(sessionID, typ string, payload map[string]any) types.Event
    ListEvents(sessionID string) []types.Event
    DropEvents(sessionID string)
}

type Options struct {
    Locale       string
    Pitch        float64
    Volume       float64
    AwaitSettle  bool
    SpeakTimeout time.Duration
}

// Dispatcher owns the live debugging sessions. For each one it wires the
// voice client to the speech controllers, the controllers to the floor, and
// the orchestrator outbox to the speech output.
type Dispatcher struct {
    analyzer orchestrator.Analyzer
    records  orchestrator.SessionStore
    profiles orchestrator.ProfileStore
    events   EventLog
    out      clientws.Sender
    opts     Options
    log      zerolog.Logger

    mu       sync.Mutex
    sessions map[string]*sessState
}

type sessState struct {
    id        string
    userID    string
    createdAt time.Time
    orch      *orchestrator.Orchestrator
    in        *speech.InputController
    out       *speech.OutputController
    pumpDone  chan struct{}

    mu           sync.Mutex
    fsm          *floor.Manager
    capability   speech.VoiceCapability
    connected    bool
    speakStarted time.Time
}

func New(an orchestrator.Analyzer, records orchestrator.SessionStore, profiles orchestrator.ProfileStore,
    events EventLog, out clientws.Sender, opts Options, log zerolog.Logger) *Dispatcher {
    return &Dispatcher{
        analyzer: an,
        records:  records,
        profiles: profiles,
        events:   events,
        out:      out,
        opts:     opts,
        log:      log,
        sessions: make(map[string]*sessState),
    }
}

// Open creates a debugging session for userID and loads its profile.
func (d *Dispatcher) Open(ctx context.Context, userID string) (string, error) {
    id := uuid.New().String()
    log := d.log.With().Str("session_id", id).Logger()
    orch := orchestrator.New(d.analyzer, d.records, d.profiles, d, orchestrator.Options{
        SessionID:   id,
        UserID:      userID,
        AwaitSettle: d.opts.AwaitSettle,
        Log:         log,
    })
    if err := orch.Start(ctx); err != nil {
        orch.Close()
        return "", err
    }

    s := &sessState{
        id:        id,
        userID:    userID,
        createdAt: time.Now().UTC(),
        orch:      orch,
        fsm:       floor.New(),
        pumpDone:  make(chan struct{}),
    }
    s.in = speech.NewInputController(&clientws.Recognizer{SessionID: id, Out: d.out}, d.opts.Locale, log)
    s.out = speech.NewOutputController(&clientws.Synthesizer{SessionID: id, Out: d.out}, orch.Snapshot().Preferences, log)
    if d.opts.Pitch > 0 && d.opts.Volume > 0 {
        s.out.SetTone(d.opts.Pitch, d.opts.Volume)
    }

    s.in.OnTranscript(func(tr speech.Transcript) {
        d.events.AppendEvent(id, "transcript", map[string]any{"capture_id": tr.CaptureID, "text": tr.Text})
        if err := orch.HandleTranscript(context.Background(), tr.Text); err != nil {
            log.Debug().Err(err).Msg("transcript not applied")
        }
    })
    s.in.OnListeningChanged(func(listening bool, captureID string) {
        s.mu.Lock()
        if listening {
            s.fsm.OnListenStarted(captureID)
        } else {
            s.fsm.OnListenStopped(captureID)
        }
        s.mu.Unlock()
        d.sendVoiceState(s)
    })
    s.out.OnSpeakingChanged(func(speaking bool, utteranceID string) {
        s.mu.Lock()
        if speaking {
            s.fsm.OnSpeakStarted(utteranceID)
            s.speakStarted = time.Now()
        } else {
            s.fsm.OnSpeakStopped(utteranceID)
            s.speakStarted = time.Time{}
        }
        s.mu.Unlock()
        d.sendVoiceState(s)
    })

    d.mu.Lock()
    d.sessions[id] = s
    n := len(d.sessions)
    d.mu.Unlock()
    metricSessionsOpen.Set(float64(n))

    go d.pump(s)
    d.events.AppendEvent(id, "session_opened", map[string]any{"user_id": userID})
    log.Info().Str("user_id", userID).Msg("debugging session opened")
    return id, nil
}

// pump forwards narrations from the orchestrator outbox to the speech output.
func (d *Dispatcher) pump(s *sessState) {
    defer close(s.pumpDone)
    for n := range s.orch.Narrations() {
        d.events.AppendEvent(s.id, "narration", map[string]any{"revision": n.Revision})
        if err := d.speak(s, n.Text); err != nil {
            d.Notify(s.id, orchestrator.Notice{Code: orchestrator.NoticeEngineError, Message: "Could not start speech playback."})
        }
    }
}

// speak takes the floor for an utterance, stopping any capture first. A
// request the output would ignore leaves the capture running.
func (d *Dispatcher) speak(s *sessState, text string) error {
    if !s.out.CanSpeak(text) {
        return s.out.Speak(context.Background(), text)
    }
    s.mu.Lock()
    dec := s.fsm.OnSpeakRequested()
    s.mu.Unlock()
    if dec.StopListening {
        metricFloorPreemptions.WithLabelValues(dec.Reason).Inc()
        d.events.AppendEvent(s.id, "floor_preempted", map[string]any{"reason": dec.Reason, "capture_id": dec.StopCaptureID})
        s.in.StopListening()
    }
    return s.out.Speak(context.Background(), text)
}

// listen takes the floor for a capture, cancelling speech first. A rejected
// capture leaves playback alone.
func (d *Dispatcher) listen(ctx context.Context, s *sessState) error {
    var dec floor.Decision
    if s.in.CanListen() {
        s.mu.Lock()
        dec = s.fsm.OnListenRequested()
        s.mu.Unlock()
    }
    if dec.StopSpeaking {
        metricFloorPreemptions.WithLabelValues(dec.Reason).Inc()
        d.events.AppendEvent(s.id, "floor_preempted", map[string]any{"reason": dec.Reason, "utterance_id": dec.StopUtteranceID})
        s.out.StopSpeaking()
    }
    err := s.in.StartListening(ctx)
    switch {
    case err == nil:
    case errors.Is(err, speech.ErrUnavailable):
        d.Notify(s.id, orchestrator.Notice{Code: orchestrator.NoticeCapabilityUnavailable, Message: "Speech recognition is not available."})
    case errors.Is(err, speech.ErrBusy):
        d.Notify(s.id, orchestrator.Notice{Code: orchestrator.NoticeBusy, Message: "Already listening."})
    default:
        d.Notify(s.id, orchestrator.Notice{Code: orchestrator.NoticeEngineError, Message: "Could not start speech recognition."})
    }
    return err
}

// Listen starts a capture for the session.
func (d *Dispatcher) Listen(ctx context.Context, sessionID string) error {
    s := d.state(sessionID)
    if s == nil {
        return ErrUnknownSession
    }
    return d.listen(ctx, s)
}

// StopListening ends the session's capture.
func (d *Dispatcher) StopListening(sessionID string) error {
    s := d.state(sessionID)
    if s == nil {
        return ErrUnknownSession
    }
    s.in.StopListening()
    return nil
}

// StopSpeaking cancels the session's utterance.
func (d *Dispatcher) StopSpeaking(sessionID string) error {
    s := d.state(sessionID)
    if s == nil {
        return ErrUnknownSession
    }
    s.out.StopSpeaking()
    return nil
}

func (d *Dispatcher) state(sessionID string) *sessState {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.sessions[sessionID]
}

// Orchestrator returns the session's orchestrator.
func (d *Dispatcher) Orchestrator(sessionID string) (*orchestrator.Orchestrator, error) {
    s := d.state(sessionID)
    if s == nil {
        return nil, ErrUnknownSession
    }
    return s.orch, nil
}

// View is the API rendering of a live session.
type View struct {
    orchestrator.Snapshot
    Listening       bool                   `json:"listening"`
    Speaking        bool                   `json:"speaking"`
    Capability      speech.VoiceCapability `json:"capability"`
    ClientConnected bool                   `json:"client_connected"`
    CreatedAt       time.Time              `json:"created_at"`
}

func (d *Dispatcher) View(sessionID string) (View, error) {
    s := d.state(sessionID)
    if s == nil {
        return View{}, ErrUnknownSession
    }
    s.mu.Lock()
    capability, connected := s.capability, s.connected
    s.mu.Unlock()
    return View{
        Snapshot:        s.orch.Snapshot(),
        Listening:       s.in.State() == speech.Listening,
        Speaking:        s.out.State() == speech.Speaking,
        Capability:      capability,
        ClientConnected: connected,
        CreatedAt:       s.createdAt,
    }, nil
}

// Events returns the session's event log.
func (d *Dispatcher) Events(sessionID string) ([]types.Event, error) {
    if d.state(sessionID) == nil {
        return nil, ErrUnknownSession
    }
    return d.events.ListEvents(sessionID), nil
}

// RefreshPreferences reloads the profile of every open session of userID.
func (d *Dispatcher) RefreshPreferences(ctx context.Context, userID string) {
    d.mu.Lock()
    var mine []*sessState
    for _, s := range d.sessions {
        if s.userID == userID {
            mine = append(mine, s)
        }
    }
    d.mu.Unlock()
    for _, s := range mine {
        prefs, err := s.orch.RefreshProfile(ctx)
        if err != nil {
            d.log.Warn().Err(err).Str("session_id", s.id).Msg("refresh profile")
            continue
        }
        s.out.SetPreferences(prefs)
    }
}

// Close stops the session's voice resources and its orchestrator.
func (d *Dispatcher) Close(sessionID string) error {
    d.mu.Lock()
    s := d.sessions[sessionID]
    delete(d.sessions, sessionID)
    n := len(d.sessions)
    d.mu.Unlock()
    if s == nil {
        return ErrUnknownSession
    }
    metricSessionsOpen.Set(float64(n))
    s.in.StopListening()
    s.out.StopSpeaking()
    s.orch.Close()
    <-s.pumpDone
    if c, ok := d.out.(interface{ Close(sessionID, reason string) }); ok {
        c.Close(sessionID, "session closed")
    }
    d.events.DropEvents(sessionID)
    d.log.Info().Str("session_id", sessionID).Msg("debugging session closed")
    return nil
}

// CloseAll closes every open session; used at shutdown.
func (d *Dispatcher) CloseAll() {
    d.mu.Lock()
    ids := make([]string, 0, len(d.sessions))
    for id := range d.sessions {
        ids = append(ids, id)
    }
    d.mu.Unlock()
    for _, id := range ids {
        _ = d.Close(id)
    }
}

// Notify implements orchestrator.EventSink.
func (d *Dispatcher) Notify(sessionID string, n orchestrator.Notice) {
    d.events.AppendEvent(sessionID, "notice", map[string]any{"code": n.Code, "message": n.Message})
    d.send(sessionID, clientws.NewMessage(sessionID, clientws.TypeNotice, map[string]any{"code": n.Code, "message": n.Message}))
}

// Publish implements orchestrator.EventSink.
func (d *Dispatcher) Publish(sessionID, eventType string, payload map[string]any) {
    d.events.AppendEvent(sessionID, eventType, payload)
    body := map[string]any{"event": eventType}
    for k, v := range payload {
        body[k] = v
    }
    d.send(sessionID, clientws.NewMessage(sessionID, clientws.TypeState, body))
}

func (d *Dispatcher) sendVoiceState(s *sessState) {
    d.send(s.id, clientws.NewMessage(s.id, clientws.TypeState, map[string]any{
        "event":     "voice",
        "listening": s.in.State() == speech.Listening,
        "speaking":  s.out.State() == speech.Speaking,
    }))
}

// send is best-effort; a missing client is not an error.
func (d *Dispatcher) send(sessionID string, msg clientws.Message) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := d.out.SendJSON(ctx, sessionID, msg); err != nil && !errors.Is(err, clientws.ErrNoClient) {
        d.log.Debug().Err(err).Str("session_id", sessionID).Str("type", msg.Type).Msg("send to client failed")
    }
}
