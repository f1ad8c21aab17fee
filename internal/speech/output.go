package speech

import (
    "context"
    "fmt"
    "strings"
    "sync"

    "codetutor/voicedebug/internal/types"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

// OutputController owns the speaking resource. There is no queue: a new
// utterance cancels the one in progress.
type OutputController struct {
    syn Synthesizer
    log zerolog.Logger

    mu        sync.Mutex
    available bool
    prefs     types.VoicePreferences
    pitch     float64
    volume    float64
    state     SpeakingState
    current   string
    observers []func(speaking bool, utteranceID string)
}

func NewOutputController(syn Synthesizer, prefs types.VoicePreferences, log zerolog.Logger) *OutputController {
    return &OutputController{syn: syn, prefs: prefs, pitch: DefaultPitch, volume: DefaultVolume, log: log}
}

// SetTone fixes the pitch and volume of every later utterance.
func (c *OutputController) SetTone(pitch, volume float64) {
    c.mu.Lock()
    c.pitch, c.volume = pitch, volume
    c.mu.Unlock()
}

// CanSpeak reports whether Speak(text) would start an utterance.
func (c *OutputController) CanSpeak(text string) bool {
    if strings.TrimSpace(text) == "" {
        return false
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.available && c.prefs.VoiceEnabled
}

func (c *OutputController) SetAvailable(ok bool) {
    c.mu.Lock()
    c.available = ok
    var ended string
    if !ok && c.state == Speaking {
        ended = c.current
        c.state = SpeakingIdle
        c.current = ""
    }
    c.mu.Unlock()
    if ended != "" {
        c.notify(false, ended)
    }
}

func (c *OutputController) Available() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.available
}

// SetPreferences replaces the voice settings used by later utterances.
func (c *OutputController) SetPreferences(p types.VoicePreferences) {
    c.mu.Lock()
    c.prefs = p
    c.mu.Unlock()
}

func (c *OutputController) Preferences() types.VoicePreferences {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.prefs
}

// OnSpeakingChanged registers an observer called on every real transition.
func (c *OutputController) OnSpeakingChanged(fn func(speaking bool, utteranceID string)) {
    c.mu.Lock()
    c.observers = append(c.observers, fn)
    c.mu.Unlock()
}

func (c *OutputController) State() SpeakingState {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.state
}

func (c *OutputController) UtteranceID() string {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.current
}

// Speak reads text aloud. It is a no-op when voice is disabled, synthesis is
// unavailable or the text is blank.
func (c *OutputController) Speak(ctx context.Context, text string) error {
    if strings.TrimSpace(text) == "" {
        return nil
    }
    c.mu.Lock()
    if !c.available || !c.prefs.VoiceEnabled {
        c.mu.Unlock()
        return nil
    }
    req := UtteranceRequest{
        ID:     uuid.New().String(),
        Text:   text,
        Rate:   ClampRate(c.prefs.SpeechRate),
        Pitch:  c.pitch,
        Volume: c.volume,
    }
    wasSpeaking := c.state == Speaking
    c.state = Speaking
    c.current = req.ID
    c.mu.Unlock()

    if wasSpeaking {
        metricUtterancesPreempted.Inc()
        if err := c.syn.Cancel(); err != nil {
            c.log.Debug().Err(err).Msg("cancel before speak failed")
        }
    } else {
        c.notify(true, req.ID)
    }

    metricUtterances.Inc()
    if err := c.syn.Speak(ctx, req); err != nil {
        metricEngineErrors.WithLabelValues("synthesis").Inc()
        c.log.Warn().Err(err).Str("utterance_id", req.ID).Msg("speech synthesis failed to start")
        c.mu.Lock()
        reset := c.current == req.ID
        if reset {
            c.state = SpeakingIdle
            c.current = ""
        }
        c.mu.Unlock()
        if reset {
            c.notify(false, req.ID)
        }
        return fmt.Errorf("%w: speak: %v", ErrEngine, err)
    }
    return nil
}

// StopSpeaking cancels playback and goes idle immediately.
func (c *OutputController) StopSpeaking() {
    c.mu.Lock()
    wasSpeaking := c.state == Speaking
    id := c.current
    available := c.available
    c.state = SpeakingIdle
    c.current = ""
    c.mu.Unlock()

    if available {
        if err := c.syn.Cancel(); err != nil {
            c.log.Debug().Err(err).Msg("cancel failed")
        }
    }
    if wasSpeaking {
        c.notify(false, id)
    }
}

func (c *OutputController) OnStart(utteranceID string) {
    c.mu.Lock()
    changed := c.state != Speaking
    if changed {
        c.state = Speaking
        c.current = utteranceID
    }
    c.mu.Unlock()
    if changed {
        c.notify(true, utteranceID)
    }
}

func (c *OutputController) OnEnd(utteranceID string) {
    c.stopped(utteranceID)
}

func (c *OutputController) OnError(utteranceID, code string) {
    c.log.Warn().Str("utterance_id", utteranceID).Str("code", code).Msg("speech synthesis error")
    c.stopped(utteranceID)
}

// stopped clears speaking regardless of which utterance ended.
func (c *OutputController) stopped(utteranceID string) {
    c.mu.Lock()
    changed := c.state == Speaking
    c.state = SpeakingIdle
    c.current = ""
    c.mu.Unlock()
    if changed {
        c.notify(false, utteranceID)
    }
}

func (c *OutputController) notify(speaking bool, utteranceID string) {
    c.mu.Lock()
    obs := append([]func(bool, string){}, c.observers...)
    c.mu.Unlock()
    for _, fn := range obs {
        fn(speaking, utteranceID)
    }
}
