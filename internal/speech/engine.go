// Package speech owns the two exclusive voice resources of a debugging
// session: the listening capture and the spoken utterance. The engines that
// actually recognize and synthesize speech live on the voice client; the
// controllers here only drive them through the Recognizer and Synthesizer
// contracts and react to their events.
package speech

import (
    "context"
    "errors"
)

var (
    // ErrUnavailable is returned when the client cannot recognize or synthesize speech.
    ErrUnavailable = errors.New("speech: capability unavailable")
    // ErrBusy is returned when a capture is already running.
    ErrBusy = errors.New("speech: already listening")
    // ErrEngine wraps failures reported by an engine.
    ErrEngine = errors.New("speech: engine error")
)

// VoiceCapability is detected once per client hello.
type VoiceCapability struct {
    RecognitionAvailable bool `json:"recognition"`
    SynthesisAvailable   bool `json:"synthesis"`
}

// RecognitionOptions configures a single capture.
type RecognitionOptions struct {
    CaptureID  string
    Locale     string
    Continuous bool
    Interim    bool
}

// Recognizer starts and stops captures on a speech recognition engine.
// Results arrive later through RecognitionEvents.
type Recognizer interface {
    Start(ctx context.Context, opts RecognitionOptions) error
    Stop(captureID string) error
}

// RecognitionEvents receives engine callbacks for a capture.
type RecognitionEvents interface {
    OnStart(captureID string)
    OnResult(captureID, text string)
    OnError(captureID, code string)
    OnEnd(captureID string)
}

// UtteranceRequest is one piece of text handed to the synthesis engine.
type UtteranceRequest struct {
    ID     string  `json:"utterance_id"`
    Text   string  `json:"text"`
    Rate   float64 `json:"rate"`
    Pitch  float64 `json:"pitch"`
    Volume float64 `json:"volume"`
}

// Synthesizer plays utterances. Cancel stops whatever is playing.
type Synthesizer interface {
    Speak(ctx context.Context, req UtteranceRequest) error
    Cancel() error
}

// SynthesisEvents receives engine callbacks for an utterance.
type SynthesisEvents interface {
    OnStart(utteranceID string)
    OnEnd(utteranceID string)
    OnError(utteranceID, code string)
}

// Transcript is the text of one successful listening cycle.
type Transcript struct {
    CaptureID string
    Text      string
}

type ListeningState int

const (
    ListeningIdle ListeningState = iota
    Listening
)

func (s ListeningState) String() string {
    if s == Listening {
        return "listening"
    }
    return "idle"
}

type SpeakingState int

const (
    SpeakingIdle SpeakingState = iota
    Speaking
)

func (s SpeakingState) String() string {
    if s == Speaking {
        return "speaking"
    }
    return "idle"
}

const (
    DefaultLocale = "en-US"
    DefaultPitch  = 1.0
    DefaultVolume = 0.8
    MinRate       = 0.5
    MaxRate       = 2.0
)

// ClampRate keeps a speech rate inside the range engines accept.
func ClampRate(r float64) float64 {
    if r < MinRate {
        return MinRate
    }
    if r > MaxRate {
        return MaxRate
    }
    return r
}
