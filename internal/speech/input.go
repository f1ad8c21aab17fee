package speech

import (
    "context"
    "fmt"
    "strings"
    "sync"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

// InputController owns the listening resource. At most one capture is active;
// events for any other capture id are dropped.
type InputController struct {
    rec    Recognizer
    locale string
    log    zerolog.Logger

    mu        sync.Mutex
    available bool
    state     ListeningState
    captureID string
    consumer  func(Transcript)
    observers []func(listening bool, captureID string)
}

func NewInputController(rec Recognizer, locale string, log zerolog.Logger) *InputController {
    if locale == "" {
        locale = DefaultLocale
    }
    return &InputController{rec: rec, locale: locale, log: log}
}

// SetAvailable records whether the client can recognize speech. Losing the
// capability ends any running capture.
func (c *InputController) SetAvailable(ok bool) {
    c.mu.Lock()
    c.available = ok
    var ended string
    if !ok && c.state == Listening {
        ended = c.captureID
        c.state = ListeningIdle
        c.captureID = ""
    }
    c.mu.Unlock()
    if ended != "" {
        c.notify(false, ended)
    }
}

func (c *InputController) Available() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.available
}

// CanListen reports whether StartListening would begin a capture.
func (c *InputController) CanListen() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.available && c.state != Listening
}

// OnTranscript registers the consumer of finished transcripts.
func (c *InputController) OnTranscript(fn func(Transcript)) {
    c.mu.Lock()
    c.consumer = fn
    c.mu.Unlock()
}

// OnListeningChanged registers an observer called on every real transition.
func (c *InputController) OnListeningChanged(fn func(listening bool, captureID string)) {
    c.mu.Lock()
    c.observers = append(c.observers, fn)
    c.mu.Unlock()
}

func (c *InputController) State() ListeningState {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.state
}

func (c *InputController) CaptureID() string {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.captureID
}

// StartListening begins a single non-continuous capture.
func (c *InputController) StartListening(ctx context.Context) error {
    c.mu.Lock()
    if !c.available {
        c.mu.Unlock()
        return ErrUnavailable
    }
    if c.state == Listening {
        c.mu.Unlock()
        return ErrBusy
    }
    id := uuid.New().String()
    c.state = Listening
    c.captureID = id
    c.mu.Unlock()

    c.notify(true, id)
    err := c.rec.Start(ctx, RecognitionOptions{CaptureID: id, Locale: c.locale})
    if err == nil {
        return nil
    }

    metricEngineErrors.WithLabelValues("recognition").Inc()
    metricListenCycles.WithLabelValues("start_failed").Inc()
    c.log.Warn().Err(err).Str("capture_id", id).Msg("recognition start failed")
    if c.finish(id) {
        c.notify(false, id)
    }
    return fmt.Errorf("%w: start recognition: %v", ErrEngine, err)
}

// StopListening ends the active capture. Late results for it are ignored.
func (c *InputController) StopListening() {
    c.mu.Lock()
    if c.state != Listening {
        c.mu.Unlock()
        return
    }
    id := c.captureID
    c.state = ListeningIdle
    c.captureID = ""
    c.mu.Unlock()

    if err := c.rec.Stop(id); err != nil {
        c.log.Debug().Err(err).Str("capture_id", id).Msg("recognition stop failed")
    }
    metricListenCycles.WithLabelValues("stopped").Inc()
    c.notify(false, id)
}

func (c *InputController) OnStart(captureID string) {
    c.log.Debug().Str("capture_id", captureID).Msg("recognition started")
}

func (c *InputController) OnResult(captureID, text string) {
    if !c.finish(captureID) {
        metricStaleResults.Inc()
        return
    }
    c.notify(false, captureID)

    if strings.TrimSpace(text) == "" {
        metricListenCycles.WithLabelValues("empty").Inc()
        return
    }
    metricListenCycles.WithLabelValues("result").Inc()
    c.mu.Lock()
    consumer := c.consumer
    c.mu.Unlock()
    if consumer != nil {
        consumer(Transcript{CaptureID: captureID, Text: text})
    }
}

func (c *InputController) OnError(captureID, code string) {
    if !c.finish(captureID) {
        metricStaleResults.Inc()
        return
    }
    metricListenCycles.WithLabelValues("error").Inc()
    c.log.Warn().Str("capture_id", captureID).Str("code", code).Msg("speech recognition error")
    c.notify(false, captureID)
}

func (c *InputController) OnEnd(captureID string) {
    if !c.finish(captureID) {
        return
    }
    metricListenCycles.WithLabelValues("no_result").Inc()
    c.notify(false, captureID)
}

// finish moves Listening to Idle if captureID is the active capture.
func (c *InputController) finish(captureID string) bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.state != Listening || captureID != c.captureID {
        return false
    }
    c.state = ListeningIdle
    c.captureID = ""
    return true
}

func (c *InputController) notify(listening bool, captureID string) {
    c.mu.Lock()
    obs := append([]func(bool, string){}, c.observers...)
    c.mu.Unlock()
    for _, fn := range obs {
        fn(listening, captureID)
    }
}
