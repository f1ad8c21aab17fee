package floor

// Decision represents what must be stopped before a request is granted.
type Decision struct {
    StopListening   bool
    StopCaptureID   string
    StopSpeaking    bool
    StopUtteranceID string
    Reason          string // "speak_preempts_listen" | "listen_preempts_speak"
}

// Preempts reports whether the decision stops anything.
func (d Decision) Preempts() bool { return d.StopListening || d.StopSpeaking }

// Manager tracks who holds the audio floor. Listening and speaking are
// mutually exclusive; the newer request always wins.
type Manager struct {
    speaking          bool
    listening         bool
    activeUtteranceID string
    activeCaptureID   string
}

func New() *Manager { return &Manager{} }

func (m *Manager) OnListenRequested() Decision {
    if m.speaking {
        return Decision{StopSpeaking: true, StopUtteranceID: m.activeUtteranceID, Reason: "listen_preempts_speak"}
    }
    return Decision{}
}

func (m *Manager) OnListenStarted(captureID string) {
    m.listening = true
    m.activeCaptureID = captureID
}

func (m *Manager) OnListenStopped(captureID string) {
    // A late stop for an older capture must not release the current one.
    if captureID != "" && m.activeCaptureID != "" && captureID != m.activeCaptureID {
        return
    }
    m.listening = false
    m.activeCaptureID = ""
}

func (m *Manager) OnSpeakRequested() Decision {
    if m.listening {
        return Decision{StopListening: true, StopCaptureID: m.activeCaptureID, Reason: "speak_preempts_listen"}
    }
    return Decision{}
}

func (m *Manager) OnSpeakStarted(utteranceID string) {
    m.speaking = true
    m.activeUtteranceID = utteranceID
}

func (m *Manager) OnSpeakStopped(utteranceID string) {
    // Regardless of ID match, stopping clears speaking.
    m.speaking = false
    m.activeUtteranceID = ""
}

func (m *Manager) Listening() bool { return m.listening }
func (m *Manager) Speaking() bool  { return m.speaking }
