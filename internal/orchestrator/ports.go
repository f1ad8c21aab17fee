package orchestrator

import (
    "context"

    "codetutor/voicedebug/internal/types"
)

// AnalysisRequest is what the analysis service receives for one Analyze.
type AnalysisRequest struct {
    Code       string
    Language   types.Language
    SkillLevel string
}

// Analyzer explains defects in a piece of code.
type Analyzer interface {
    Analyze(ctx context.Context, req AnalysisRequest) (types.Explanation, error)
}

// SessionStore persists debugging session records.
type SessionStore interface {
    CreateSession(ctx context.Context, rec types.SessionRecord) (string, error)
    ListSessions(ctx context.Context, f types.SessionFilter, order types.SessionOrder, limit int) ([]types.SessionRecord, error)
    UpdateSession(ctx context.Context, id string, u types.SessionUpdate) error
}

// ProfileStore reads and updates user profiles.
type ProfileStore interface {
    GetUser(ctx context.Context, userID string) (types.Profile, error)
    UpdateUser(ctx context.Context, userID string, u types.ProfileUpdate) error
}

// Notice codes surfaced to the user.
const (
    NoticeCapabilityUnavailable = "capability_unavailable"
    NoticeBusy                  = "busy"
    NoticeValidation            = "validation"
    NoticeServiceFailure        = "service_failure"
    NoticeEngineError           = "engine_error"
)

// Notice is a user-visible condition.
type Notice struct {
    Code    string `json:"code"`
    Message string `json:"message"`
}

// EventSink receives notices and state events of a debugging session.
type EventSink interface {
    Notify(sessionID string, n Notice)
    Publish(sessionID, eventType string, payload map[string]any)
}

// Narration asks the voice output to read Text aloud.
type Narration struct {
    SessionID string
    Revision  uint64
    Text      string
}
