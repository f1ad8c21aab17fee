package types

import (
	"strings"
	"time"
)

// Language is one of the programming languages the tutor can analyze.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
	LanguageHTMLCSS    Language = "html_css"
)

// Languages lists the supported languages in display order.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageJava, LanguageCPP, LanguageHTMLCSS}

// ParseLanguage normalizes s and reports whether it names a supported language.
func ParseLanguage(s string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// Explanation is the validated result of one analysis.
type Explanation struct {
	ErrorType         string   `json:"error_type"`
	SimpleExplanation string   `json:"simple_explanation"`
	Solution          string   `json:"solution"`
	LearningPoints    []string `json:"learning_points"`
}

// Clone returns a deep copy so callers can't mutate a stored explanation.
func (e *Explanation) Clone() *Explanation {
	if e == nil {
		return nil
	}
	out := *e
	out.LearningPoints = append([]string(nil), e.LearningPoints...)
	return &out
}

// VoicePreferences are the read-only speech settings of a user.
type VoicePreferences struct {
	VoiceEnabled bool    `json:"voice_enabled"`
	SpeechRate   float64 `json:"speech_rate"`
}

// Profile is the per-user record kept by the profile store.
type Profile struct {
	UserID            string     `json:"user_id"`
	PreferredLanguage Language   `json:"preferred_language"`
	VoiceEnabled      bool       `json:"voice_enabled"`
	SpeechRate        float64    `json:"speech_rate"`
	ProgrammingLevel  string     `json:"programming_level"`
	TotalSessions     int        `json:"total_sessions"`
	LearningStreak    int        `json:"learning_streak"`
	LastSessionAt     *time.Time `json:"last_session_at,omitempty"`
}

// Preferences extracts the voice settings from the profile.
func (p Profile) Preferences() VoicePreferences {
	return VoicePreferences{VoiceEnabled: p.VoiceEnabled, SpeechRate: p.SpeechRate}
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	PreferredLanguage *Language  `json:"preferred_language,omitempty"`
	VoiceEnabled      *bool      `json:"voice_enabled,omitempty"`
	SpeechRate        *float64   `json:"speech_rate,omitempty"`
	ProgrammingLevel  *string    `json:"programming_level,omitempty"`
	TotalSessions     *int       `json:"total_sessions,omitempty"`
	LearningStreak    *int       `json:"learning_streak,omitempty"`
	LastSessionAt     *time.Time `json:"last_session_at,omitempty"`
}

// SessionRecord is the persisted artifact of one analysis interaction.
type SessionRecord struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"created_by"`
	CodeInput           string    `json:"code_input"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	ProgrammingLanguage Language  `json:"programming_language"`
	ExplanationProvided string    `json:"explanation_provided"`
	SolutionSuggested   string    `json:"solution_suggested"`
	VoiceUsed           bool      `json:"voice_used"`
	SessionDuration     int       `json:"session_duration"`
	UserSatisfaction    int       `json:"user_satisfaction,omitempty"`
	ConceptsLearned     []string  `json:"concepts_learned"`
	CreatedAt           time.Time `json:"created_date"`
}

// SessionFilter narrows ListSessions; zero values match everything.
type SessionFilter struct {
	UserID    string
	Language  Language
	VoiceUsed *bool
}

// SessionOrder is a field name with an optional leading "-" for descending.
type SessionOrder string

const (
	OrderCreatedAsc  SessionOrder = "created_at"
	OrderCreatedDesc SessionOrder = "-created_at"
)

// SessionUpdate carries mutable session record fields.
type SessionUpdate struct {
	UserSatisfaction *int `json:"user_satisfaction,omitempty"`
}

// Event is one entry in a debugging session's event log.
type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}
