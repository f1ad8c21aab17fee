// Package orchestrator drives one debugging session: the code draft, the
// selected language, the current explanation and the single in-flight
// analysis request with its side effects.
package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    "codetutor/voicedebug/internal/command"
    "codetutor/voicedebug/internal/types"
    "github.com/rs/zerolog"
)

var (
    ErrBusy            = errors.New("analysis already in progress")
    ErrEmptyCode       = errors.New("no code to analyze")
    ErrInvalidLanguage = errors.New("unsupported language")
    ErrInvalidRating   = errors.New("rating must be between 1 and 5")
    ErrService         = errors.New("analysis service failure")
    ErrClosed          = errors.New("session closed")
)

const (
    msgBusy           = "Please wait for the current analysis to finish."
    msgEmptyCode      = "Please enter some code to analyze"
    msgServiceFailure = "Failed to analyze code. Please try again."

    defaultSkillLevel = "beginner"
    outboxSize        = 8
)

type State int

const (
    StateIdle State = iota
    StateAnalyzing
)

func (s State) String() string {
    if s == StateAnalyzing {
        return "analyzing"
    }
    return "idle"
}

// Options configures an Orchestrator.
type Options struct {
    SessionID string
    UserID    string
    // AwaitSettle defers narration until Settled is called with the
    // revision of the new explanation.
    AwaitSettle bool
    Log         zerolog.Logger
    Now         func() time.Time
}

// Snapshot is a copy of the session draft.
type Snapshot struct {
    SessionID        string                 `json:"session_id"`
    UserID           string                 `json:"user_id"`
    State            string                 `json:"state"`
    Code             string                 `json:"code"`
    Language         types.Language         `json:"language"`
    Explanation      *types.Explanation     `json:"explanation"`
    Revision         uint64                 `json:"revision"`
    AnalysisInFlight bool                   `json:"analysis_in_flight"`
    SkillLevel       string                 `json:"skill_level"`
    Preferences      types.VoicePreferences `json:"preferences"`
}

type Orchestrator struct {
    id          string
    userID      string
    analyzer    Analyzer
    sessions    SessionStore
    profiles    ProfileStore
    sink        EventSink
    log         zerolog.Logger
    now         func() time.Time
    awaitSettle bool

    out chan Narration

    mu          sync.Mutex
    state       State
    code        string
    language    types.Language
    explanation *types.Explanation
    revision    uint64
    pending     uint64 // revision waiting for Settled, 0 if none
    skill       string
    prefs       types.VoicePreferences
    startedAt   time.Time
    closed      bool

    baseCtx        context.Context
    cancel         context.CancelFunc
    analysisCancel context.CancelFunc
    wg             sync.WaitGroup
}

func New(an Analyzer, sessions SessionStore, profiles ProfileStore, sink EventSink, opts Options) *Orchestrator {
    if opts.Now == nil {
        opts.Now = time.Now
    }
    ctx, cancel := context.WithCancel(context.Background())
    return &Orchestrator{
        id:          opts.SessionID,
        userID:      opts.UserID,
        analyzer:    an,
        sessions:    sessions,
        profiles:    profiles,
        sink:        sink,
        log:         opts.Log.With().Str("session_id", opts.SessionID).Logger(),
        now:         opts.Now,
        awaitSettle: opts.AwaitSettle,
        out:         make(chan Narration, outboxSize),
        language:    types.LanguagePython,
        code:        Example(types.LanguagePython),
        skill:       defaultSkillLevel,
        baseCtx:     ctx,
        cancel:      cancel,
    }
}

func (o *Orchestrator) ID() string     { return o.id }
func (o *Orchestrator) UserID() string { return o.userID }

// Narrations is the outbox of text to be spoken.
func (o *Orchestrator) Narrations() <-chan Narration { return o.out }

// Start loads the user's profile and seeds the draft with the example for
// the preferred language.
func (o *Orchestrator) Start(ctx context.Context) error {
    p, err := o.profiles.GetUser(ctx, o.userID)
    if err != nil {
        return fmt.Errorf("load profile: %w", err)
    }
    lang, ok := types.ParseLanguage(string(p.PreferredLanguage))
    if !ok {
        lang = types.LanguagePython
    }
    skill := p.ProgrammingLevel
    if skill == "" {
        skill = defaultSkillLevel
    }

    o.mu.Lock()
    o.language = lang
    o.code = Example(lang)
    o.explanation = nil
    o.skill = skill
    o.prefs = p.Preferences()
    o.startedAt = o.now()
    o.mu.Unlock()

    o.log.Info().Str("language", string(lang)).Str("skill", skill).Bool("voice", p.VoiceEnabled).Msg("session started")
    o.publishDraft()
    return nil
}

// RefreshProfile re-reads voice settings and skill level from the profile store.
func (o *Orchestrator) RefreshProfile(ctx context.Context) (types.VoicePreferences, error) {
    p, err := o.profiles.GetUser(ctx, o.userID)
    if err != nil {
        return types.VoicePreferences{}, fmt.Errorf("load profile: %w", err)
    }
    o.mu.Lock()
    o.prefs = p.Preferences()
    if p.ProgrammingLevel != "" {
        o.skill = p.ProgrammingLevel
    }
    prefs := o.prefs
    o.mu.Unlock()
    return prefs, nil
}

func (o *Orchestrator) SetCode(text string) {
    o.mu.Lock()
    o.code = text
    o.mu.Unlock()
    o.publishDraft()
}

// SetLanguage switches language, replacing the code with the language's
// example and dropping the explanation.
func (o *Orchestrator) SetLanguage(s string) error {
    lang, ok := types.ParseLanguage(s)
    if !ok {
        o.notify(NoticeValidation, fmt.Sprintf("Unsupported language %q", s))
        return fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
    }
    o.mu.Lock()
    o.language = lang
    o.code = Example(lang)
    o.clearExplanationLocked()
    o.mu.Unlock()
    o.publishDraft()
    return nil
}

// ResetCode puts the current language's example back into the draft.
func (o *Orchestrator) ResetCode() {
    o.mu.Lock()
    o.code = Example(o.language)
    o.mu.Unlock()
    o.publishDraft()
}

// HandleTranscript interprets a spoken transcript and applies the resulting action.
func (o *Orchestrator) HandleTranscript(ctx context.Context, text string) error {
    o.mu.Lock()
    has := o.explanation != nil
    o.mu.Unlock()
    act := command.Interpret(text, has)
    o.log.Debug().Str("action", act.Kind.String()).Msg("transcript interpreted")
    return o.Apply(ctx, act)
}

// Apply performs an action on the session.
func (o *Orchestrator) Apply(ctx context.Context, act command.Action) error {
    metricActions.WithLabelValues(act.Kind.String()).Inc()
    switch act.Kind {
    case command.Analyze:
        return o.analyze()
    case command.Clear:
        o.mu.Lock()
        o.code = ""
        o.clearExplanationLocked()
        o.mu.Unlock()
        o.publishDraft()
    case command.RepeatExplanation:
        o.mu.Lock()
        exp := o.explanation.Clone()
        rev := o.revision
        o.mu.Unlock()
        if exp != nil {
            o.emitNarration(rev, NarrationText(*exp))
        }
    case command.AppendCodeLine:
        o.mu.Lock()
        o.code = o.code + "\n" + act.Text
        o.mu.Unlock()
        o.publishDraft()
    default:
        return fmt.Errorf("unknown action %d", act.Kind)
    }
    return nil
}

// Settled tells the orchestrator the presentation layer has rendered the
// given explanation revision. A pending narration for that revision is
// emitted; anything else is ignored.
func (o *Orchestrator) Settled(revision uint64) bool {
    o.mu.Lock()
    if revision == 0 || o.pending != revision || o.revision != revision || o.explanation == nil {
        o.mu.Unlock()
        return false
    }
    o.pending = 0
    text := NarrationText(*o.explanation)
    o.mu.Unlock()
    o.emitNarration(revision, text)
    return true
}

// Rate stores a 1..5 satisfaction rating on the user's most recent session record.
func (o *Orchestrator) Rate(ctx context.Context, rating int) error {
    if rating < 1 || rating > 5 {
        return fmt.Errorf("%w: %d", ErrInvalidRating, rating)
    }
    o.mu.Lock()
    has := o.explanation != nil
    o.mu.Unlock()
    if !has {
        return nil
    }
    recs, err := o.sessions.ListSessions(ctx, types.SessionFilter{UserID: o.userID}, types.OrderCreatedDesc, 1)
    if err != nil {
        return fmt.Errorf("%w: list sessions: %v", ErrService, err)
    }
    if len(recs) == 0 {
        return nil
    }
    if err := o.sessions.UpdateSession(ctx, recs[0].ID, types.SessionUpdate{UserSatisfaction: &rating}); err != nil {
        return fmt.Errorf("%w: rate session: %v", ErrService, err)
    }
    o.publish("rated", map[string]any{"record_id": recs[0].ID, "rating": rating})
    return nil
}

func (o *Orchestrator) Snapshot() Snapshot {
    o.mu.Lock()
    defer o.mu.Unlock()
    return Snapshot{
        SessionID:        o.id,
        UserID:           o.userID,
        State:            o.state.String(),
        Code:             o.code,
        Language:         o.language,
        Explanation:      o.explanation.Clone(),
        Revision:         o.revision,
        AnalysisInFlight: o.state == StateAnalyzing,
        SkillLevel:       o.skill,
        Preferences:      o.prefs,
    }
}

// Close cancels an in-flight analysis, waits for it and closes the outbox.
func (o *Orchestrator) Close() {
    o.mu.Lock()
    if o.closed {
        o.mu.Unlock()
        return
    }
    o.closed = true
    o.mu.Unlock()

    o.cancel()
    o.wg.Wait()
    o.mu.Lock()
    close(o.out)
    o.mu.Unlock()
}

// NarrationText composes the spoken summary of an explanation.
func NarrationText(e types.Explanation) string {
    return fmt.Sprintf("I found a %s. Here is what's wrong: %s. And here is how to fix it: %s.",
        e.ErrorType, e.SimpleExplanation, e.Solution)
}

// clearExplanationLocked drops the explanation and any pending narration.
func (o *Orchestrator) clearExplanationLocked() {
    if o.explanation == nil {
        return
    }
    o.explanation = nil
    o.revision++
    o.pending = 0
}

// setState transitions state and records metric. Callers hold o.mu.
func (o *Orchestrator) setState(to State) {
    from := o.state
    if from == to {
        return
    }
    metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
    o.state = to
}

// emitNarration publishes to the outbox without blocking.
func (o *Orchestrator) emitNarration(revision uint64, text string) {
    if strings.TrimSpace(text) == "" {
        return
    }
    o.mu.Lock()
    defer o.mu.Unlock()
    if o.closed {
        return
    }
    select {
    case o.out <- Narration{SessionID: o.id, Revision: revision, Text: text}:
        metricNarrations.Inc()
    default:
        metricNarrationsDropped.Inc()
        o.log.Warn().Uint64("revision", revision).Msg("narration outbox full, dropping")
    }
}

func (o *Orchestrator) notify(code, msg string) {
    if o.sink != nil {
        o.sink.Notify(o.id, Notice{Code: code, Message: msg})
    }
}

func (o *Orchestrator) publish(eventType string, payload map[string]any) {
    if o.sink != nil {
        o.sink.Publish(o.id, eventType, payload)
    }
}

func (o *Orchestrator) publishDraft() {
    s := o.Snapshot()
    o.publish("draft", map[string]any{
        "state":           s.State,
        "language":        string(s.Language),
        "code":            s.Code,
        "has_explanation": s.Explanation != nil,
        "revision":        s.Revision,
    })
}
