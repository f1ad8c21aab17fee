package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "time"

    "codetutor/voicedebug/internal/auth"
    "codetutor/voicedebug/internal/command"
    "codetutor/voicedebug/internal/health"
    "codetutor/voicedebug/internal/loop"
    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/progress"
    "codetutor/voicedebug/internal/speech"
    "codetutor/voicedebug/internal/store"
    "codetutor/voicedebug/internal/types"
    "github.com/rs/zerolog"
)

// Sessions is the live session registry.
type Sessions interface {
    Open(ctx context.Context, userID string) (string, error)
    Close(sessionID string) error
    View(sessionID string) (loop.View, error)
    Events(sessionID string) ([]types.Event, error)
    Orchestrator(sessionID string) (*orchestrator.Orchestrator, error)
    Listen(ctx context.Context, sessionID string) error
    StopListening(sessionID string) error
    StopSpeaking(sessionID string) error
    RefreshPreferences(ctx context.Context, userID string)
}

// Records is the persisted history and profile storage.
type Records interface {
    orchestrator.SessionStore
    orchestrator.ProfileStore
}

type Handlers struct {
    sessions    Sessions
    records     Records
    tokens      auth.Issuer
    health      health.Checker
    defaultUser string
    log         zerolog.Logger
}

func NewHandlers(sessions Sessions, records Records, tokens auth.Issuer, checker health.Checker, defaultUser string, log zerolog.Logger) *Handlers {
    return &Handlers{sessions: sessions, records: records, tokens: tokens, health: checker, defaultUser: defaultUser, log: log}
}

func (h *Handlers) userID(r *http.Request) string {
    if u := r.Header.Get("X-User-ID"); u != "" {
        return u
    }
    return h.defaultUser
}

// owned returns the orchestrator of a session the caller may touch.
func (h *Handlers) owned(w http.ResponseWriter, r *http.Request, id string) *orchestrator.Orchestrator {
    o, err := h.sessions.Orchestrator(id)
    if err != nil || o.UserID() != h.userID(r) {
        http.NotFound(w, r)
        return nil
    }
    return o
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
    user := h.userID(r)
    id, err := h.sessions.Open(r.Context(), user)
    if err != nil {
        h.log.Error().Err(err).Str("user_id", user).Msg("open session")
        writeError(w, err)
        return
    }
    resp := map[string]any{
        "session_id": id,
        "ws_url":     "/ws/client?session_id=" + id,
    }
    if tok, exp, err := h.tokens.Issue(id, time.Now()); err == nil {
        resp["client_token"] = tok
        resp["token_expires_at"] = exp.Unix()
    }
    writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request, id string) {
    if h.owned(w, r, id) == nil {
        return
    }
    v, err := h.sessions.View(id)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request, id string) {
    if h.owned(w, r, id) == nil {
        return
    }
    if err := h.sessions.Close(id); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleMintClientToken(w http.ResponseWriter, r *http.Request, id string) {
    if h.owned(w, r, id) == nil {
        return
    }
    tok, exp, err := h.tokens.Issue(id, time.Now())
    if err != nil {
        http.Error(w, err.Error(), http.StatusServiceUnavailable)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "client_token": tok, "token_expires_at": exp.Unix()})
}

func (h *Handlers) HandleSetCode(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    var body struct {
        Code string `json:"code"`
    }
    if !decode(w, r, &body) {
        return
    }
    o.SetCode(body.Code)
    writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *Handlers) HandleResetCode(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    o.ResetCode()
    writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *Handlers) HandleSetLanguage(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    var body struct {
        Language string `json:"language"`
    }
    if !decode(w, r, &body) {
        return
    }
    if err := o.SetLanguage(body.Language); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, o.Snapshot())
}

// HandleAction applies one of the button actions: analyze, clear, explain.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request, id string, kind command.Kind) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    if err := o.Apply(r.Context(), command.Action{Kind: kind}); err != nil {
        writeError(w, err)
        return
    }
    status := http.StatusOK
    if kind == command.Analyze {
        status = http.StatusAccepted
    }
    writeJSON(w, status, o.Snapshot())
}

func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    var body struct {
        Text string `json:"text"`
    }
    if !decode(w, r, &body) {
        return
    }
    if err := o.HandleTranscript(r.Context(), body.Text); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *Handlers) HandleRate(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    var body struct {
        Rating int `json:"rating"`
    }
    if !decode(w, r, &body) {
        return
    }
    if err := o.Rate(r.Context(), body.Rating); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleSettled(w http.ResponseWriter, r *http.Request, id string) {
    o := h.owned(w, r, id)
    if o == nil {
        return
    }
    var body struct {
        Revision uint64 `json:"revision"`
    }
    if !decode(w, r, &body) {
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"narrated": o.Settled(body.Revision)})
}

func (h *Handlers) HandleListen(w http.ResponseWriter, r *http.Request, id string, start bool) {
    if h.owned(w, r, id) == nil {
        return
    }
    var err error
    if start {
        err = h.sessions.Listen(r.Context(), id)
    } else {
        err = h.sessions.StopListening(id)
    }
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleStopSpeaking(w http.ResponseWriter, r *http.Request, id string) {
    if h.owned(w, r, id) == nil {
        return
    }
    if err := h.sessions.StopSpeaking(id); err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
    if h.owned(w, r, id) == nil {
        return
    }
    events, err := h.sessions.Events(id)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "session_id": id,
        "events":     events,
    })
}

func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    f := types.SessionFilter{UserID: h.userID(r)}
    if l := q.Get("language"); l != "" && l != "all" {
        lang, ok := types.ParseLanguage(l)
        if !ok {
            http.Error(w, "unsupported language", http.StatusBadRequest)
            return
        }
        f.Language = lang
    }
    if v := q.Get("voice"); v != "" {
        b, err := strconv.ParseBool(v)
        if err != nil {
            http.Error(w, "voice must be a boolean", http.StatusBadRequest)
            return
        }
        f.VoiceUsed = &b
    }
    limit := 50
    if l := q.Get("limit"); l != "" {
        n, err := strconv.Atoi(l)
        if err != nil || n < 0 {
            http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
            return
        }
        limit = n
    }
    order := types.SessionOrder(q.Get("order"))
    recs, err := h.records.ListSessions(r.Context(), f, order, limit)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
    user := h.userID(r)
    p, err := h.records.GetUser(r.Context(), user)
    if err != nil {
        writeError(w, err)
        return
    }
    recs, err := h.records.ListSessions(r.Context(), types.SessionFilter{UserID: user}, types.OrderCreatedDesc, 0)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, progress.Summarize(p, recs))
}

func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
    p, err := h.records.GetUser(r.Context(), h.userID(r))
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, p)
}

// HandleUpdateProfile saves settings and pushes voice changes to open sessions.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
    var u types.ProfileUpdate
    if !decode(w, r, &u) {
        return
    }
    u.TotalSessions, u.LearningStreak, u.LastSessionAt = nil, nil, nil
    if u.PreferredLanguage != nil {
        lang, ok := types.ParseLanguage(string(*u.PreferredLanguage))
        if !ok {
            http.Error(w, "unsupported language", http.StatusBadRequest)
            return
        }
        u.PreferredLanguage = &lang
    }
    if u.SpeechRate != nil {
        rate := speech.ClampRate(*u.SpeechRate)
        u.SpeechRate = &rate
    }
    user := h.userID(r)
    if err := h.records.UpdateUser(r.Context(), user, u); err != nil {
        writeError(w, err)
        return
    }
    h.sessions.RefreshPreferences(r.Context(), user)
    h.HandleGetProfile(w, r)
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
    defer cancel()
    st := h.health.CheckAll(ctx)
    status := http.StatusOK
    if !st.OK {
        status = http.StatusServiceUnavailable
    }
    writeJSON(w, status, st)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
    if err := json.NewDecoder(r.Body).Decode(v); err != nil {
        http.Error(w, "invalid JSON body", http.StatusBadRequest)
        return false
    }
    return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, loop.ErrUnknownSession), errors.Is(err, store.ErrNotFound), errors.Is(err, orchestrator.ErrClosed):
        status = http.StatusNotFound
    case errors.Is(err, orchestrator.ErrEmptyCode), errors.Is(err, orchestrator.ErrInvalidLanguage),
        errors.Is(err, orchestrator.ErrInvalidRating), errors.Is(err, store.ErrInvalidOrder):
        status = http.StatusBadRequest
    case errors.Is(err, orchestrator.ErrBusy), errors.Is(err, speech.ErrBusy), errors.Is(err, speech.ErrUnavailable):
        status = http.StatusConflict
    case errors.Is(err, orchestrator.ErrService), errors.Is(err, speech.ErrEngine):
        status = http.StatusBadGateway
    }
    writeJSON(w, status, map[string]any{"error": err.Error()})
}
