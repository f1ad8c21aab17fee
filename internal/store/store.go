// Package store keeps session records, user profiles and per-session event
// logs. Store is the in-memory implementation; Postgres persists records and
// profiles in a database.
package store

import (
    "context"
    "errors"
    "sort"
    "sync"
    "time"

    "codetutor/voicedebug/internal/types"
    "github.com/google/uuid"
)

var (
    ErrNotFound     = errors.New("record not found")
    ErrInvalidOrder = errors.New("unsupported order")
)

const maxEvents = 200

type Store struct {
    mu       sync.RWMutex
    records  []types.SessionRecord
    byID     map[string]int
    profiles map[string]types.Profile
    events   map[string][]types.Event
    now      func() time.Time
}

func New() *Store {
    return &Store{
        byID:     make(map[string]int),
        profiles: make(map[string]types.Profile),
        events:   make(map[string][]types.Event),
        now:      func() time.Time { return time.Now().UTC() },
    }
}

// DefaultProfile is what a user gets before changing any setting.
func DefaultProfile(userID string) types.Profile {
    return types.Profile{
        UserID:            userID,
        PreferredLanguage: types.LanguagePython,
        VoiceEnabled:      true,
        SpeechRate:        1.0,
        ProgrammingLevel:  "beginner",
    }
}

func (s *Store) CreateSession(_ context.Context, rec types.SessionRecord) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    rec.ID = uuid.New().String()
    if rec.CreatedAt.IsZero() {
        rec.CreatedAt = s.now()
    }
    rec.ConceptsLearned = append([]string{}, rec.ConceptsLearned...)
    s.byID[rec.ID] = len(s.records)
    s.records = append(s.records, rec)
    return rec.ID, nil
}

func (s *Store) ListSessions(_ context.Context, f types.SessionFilter, order types.SessionOrder, limit int) ([]types.SessionRecord, error) {
    desc, err := orderDesc(order)
    if err != nil {
        return nil, err
    }
    s.mu.RLock()
    out := make([]types.SessionRecord, 0)
    for _, r := range s.records {
        if matches(r, f) {
            r.ConceptsLearned = append([]string{}, r.ConceptsLearned...)
            out = append(out, r)
        }
    }
    s.mu.RUnlock()

    sort.SliceStable(out, func(i, j int) bool {
        if desc {
            return out[i].CreatedAt.After(out[j].CreatedAt)
        }
        return out[i].CreatedAt.Before(out[j].CreatedAt)
    })
    if desc {
        // equal timestamps: newest insert first
        stableReverseTies(out)
    }
    if limit > 0 && len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (s *Store) UpdateSession(_ context.Context, id string, u types.SessionUpdate) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    i, ok := s.byID[id]
    if !ok {
        return ErrNotFound
    }
    if u.UserSatisfaction != nil {
        s.records[i].UserSatisfaction = *u.UserSatisfaction
    }
    return nil
}

// GetUser returns the profile, creating the default one on first access.
func (s *Store) GetUser(_ context.Context, userID string) (types.Profile, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.profiles[userID]
    if !ok {
        p = DefaultProfile(userID)
        s.profiles[userID] = p
    }
    return copyProfile(p), nil
}

func (s *Store) UpdateUser(_ context.Context, userID string, u types.ProfileUpdate) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.profiles[userID]
    if !ok {
        p = DefaultProfile(userID)
    }
    s.profiles[userID] = applyProfileUpdate(p, u)
    return nil
}

func (s *Store) AppendEvent(sessionID, typ string, payload map[string]any) types.Event {
    evt := types.Event{Type: typ, Ts: s.now(), Payload: payload}
    s.mu.Lock()
    defer s.mu.Unlock()
    s.events[sessionID] = append(s.events[sessionID], evt)
    // Cap total events per session to avoid unbounded growth
    if l := len(s.events[sessionID]); l > maxEvents {
        // Keep space for a single truncation warning so the total stays at maxEvents
        keep := maxEvents - 1
        dropped := l - keep
        s.events[sessionID] = append([]types.Event(nil), s.events[sessionID][l-keep:]...)
        warn := types.Event{Type: "events_truncated", Ts: s.now(), Payload: map[string]any{"session_id": sessionID, "dropped": dropped, "kept": keep}}
        s.events[sessionID] = append(s.events[sessionID], warn)
    }
    return evt
}

func (s *Store) ListEvents(sessionID string) []types.Event {
    s.mu.RLock()
    defer s.mu.RUnlock()
    src := s.events[sessionID]
    out := make([]types.Event, len(src))
    copy(out, src)
    return out
}

// DropEvents forgets the event log of a closed session.
func (s *Store) DropEvents(sessionID string) {
    s.mu.Lock()
    delete(s.events, sessionID)
    s.mu.Unlock()
}

func (s *Store) Close() error { return nil }

func matches(r types.SessionRecord, f types.SessionFilter) bool {
    if f.UserID != "" && r.UserID != f.UserID {
        return false
    }
    if f.Language != "" && r.ProgrammingLanguage != f.Language {
        return false
    }
    if f.VoiceUsed != nil && r.VoiceUsed != *f.VoiceUsed {
        return false
    }
    return true
}

// orderDesc accepts created_at and the created_date alias, optionally
// prefixed with "-" for descending. Empty means newest first.
func orderDesc(o types.SessionOrder) (bool, error) {
    switch o {
    case "", types.OrderCreatedDesc, "-created_date":
        return true, nil
    case types.OrderCreatedAsc, "created_date":
        return false, nil
    }
    return false, ErrInvalidOrder
}

// stableReverseTies reverses runs of equal timestamps so later inserts come first.
func stableReverseTies(rs []types.SessionRecord) {
    for i := 0; i < len(rs); {
        j := i + 1
        for j < len(rs) && rs[j].CreatedAt.Equal(rs[i].CreatedAt) {
            j++
        }
        for a, b := i, j-1; a < b; a, b = a+1, b-1 {
            rs[a], rs[b] = rs[b], rs[a]
        }
        i = j
    }
}

func applyProfileUpdate(p types.Profile, u types.ProfileUpdate) types.Profile {
    if u.PreferredLanguage != nil {
        p.PreferredLanguage = *u.PreferredLanguage
    }
    if u.VoiceEnabled != nil {
        p.VoiceEnabled = *u.VoiceEnabled
    }
    if u.SpeechRate != nil {
        p.SpeechRate = *u.SpeechRate
    }
    if u.ProgrammingLevel != nil {
        p.ProgrammingLevel = *u.ProgrammingLevel
    }
    if u.TotalSessions != nil {
        p.TotalSessions = *u.TotalSessions
    }
    if u.LearningStreak != nil {
        p.LearningStreak = *u.LearningStreak
    }
    if u.LastSessionAt != nil {
        t := *u.LastSessionAt
        p.LastSessionAt = &t
    }
    return p
}

func copyProfile(p types.Profile) types.Profile {
    if p.LastSessionAt != nil {
        t := *p.LastSessionAt
        p.LastSessionAt = &t
    }
    return p
}
