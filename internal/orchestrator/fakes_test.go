package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"

    "codetutor/voicedebug/internal/types"
)

type fakeAnalyzer struct {
    calls atomic.Int32
    gate  chan struct{}
    resp  types.Explanation
    err   error

    mu   sync.Mutex
    reqs []AnalysisRequest
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (types.Explanation, error) {
    f.calls.Add(1)
    f.mu.Lock()
    f.reqs = append(f.reqs, req)
    f.mu.Unlock()
    if f.gate != nil {
        select {
        case <-f.gate:
        case <-ctx.Done():
            return types.Explanation{}, ctx.Err()
        }
    }
    return f.resp, f.err
}

type fakeSessions struct {
    mu        sync.Mutex
    recs      []types.SessionRecord
    createErr error
}

func (f *fakeSessions) CreateSession(_ context.Context, rec types.SessionRecord) (string, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.createErr != nil {
        return "", f.createErr
    }
    rec.ID = fmt.Sprintf("rec-%d", len(f.recs)+1)
    f.recs = append(f.recs, rec)
    return rec.ID, nil
}

func (f *fakeSessions) ListSessions(_ context.Context, flt types.SessionFilter, order types.SessionOrder, limit int) ([]types.SessionRecord, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []types.SessionRecord
    for i := len(f.recs) - 1; i >= 0; i-- {
        if flt.UserID != "" && f.recs[i].UserID != flt.UserID {
            continue
        }
        out = append(out, f.recs[i])
        if limit > 0 && len(out) == limit {
            break
        }
    }
    return out, nil
}

func (f *fakeSessions) UpdateSession(_ context.Context, id string, u types.SessionUpdate) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for i := range f.recs {
        if f.recs[i].ID == id {
            if u.UserSatisfaction != nil {
                f.recs[i].UserSatisfaction = *u.UserSatisfaction
            }
            return nil
        }
    }
    return errors.New("not found")
}

func (f *fakeSessions) records() []types.SessionRecord {
    f.mu.Lock()
    defer f.mu.Unlock()
    return append([]types.SessionRecord{}, f.recs...)
}

type fakeProfiles struct {
    mu      sync.Mutex
    profile types.Profile
}

func (f *fakeProfiles) GetUser(_ context.Context, userID string) (types.Profile, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    p := f.profile
    p.UserID = userID
    return p, nil
}

func (f *fakeProfiles) UpdateUser(_ context.Context, _ string, u types.ProfileUpdate) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if u.TotalSessions != nil {
        f.profile.TotalSessions = *u.TotalSessions
    }
    if u.LearningStreak != nil {
        f.profile.LearningStreak = *u.LearningStreak
    }
    if u.LastSessionAt != nil {
        t := *u.LastSessionAt
        f.profile.LastSessionAt = &t
    }
    return nil
}

func (f *fakeProfiles) get() types.Profile {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.profile
}

type fakeSink struct {
    mu      sync.Mutex
    notices []Notice
    events  []string
}

func (f *fakeSink) Notify(_ string, n Notice) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.notices = append(f.notices, n)
}

func (f *fakeSink) Publish(_ string, eventType string, _ map[string]any) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.events = append(f.events, eventType)
}

func (f *fakeSink) noticeCodes() []string {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []string
    for _, n := range f.notices {
        out = append(out, n.Code)
    }
    return out
}

func (f *fakeSink) has(eventType string) bool {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, e := range f.events {
        if e == eventType {
            return true
        }
    }
    return false
}
