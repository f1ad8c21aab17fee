package loop

import (
    "context"
    "sync"
    "testing"
    "time"

    "codetutor/voicedebug/internal/clientws"
    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/speech"
    "codetutor/voicedebug/internal/store"
    "codetutor/voicedebug/internal/types"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
    gate chan struct{}
}

func (a *stubAnalyzer) Analyze(ctx context.Context, _ orchestrator.AnalysisRequest) (types.Explanation, error) {
    if a.gate != nil {
        select {
        case <-a.gate:
        case <-ctx.Done():
            return types.Explanation{}, ctx.Err()
        }
    }
    return types.Explanation{ErrorType: "TypeError", SimpleExplanation: "missing argument", Solution: "pass a name", LearningPoints: []string{"arguments"}}, nil
}

type recordingSender struct {
    mu   sync.Mutex
    msgs []clientws.Message
}

func (r *recordingSender) SendJSON(_ context.Context, _ string, v any) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.msgs = append(r.msgs, v.(clientws.Message))
    return nil
}

func (r *recordingSender) ofType(typ string) []clientws.Message {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out []clientws.Message
    for _, m := range r.msgs {
        if m.Type == typ {
            out = append(out, m)
        }
    }
    return out
}

func (r *recordingSender) waitFor(t *testing.T, typ string, n int) []clientws.Message {
    t.Helper()
    require.Eventually(t, func() bool { return len(r.ofType(typ)) >= n }, 2*time.Second, 5*time.Millisecond, "waiting for %d %s", n, typ)
    return r.ofType(typ)
}

func newDispatcher(t *testing.T, an *stubAnalyzer, awaitSettle bool) (*Dispatcher, *recordingSender, *store.Store, string) {
    t.Helper()
    st := store.New()
    out := &recordingSender{}
    d := New(an, st, st, st, out, Options{Locale: "en-US", AwaitSettle: awaitSettle}, zerolog.Nop())
    id, err := d.Open(context.Background(), "u1")
    require.NoError(t, err)
    t.Cleanup(d.CloseAll)
    d.OnConnect(id)
    d.OnMessage(id, clientws.Message{Type: clientws.TypeClientHello, Payload: map[string]any{"recognition": true, "synthesis": true}})
    return d, out, st, id
}

func (r *recordingSender) lastCapture(t *testing.T, n int) string {
    t.Helper()
    starts := r.waitFor(t, clientws.TypeRecognizeStart, n)
    return starts[n-1].Str("capture_id")
}

func TestVoiceAnalyzeNarrates(t *testing.T) {
    d, out, st, id := newDispatcher(t, &stubAnalyzer{}, false)

    d.OnMessage(id, clientws.Message{Type: clientws.TypeListenStart})
    capture := out.lastCapture(t, 1)
    d.OnMessage(id, clientws.Message{Type: clientws.TypeRecognitionResult, Payload: map[string]any{"capture_id": capture, "transcript": "Analyze my code"}})

    speaks := out.waitFor(t, clientws.TypeSpeak, 1)
    assert.Equal(t, "I found a TypeError. Here is what's wrong: missing argument. And here is how to fix it: pass a name.", speaks[0].Str("text"))
    assert.Equal(t, 0.8, speaks[0].Payload["volume"])

    recs, err := st.ListSessions(context.Background(), types.SessionFilter{UserID: "u1"}, types.OrderCreatedDesc, 0)
    require.NoError(t, err)
    require.Len(t, recs, 1)
    assert.True(t, recs[0].VoiceUsed)

    v, err := d.View(id)
    require.NoError(t, err)
    assert.True(t, v.Speaking)
    assert.False(t, v.Listening)
    assert.True(t, v.ClientConnected)

    d.OnMessage(id, clientws.Message{Type: clientws.TypeSynthesisEnd, UtteranceID: speaks[0].UtteranceID})
    v, _ = d.View(id)
    assert.False(t, v.Speaking)
}

func TestListenPreemptsSpeech(t *testing.T) {
    d, out, _, id := newDispatcher(t, &stubAnalyzer{}, false)
    o, err := d.Orchestrator(id)
    require.NoError(t, err)
    require.NoError(t, o.HandleTranscript(context.Background(), "help"))
    out.waitFor(t, clientws.TypeSpeak, 1)

    d.OnMessage(id, clientws.Message{Type: clientws.TypeListenStart})
    out.waitFor(t, clientws.TypeSpeakCancel, 1)
    out.lastCapture(t, 1)

    v, _ := d.View(id)
    assert.True(t, v.Listening)
    assert.False(t, v.Speaking)
}

func TestNarrationPreemptsListening(t *testing.T) {
    an := &stubAnalyzer{gate: make(chan struct{})}
    d, out, _, id := newDispatcher(t, an, false)
    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "analyze"))

    d.OnMessage(id, clientws.Message{Type: clientws.TypeListenStart})
    capture := out.lastCapture(t, 1)
    close(an.gate)

    stops := out.waitFor(t, clientws.TypeRecognizeStop, 1)
    assert.Equal(t, capture, stops[0].Str("capture_id"))
    out.waitFor(t, clientws.TypeSpeak, 1)

    // the late result of the cancelled capture is ignored
    d.OnMessage(id, clientws.Message{Type: clientws.TypeRecognitionResult, Payload: map[string]any{"capture_id": capture, "transcript": "clear"}})
    v, _ := d.View(id)
    assert.NotNil(t, v.Explanation)
}

func TestNarrationWaitsForSettle(t *testing.T) {
    d, out, _, id := newDispatcher(t, &stubAnalyzer{}, true)
    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "analyze"))
    require.Eventually(t, func() bool {
        v, _ := d.View(id)
        return v.Explanation != nil
    }, 2*time.Second, 5*time.Millisecond)
    assert.Empty(t, out.ofType(clientws.TypeSpeak))

    v, _ := d.View(id)
    d.OnMessage(id, clientws.Message{Type: clientws.TypeUISettled, Payload: map[string]any{"revision": float64(v.Revision)}})
    out.waitFor(t, clientws.TypeSpeak, 1)
}

func TestListenWithoutClientNotifies(t *testing.T) {
    d, out, _, id := newDispatcher(t, &stubAnalyzer{}, false)
    d.OnDisconnect(id)
    d.OnMessage(id, clientws.Message{Type: clientws.TypeListenStart})

    notices := out.waitFor(t, clientws.TypeNotice, 1)
    assert.Equal(t, orchestrator.NoticeCapabilityUnavailable, notices[len(notices)-1].Str("code"))
    assert.Empty(t, out.ofType(clientws.TypeRecognizeStart))
}

func TestCloseSession(t *testing.T) {
    d, _, _, id := newDispatcher(t, &stubAnalyzer{}, false)
    events, err := d.Events(id)
    require.NoError(t, err)
    assert.NotEmpty(t, events)

    require.NoError(t, d.Close(id))
    assert.False(t, d.Exists(id))
    assert.ErrorIs(t, d.Close(id), ErrUnknownSession)
    _, err = d.View(id)
    assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRefreshPreferences(t *testing.T) {
    d, out, st, id := newDispatcher(t, &stubAnalyzer{}, false)
    off := false
    require.NoError(t, st.UpdateUser(context.Background(), "u1", types.ProfileUpdate{VoiceEnabled: &off}))
    d.RefreshPreferences(context.Background(), "u1")

    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "analyze"))
    require.Eventually(t, func() bool {
        v, _ := d.View(id)
        return v.Explanation != nil
    }, 2*time.Second, 5*time.Millisecond)
    require.NoError(t, o.HandleTranscript(context.Background(), "explain again"))
    time.Sleep(50 * time.Millisecond)
    assert.Empty(t, out.ofType(clientws.TypeSpeak))
}

func hello(d *Dispatcher, id string, recognition, synthesis bool) {
    d.OnMessage(id, clientws.Message{Type: clientws.TypeClientHello, Payload: map[string]any{"recognition": recognition, "synthesis": synthesis}})
}

func TestMutedNarrationKeepsCapture(t *testing.T) {
    d, out, _, id := newDispatcher(t, &stubAnalyzer{}, false)
    hello(d, id, true, false)
    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "analyze"))
    require.Eventually(t, func() bool {
        v, _ := d.View(id)
        return v.Explanation != nil
    }, 2*time.Second, 5*time.Millisecond)

    d.OnMessage(id, clientws.Message{Type: clientws.TypeListenStart})
    out.lastCapture(t, 1)
    require.NoError(t, o.HandleTranscript(context.Background(), "explain again"))

    require.Never(t, func() bool { return len(out.ofType(clientws.TypeRecognizeStop)) > 0 }, 100*time.Millisecond, 5*time.Millisecond)
    assert.Empty(t, out.ofType(clientws.TypeSpeak))
    v, _ := d.View(id)
    assert.True(t, v.Listening)
}

func TestRejectedListenKeepsPlayback(t *testing.T) {
    d, out, _, id := newDispatcher(t, &stubAnalyzer{}, false)
    hello(d, id, false, true)
    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "help"))
    out.waitFor(t, clientws.TypeSpeak, 1)

    err := d.Listen(context.Background(), id)
    require.ErrorIs(t, err, speech.ErrUnavailable)

    assert.Empty(t, out.ofType(clientws.TypeSpeakCancel))
    v, _ := d.View(id)
    assert.True(t, v.Speaking)
    assert.False(t, v.Listening)
}

func TestConfiguredToneReachesClient(t *testing.T) {
    st := store.New()
    out := &recordingSender{}
    d := New(&stubAnalyzer{}, st, st, st, out, Options{Locale: "en-US", Pitch: 1.1, Volume: 0.5}, zerolog.Nop())
    t.Cleanup(d.CloseAll)
    id, err := d.Open(context.Background(), "u1")
    require.NoError(t, err)
    d.OnConnect(id)
    hello(d, id, true, true)

    o, _ := d.Orchestrator(id)
    require.NoError(t, o.HandleTranscript(context.Background(), "analyze"))
    speaks := out.waitFor(t, clientws.TypeSpeak, 1)
    assert.Equal(t, 1.1, speaks[0].Payload["pitch"])
    assert.Equal(t, 0.5, speaks[0].Payload["volume"])
}
