package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "codetutor/voicedebug/internal/auth"
    "codetutor/voicedebug/internal/health"
    "codetutor/voicedebug/internal/loop"
    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/store"
    "codetutor/voicedebug/internal/types"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, orchestrator.AnalysisRequest) (types.Explanation, error) {
    return types.Explanation{ErrorType: "NameError", SimpleExplanation: "x is not defined", Solution: "define x", LearningPoints: []string{"scope"}}, nil
}

type discardSender struct{}

func (discardSender) SendJSON(context.Context, string, any) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
    t.Helper()
    st := store.New()
    d := loop.New(stubAnalyzer{}, st, st, st, discardSender{}, loop.Options{Locale: "en-US"}, zerolog.Nop())
    t.Cleanup(d.CloseAll)
    h := NewHandlers(d, st, auth.Issuer{Secret: "s3cret", TTL: time.Minute, SkewSeconds: 5}, health.Checker{}, "anonymous", zerolog.Nop())
    srv := httptest.NewServer(NewRouter(h, nil))
    t.Cleanup(srv.Close)
    return srv
}

func do(t *testing.T, method, url string, body any, user string) (*http.Response, map[string]any) {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        require.NoError(t, json.NewEncoder(&buf).Encode(body))
    }
    req, err := http.NewRequest(method, url, &buf)
    require.NoError(t, err)
    if user != "" {
        req.Header.Set("X-User-ID", user)
    }
    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    defer resp.Body.Close()
    var out map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&out)
    return resp, out
}

func createSession(t *testing.T, srv *httptest.Server, user string) string {
    t.Helper()
    resp, body := do(t, http.MethodPost, srv.URL+"/sessions", nil, user)
    require.Equal(t, http.StatusCreated, resp.StatusCode)
    id, _ := body["session_id"].(string)
    require.NotEmpty(t, id)
    assert.NotEmpty(t, body["client_token"])
    return id
}

func TestUnknownSession404(t *testing.T) {
    srv := newTestServer(t)
    for _, tc := range []struct{ method, path string }{
        {http.MethodGet, "/sessions/unknown"},
        {http.MethodPost, "/sessions/unknown/analyze"},
        {http.MethodPut, "/sessions/unknown/code"},
        {http.MethodGet, "/sessions/unknown/events"},
    } {
        resp, _ := do(t, tc.method, srv.URL+tc.path, map[string]any{}, "")
        assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
    }
}

func TestMethodNotAllowed(t *testing.T) {
    srv := newTestServer(t)
    id := createSession(t, srv, "")
    resp, _ := do(t, http.MethodGet, srv.URL+"/sessions/"+id+"/analyze", nil, "")
    assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
    resp, _ = do(t, http.MethodGet, srv.URL+"/sessions", nil, "")
    assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAnalyzeFlowRecordsHistory(t *testing.T) {
    srv := newTestServer(t)
    id := createSession(t, srv, "ada")

    resp, _ := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/code", map[string]any{"code": "print(x)"}, "ada")
    require.Equal(t, http.StatusOK, resp.StatusCode)

    resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/analyze", nil, "ada")
    require.Equal(t, http.StatusAccepted, resp.StatusCode)

    require.Eventually(t, func() bool {
        _, body := do(t, http.MethodGet, srv.URL+"/sessions/"+id, nil, "ada")
        return body["explanation"] != nil
    }, 2*time.Second, 10*time.Millisecond)

    _, hist := do(t, http.MethodGet, srv.URL+"/history?language=python", nil, "ada")
    sessions, _ := hist["sessions"].([]any)
    require.Len(t, sessions, 1)
    rec := sessions[0].(map[string]any)
    assert.Equal(t, "print(x)", rec["code_input"])
    assert.Equal(t, "x is not defined", rec["explanation_provided"])

    _, prog := do(t, http.MethodGet, srv.URL+"/progress", nil, "ada")
    assert.EqualValues(t, 1, prog["total_sessions"])

    resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/rate", map[string]any{"rating": 5}, "ada")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/rate", map[string]any{"rating": 9}, "ada")
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidationErrors(t *testing.T) {
    srv := newTestServer(t)
    id := createSession(t, srv, "")

    resp, _ := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/code", map[string]any{"code": "   "}, "")
    require.Equal(t, http.StatusOK, resp.StatusCode)
    resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/analyze", nil, "")
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

    resp, _ = do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/language", map[string]any{"language": "cobol"}, "")
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

    resp, body := do(t, http.MethodPut, srv.URL+"/sessions/"+id+"/language", map[string]any{"language": "java"}, "")
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "java", body["language"])
    assert.Contains(t, body["code"], "public class Main")

    resp, _ = do(t, http.MethodGet, srv.URL+"/history?limit=-1", nil, "")
    assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionsAreScopedToUser(t *testing.T) {
    srv := newTestServer(t)
    id := createSession(t, srv, "ada")
    resp, _ := do(t, http.MethodGet, srv.URL+"/sessions/"+id, nil, "grace")
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
    resp, _ = do(t, http.MethodDelete, srv.URL+"/sessions/"+id, nil, "ada")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    resp, _ = do(t, http.MethodGet, srv.URL+"/sessions/"+id, nil, "ada")
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenWithoutClientConflicts(t *testing.T) {
    srv := newTestServer(t)
    id := createSession(t, srv, "")
    resp, _ := do(t, http.MethodPost, srv.URL+"/sessions/"+id+"/listen", nil, "")
    assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestProfileUpdateClampsRate(t *testing.T) {
    srv := newTestServer(t)
    createSession(t, srv, "ada")
    resp, body := do(t, http.MethodPut, srv.URL+"/profile", map[string]any{"speech_rate": 3.5, "voice_enabled": false, "total_sessions": 99}, "ada")
    require.Equal(t, http.StatusOK, resp.StatusCode)
    assert.EqualValues(t, 2.0, body["speech_rate"])
    assert.Equal(t, false, body["voice_enabled"])
    assert.EqualValues(t, 0, body["total_sessions"])
}
