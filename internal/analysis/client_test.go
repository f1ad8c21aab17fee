package analysis

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/types"
)

func completion(content string) string {
    b, _ := json.Marshal(map[string]any{
        "id":      "cmpl-1",
        "choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
    })
    return string(b)
}

func TestAnalyze_NoKey(t *testing.T) {
    c := NewClient("http://127.0.0.1:1", "", "model", "", time.Second)
    if _, err := c.Analyze(context.Background(), orchestrator.AnalysisRequest{Code: "x"}); !errors.Is(err, ErrNotConfigured) {
        t.Fatalf("expected ErrNotConfigured, got %v", err)
    }
}

func TestAnalyze_OK(t *testing.T) {
    var gotAuth, gotPath string
    var gotBody chatCompletionsRequest
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotAuth = r.Header.Get("Authorization")
        gotPath = r.URL.Path
        _ = json.NewDecoder(r.Body).Decode(&gotBody)
        _, _ = w.Write([]byte(completion(`{"error_type":"NameError","simple_explanation":"x is undefined","solution":"define x before returning it","learning_points":["variable scope"]}`)))
    }))
    defer srv.Close()

    c := NewClient(srv.URL+"/v1/", "key", "gpt-test", "", time.Second)
    exp, err := c.Analyze(context.Background(), orchestrator.AnalysisRequest{Code: "def f():\n  return x", Language: types.LanguagePython, SkillLevel: "beginner"})
    if err != nil {
        t.Fatalf("analyze: %v", err)
    }
    if exp.ErrorType != "NameError" || exp.Solution != "define x before returning it" || len(exp.LearningPoints) != 1 {
        t.Fatalf("unexpected explanation: %+v", exp)
    }
    if gotAuth != "Bearer key" {
        t.Fatalf("expected bearer auth, got %q", gotAuth)
    }
    if gotPath != "/v1/chat/completions" {
        t.Fatalf("unexpected path %q", gotPath)
    }
    if gotBody.Model != "gpt-test" || len(gotBody.Messages) != 2 {
        t.Fatalf("unexpected request body: %+v", gotBody)
    }
    if !strings.Contains(gotBody.Messages[1].Content, "helping a beginner programmer") {
        t.Fatalf("prompt missing skill level: %q", gotBody.Messages[1].Content)
    }
}

func TestAnalyze_AzureRoute(t *testing.T) {
    var gotKey, gotURL string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotKey = r.Header.Get("api-key")
        gotURL = r.URL.String()
        _, _ = w.Write([]byte(completion(`{"error_type":"None","simple_explanation":"fine","solution":"nothing"}`)))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, "secret", "tutor-deploy", "2024-02-15-preview", time.Second)
    exp, err := c.Analyze(context.Background(), orchestrator.AnalysisRequest{Code: "x", Language: types.LanguageJava})
    if err != nil {
        t.Fatalf("analyze: %v", err)
    }
    if gotKey != "secret" {
        t.Fatalf("expected api-key header, got %q", gotKey)
    }
    if gotURL != "/openai/deployments/tutor-deploy/chat/completions?api-version=2024-02-15-preview" {
        t.Fatalf("unexpected url %q", gotURL)
    }
    if exp.LearningPoints == nil || len(exp.LearningPoints) != 0 {
        t.Fatalf("expected empty learning points, got %#v", exp.LearningPoints)
    }
}

func TestAnalyze_Failures(t *testing.T) {
    cases := []struct {
        name    string
        handler http.HandlerFunc
    }{
        {"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
        {"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
        {"empty_choices", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"choices":[]}`)) }},
        {"schema_mismatch", func(w http.ResponseWriter, r *http.Request) {
            _, _ = w.Write([]byte(completion(`{"error_type":"X","solution":"y"}`)))
        }},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            srv := httptest.NewServer(tc.handler)
            defer srv.Close()
            c := NewClient("https://example.invalid", "key", "model", "", time.Second)
            c.HTTPClient.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
                req.URL.Scheme = "http"
                req.URL.Host = srv.Listener.Addr().String()
                return http.DefaultTransport.RoundTrip(req)
            })
            if _, err := c.Analyze(context.Background(), orchestrator.AnalysisRequest{Code: "x"}); err == nil {
                t.Fatalf("expected error; got nil")
            }
        })
    }
}

func TestAnalyze_Timeout(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        time.Sleep(200 * time.Millisecond)
    }))
    defer srv.Close()
    c := NewClient(srv.URL, "key", "model", "", 20*time.Millisecond)
    if _, err := c.Analyze(context.Background(), orchestrator.AnalysisRequest{Code: "x"}); err == nil {
        t.Fatalf("expected timeout error")
    }
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
