// Package analysis talks to an OpenAI-compatible chat-completions endpoint
// and turns its JSON answer into an Explanation.
package analysis

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "codetutor/voicedebug/internal/orchestrator"
    "codetutor/voicedebug/internal/types"
)

var ErrNotConfigured = errors.New("analysis: api key missing")

type Client struct {
    HTTPClient *http.Client
    BaseURL    string
    APIKey     string
    Model      string
    APIVersion string
}

type chatMessage struct {
    Role    string `json:"role"`
    Content string `json:"content"`
}

type responseFormat struct {
    Type string `json:"type"`
}

type chatCompletionsRequest struct {
    Model          string          `json:"model,omitempty"`
    Messages       []chatMessage   `json:"messages"`
    ResponseFormat *responseFormat `json:"response_format,omitempty"`
    Temperature    float64         `json:"temperature,omitempty"`
}

type chatChoice struct {
    Index        int         `json:"index"`
    FinishReason string      `json:"finish_reason"`
    Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
    ID      string       `json:"id"`
    Model   string       `json:"model"`
    Choices []chatChoice `json:"choices"`
}

func NewClient(baseURL, apiKey, model, apiVersion string, timeout time.Duration) *Client {
    return &Client{
        HTTPClient: &http.Client{Timeout: timeout},
        BaseURL:    strings.TrimRight(baseURL, "/"),
        APIKey:     apiKey,
        Model:      model,
        APIVersion: apiVersion,
    }
}

// Endpoint returns the chat-completions URL. With an APIVersion the Azure
// deployment route is used and Model names the deployment.
func (c *Client) Endpoint() string {
    if c.APIVersion != "" {
        return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", c.BaseURL, c.Model, c.APIVersion)
    }
    return c.BaseURL + "/chat/completions"
}

// Analyze performs a single request. There is no retry.
func (c *Client) Analyze(ctx context.Context, in orchestrator.AnalysisRequest) (types.Explanation, error) {
    if c.APIKey == "" {
        metricRequests.WithLabelValues("not_configured").Inc()
        return types.Explanation{}, ErrNotConfigured
    }
    body := chatCompletionsRequest{
        Messages: []chatMessage{
            {Role: "system", Content: systemPrompt},
            {Role: "user", Content: BuildPrompt(in)},
        },
        ResponseFormat: &responseFormat{Type: "json_object"},
        Temperature:    0.2,
    }
    if c.APIVersion == "" {
        body.Model = c.Model
    }
    reqBytes, _ := json.Marshal(body)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(reqBytes))
    if err != nil {
        return types.Explanation{}, err
    }
    if c.APIVersion != "" {
        req.Header.Set("api-key", c.APIKey)
    } else {
        req.Header.Set("Authorization", "Bearer "+c.APIKey)
    }
    req.Header.Set("Content-Type", "application/json")

    start := time.Now()
    resp, err := c.HTTPClient.Do(req)
    if err != nil {
        metricRequests.WithLabelValues("transport").Inc()
        return types.Explanation{}, fmt.Errorf("analysis request: %w", err)
    }
    defer resp.Body.Close()
    metricLatency.Observe(float64(time.Since(start).Milliseconds()))

    if resp.StatusCode/100 != 2 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
        metricRequests.WithLabelValues("http_error").Inc()
        return types.Explanation{}, fmt.Errorf("analysis: status=%d body=%s", resp.StatusCode, string(b))
    }
    var cr chatCompletionsResponse
    if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
        metricRequests.WithLabelValues("malformed").Inc()
        return types.Explanation{}, fmt.Errorf("analysis: decode response: %w", err)
    }
    if len(cr.Choices) == 0 {
        metricRequests.WithLabelValues("malformed").Inc()
        return types.Explanation{}, fmt.Errorf("analysis: empty choices")
    }
    exp, err := Parse(cr.Choices[0].Message.Content)
    if err != nil {
        metricRequests.WithLabelValues("malformed").Inc()
        return types.Explanation{}, err
    }
    metricRequests.WithLabelValues("ok").Inc()
    return exp, nil
}
