package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"codetutor/voicedebug/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
	Note    string        `json:"note,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		if c.Note != "" {
			s += fmt.Sprintf(" (%s)", c.Note)
		}
		s += "\n"
	}
	return s
}

// Checker runs the dependency checks used by /readyz and the check command.
type Checker struct {
	Cfg  config.Config
	DB   Pinger
	HTTP *http.Client
}

// CheckAll runs all health checks and returns combined status
func (c Checker) CheckAll(ctx context.Context) HealthStatus {
	checks := []CheckResult{
		c.checkAnalysis(ctx),
		c.checkDatabase(ctx),
	}

	allOK := true
	for _, r := range checks {
		if !r.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func (c Checker) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c Checker) checkAnalysis(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "analysis"}
	cfg := c.Cfg.Analysis

	if cfg.APIKey == "" {
		result.Error = "ANALYSIS_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}

	// List models (lightweight call); Azure deployments answer on the deployments route
	url := cfg.BaseURL + "/models"
	if cfg.APIVersion != "" {
		url = fmt.Sprintf("%s/openai/deployments?api-version=%s", cfg.BaseURL, cfg.APIVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	if cfg.APIVersion != "" {
		req.Header.Set("api-key", cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized {
		result.Error = "invalid API key (401)"
		return result
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}

	result.OK = true
	return result
}

func (c Checker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "database"}

	if c.Cfg.Database.URL == "" || c.DB == nil {
		result.OK = true
		result.Note = "in-memory store"
		result.Latency = time.Since(start)
		return result
	}
	if err := c.DB.Ping(ctx); err != nil {
		result.Error = fmt.Sprintf("ping failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	result.Latency = time.Since(start)
	result.OK = true
	return result
}
