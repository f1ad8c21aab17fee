package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

type Config struct {
    Server struct {
        Port      string
        GRPCAddr  string
        LogLevel  string
        LogFormat string
    }
    Analysis struct {
        BaseURL    string
        APIKey     string
        Model      string
        APIVersion string // Azure deployment route when set
        Timeout    time.Duration
    }
    Database struct {
        URL string
    }
    Client struct {
        TokenSecret   string
        TokenTTLMin   int
        TokenSkewSecs int
        // OriginPatterns lists the browser origins allowed to open the voice socket.
        OriginPatterns []string
    }
    Voice struct {
        Locale           string
        Pitch            float64
        Volume           float64
        AwaitSettle      bool
        DefaultUser      string
        SpeakTimeoutSecs int
    }
}

func Load() Config {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    // Defaults
    v.SetDefault("server.port", 8080)
    v.SetDefault("server.grpc_addr", ":9090")
    v.SetDefault("server.log_level", "info")
    v.SetDefault("server.log_format", "console")

    v.SetDefault("analysis.base_url", "https://api.openai.com/v1")
    v.SetDefault("analysis.model", "gpt-4o-mini")
    v.SetDefault("analysis.timeout", "60s")

    v.SetDefault("client.token_ttl_min", 720)
    v.SetDefault("client.token_skew_secs", 30)

    v.SetDefault("voice.locale", "en-US")
    v.SetDefault("voice.pitch", 1.0)
    v.SetDefault("voice.volume", 0.8)
    v.SetDefault("voice.await_settle", true)
    v.SetDefault("voice.default_user", "local")
    v.SetDefault("voice.speak_timeout_secs", 120)

    // Map envs
    v.BindEnv("server.port", "PORT")
    v.BindEnv("server.grpc_addr", "GRPC_ADDR")
    v.BindEnv("server.log_level", "LOG_LEVEL")
    v.BindEnv("server.log_format", "LOG_FORMAT")

    v.BindEnv("analysis.base_url", "ANALYSIS_BASE_URL")
    v.BindEnv("analysis.api_key", "ANALYSIS_API_KEY")
    v.BindEnv("analysis.model", "ANALYSIS_MODEL")
    v.BindEnv("analysis.api_version", "ANALYSIS_API_VERSION")
    v.BindEnv("analysis.timeout", "ANALYSIS_TIMEOUT")

    v.BindEnv("database.url", "DATABASE_URL")

    v.BindEnv("client.token_secret", "CLIENT_TOKEN_SECRET")
    v.BindEnv("client.token_ttl_min", "CLIENT_TOKEN_TTL_MIN")
    v.BindEnv("client.token_skew_secs", "CLIENT_TOKEN_SKEW_SECS")
    v.BindEnv("client.origin_patterns", "CLIENT_ORIGIN_PATTERNS")

    v.BindEnv("voice.locale", "VOICE_LOCALE")
    v.BindEnv("voice.pitch", "VOICE_PITCH")
    v.BindEnv("voice.volume", "VOICE_VOLUME")
    v.BindEnv("voice.await_settle", "NARRATION_AWAIT_SETTLE")
    v.BindEnv("voice.default_user", "DEFAULT_USER_ID")
    v.BindEnv("voice.speak_timeout_secs", "VOICE_SPEAK_TIMEOUT_SECS")

    var c Config
    c.Server.Port = toString(v.Get("server.port"))
    c.Server.GRPCAddr = v.GetString("server.grpc_addr")
    c.Server.LogLevel = v.GetString("server.log_level")
    c.Server.LogFormat = v.GetString("server.log_format")

    c.Analysis.BaseURL = strings.TrimRight(v.GetString("analysis.base_url"), "/")
    c.Analysis.APIKey = v.GetString("analysis.api_key")
    c.Analysis.Model = v.GetString("analysis.model")
    c.Analysis.APIVersion = v.GetString("analysis.api_version")
    c.Analysis.Timeout = v.GetDuration("analysis.timeout")
    if c.Analysis.Timeout <= 0 {
        c.Analysis.Timeout = 60 * time.Second
    }

    c.Database.URL = v.GetString("database.url")

    c.Client.TokenSecret = v.GetString("client.token_secret")
    c.Client.TokenTTLMin = v.GetInt("client.token_ttl_min")
    c.Client.TokenSkewSecs = v.GetInt("client.token_skew_secs")
    c.Client.OriginPatterns = splitList(v.GetString("client.origin_patterns"))

    c.Voice.Locale = v.GetString("voice.locale")
    // pitch and volume are fixed for every utterance of the process
    c.Voice.Pitch = v.GetFloat64("voice.pitch")
    if c.Voice.Pitch <= 0 {
        c.Voice.Pitch = 1.0
    }
    c.Voice.Volume = v.GetFloat64("voice.volume")
    if c.Voice.Volume <= 0 || c.Voice.Volume > 1 {
        c.Voice.Volume = 0.8
    }
    c.Voice.AwaitSettle = v.GetBool("voice.await_settle")
    c.Voice.DefaultUser = v.GetString("voice.default_user")
    c.Voice.SpeakTimeoutSecs = v.GetInt("voice.speak_timeout_secs")

    return c
}

func toString(v any) string { return fmt.Sprint(v) }

// splitList parses a comma-separated value, dropping empty entries.
func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
