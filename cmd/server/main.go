package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "time"

    "codetutor/voicedebug/internal/api"
    "codetutor/voicedebug/internal/config"
    "codetutor/voicedebug/internal/health"
    "codetutor/voicedebug/internal/logging"
    "codetutor/voicedebug/internal/loop"
    "codetutor/voicedebug/internal/store"
    "github.com/joho/godotenv"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"
)

// backend is what the server needs from either store implementation.
type backend interface {
    api.Records
    loop.EventLog
    Close() error
}

func main() {
    // Load .env file if present (ignored if missing)
    _ = godotenv.Load()

    root := &cobra.Command{
        Use:          "voicedebug",
        Short:        "Voice-driven debugging tutor server",
        SilenceUsage: true,
    }
    root.AddCommand(newServeCommand(), newCheckCommand())
    if err := root.Execute(); err != nil {
        os.Exit(1)
    }
}

// openStore picks Postgres when DATABASE_URL is set and memory otherwise.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend, health.Pinger, error) {
    if cfg.Database.URL == "" {
        log.Warn().Msg("DATABASE_URL not set; history and profiles are kept in memory")
        return store.New(), nil, nil
    }
    pg, err := store.NewPostgres(ctx, cfg.Database.URL, logging.Component(log, "store"))
    if err != nil {
        return nil, nil, err
    }
    return pg, pg, nil
}

func newCheckCommand() *cobra.Command {
    var timeout time.Duration
    cmd := &cobra.Command{
        Use:   "check",
        Short: "Check connectivity to the analysis service and database",
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg := config.Load()
            log := logging.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
            ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
            defer cancel()

            checker := health.Checker{Cfg: cfg}
            if cfg.Database.URL != "" {
                st, pinger, err := openStore(ctx, cfg, log)
                if err != nil {
                    return err
                }
                defer st.Close()
                checker.DB = pinger
            }
            st := checker.CheckAll(ctx)
            fmt.Fprint(cmd.OutOrStdout(), st.String())
            if !st.OK {
                return fmt.Errorf("health check failed")
            }
            return nil
        },
    }
    cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall check timeout")
    return cmd
}

func logMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("http")
    })
}
