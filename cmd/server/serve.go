package main

import (
    "context"
    "errors"
    "net"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "codetutor/voicedebug/internal/analysis"
    "codetutor/voicedebug/internal/api"
    "codetutor/voicedebug/internal/auth"
    "codetutor/voicedebug/internal/clientws"
    "codetutor/voicedebug/internal/config"
    "codetutor/voicedebug/internal/health"
    "codetutor/voicedebug/internal/logging"
    "codetutor/voicedebug/internal/loop"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/spf13/cobra"
    "google.golang.org/grpc"
    grpchealth "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newServeCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the HTTP API, voice client socket and gRPC health service",
        RunE: func(cmd *cobra.Command, _ []string) error {
            return serve(cmd.Context(), config.Load())
        },
    }
}

func serve(ctx context.Context, cfg config.Config) error {
    log := logging.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)

    st, pinger, err := openStore(ctx, cfg, log)
    if err != nil {
        log.Error().Err(err).Msg("open store")
        return err
    }
    defer st.Close()

    if cfg.Analysis.APIKey == "" {
        log.Warn().Msg("ANALYSIS_API_KEY not set; analyze requests will fail")
    }
    if cfg.Client.TokenSecret == "" {
        log.Warn().Msg("CLIENT_TOKEN_SECRET not set; voice clients cannot connect")
    }

    analyzer := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.APIKey, cfg.Analysis.Model, cfg.Analysis.APIVersion, cfg.Analysis.Timeout)
    tokens := auth.Issuer{
        Secret:      cfg.Client.TokenSecret,
        TTL:         time.Duration(cfg.Client.TokenTTLMin) * time.Minute,
        SkewSeconds: cfg.Client.TokenSkewSecs,
    }

    reg := clientws.NewRegistry()
    disp := loop.New(analyzer, st, st, st, reg, loop.Options{
        Locale:       cfg.Voice.Locale,
        Pitch:        cfg.Voice.Pitch,
        Volume:       cfg.Voice.Volume,
        AwaitSettle:  cfg.Voice.AwaitSettle,
        SpeakTimeout: time.Duration(cfg.Voice.SpeakTimeoutSecs) * time.Second,
    }, logging.Component(log, "loop"))
    wss := clientws.NewServer(tokens, reg, disp, st, logging.Component(log, "clientws"))
    wss.OriginPatterns = cfg.Client.OriginPatterns

    checker := health.Checker{Cfg: cfg, DB: pinger}
    h := api.NewHandlers(disp, st, tokens, checker, cfg.Voice.DefaultUser, logging.Component(log, "api"))

    mux := http.NewServeMux()
    mux.Handle("/", api.NewRouter(h, http.HandlerFunc(wss.HandleClientWS)))
    mux.Handle("/metrics", promhttp.Handler())

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           logMiddleware(log, mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    gs := grpc.NewServer()
    hs := grpchealth.NewServer()
    healthpb.RegisterHealthServer(gs, hs)
    hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
    if cfg.Server.GRPCAddr != "" {
        lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
        if err != nil {
            log.Error().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("grpc listen")
            return err
        }
        go func() {
            log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc health listening")
            if err := gs.Serve(lis); err != nil {
                log.Error().Err(err).Msg("grpc serve")
            }
        }()
    }

    // Graceful shutdown on SIGINT/SIGTERM
    sigc := make(chan os.Signal, 1)
    signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
    go func() {
        <-sigc
        log.Info().Msg("shutdown signal received; stopping server")
        hs.Shutdown()
        // Stop live sessions before draining HTTP
        disp.CloseAll()
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = srv.Shutdown(ctx)
        gs.GracefulStop()
    }()

    log.Info().Str("addr", srv.Addr).Msg("server starting")
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Error().Err(err).Msg("server error")
        return err
    }
    return nil
}
