package clientws

import (
    "encoding/json"
    "net/http"
    "time"

    "codetutor/voicedebug/internal/auth"
    "codetutor/voicedebug/internal/types"
    "github.com/rs/zerolog"
    ws "nhooyr.io/websocket"
)

// Router receives the traffic of connected voice clients.
type Router interface {
    Exists(sessionID string) bool
    OnConnect(sessionID string)
    OnMessage(sessionID string, msg Message)
    OnDisconnect(sessionID string)
}

// EventLog records connection events.
type EventLog interface {
    AppendEvent(sessionID, typ string, payload map[string]any) types.Event
}

type Server struct {
    Tokens auth.Issuer
    Reg    *Registry
    Router Router
    Events EventLog
    Log    zerolog.Logger
    // OriginPatterns is passed to websocket.Accept for cross-origin browsers.
    OriginPatterns []string
}

func NewServer(tokens auth.Issuer, reg *Registry, router Router, events EventLog, log zerolog.Logger) *Server {
    return &Server{Tokens: tokens, Reg: reg, Router: router, Events: events, Log: log}
}

// HandleClientWS upgrades an authenticated voice client for one session and
// pumps its messages into the router until it disconnects.
func (s *Server) HandleClientWS(w http.ResponseWriter, r *http.Request) {
    sessionID := r.URL.Query().Get("session_id")
    if sessionID == "" {
        metricConnections.WithLabelValues("bad_request").Inc()
        http.Error(w, "missing session_id", http.StatusBadRequest)
        return
    }
    if !s.Router.Exists(sessionID) {
        metricConnections.WithLabelValues("unknown_session").Inc()
        http.Error(w, "unknown session", http.StatusNotFound)
        return
    }
    token, err := auth.TokenFromRequest(r)
    if err != nil {
        metricConnections.WithLabelValues("unauthorized").Inc()
        http.Error(w, "missing bearer token", http.StatusUnauthorized)
        return
    }
    if err := s.Tokens.Validate(token, sessionID, time.Now()); err != nil {
        metricConnections.WithLabelValues("unauthorized").Inc()
        http.Error(w, "invalid token", http.StatusUnauthorized)
        return
    }

    c, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: s.OriginPatterns})
    if err != nil {
        metricConnections.WithLabelValues("accept_failed").Inc()
        s.Log.Warn().Err(err).Str("session_id", sessionID).Msg("ws accept")
        return
    }
    metricConnections.WithLabelValues("ok").Inc()
    if s.Reg.Replace(sessionID, c) {
        s.Events.AppendEvent(sessionID, "client_replaced", nil)
    }
    s.Events.AppendEvent(sessionID, "client_connected", nil)
    s.Router.OnConnect(sessionID)

    ctx := r.Context()
    for {
        typ, data, err := c.Read(ctx)
        if err != nil {
            break
        }
        if typ != ws.MessageText && typ != ws.MessageBinary {
            continue
        }
        var msg Message
        if err := json.Unmarshal(data, &msg); err != nil {
            s.Events.AppendEvent(sessionID, "client_msg_invalid", map[string]any{"error": err.Error()})
            continue
        }
        msg.SessionID = sessionID
        metricMessages.WithLabelValues(typeLabel(msg.Type)).Inc()
        s.Router.OnMessage(sessionID, msg)
    }
    _ = c.Close(ws.StatusNormalClosure, "done")
    if s.Reg.Remove(sessionID, c) {
        s.Router.OnDisconnect(sessionID)
        s.Events.AppendEvent(sessionID, "client_disconnected", nil)
    }
}

var knownTypes = map[string]bool{
    TypeClientHello: true, TypeListenStart: true, TypeListenStop: true,
    TypeRecognitionStart: true, TypeRecognitionResult: true, TypeRecognitionError: true, TypeRecognitionEnd: true,
    TypeSynthesisStart: true, TypeSynthesisEnd: true, TypeSynthesisError: true,
    TypeSpeakStop: true, TypeUISettled: true,
}

func typeLabel(t string) string {
    if knownTypes[t] {
        return t
    }
    return "unknown"
}
