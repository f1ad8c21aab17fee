package clientws

import (
    "context"
    "errors"
    "sync"

    ws "nhooyr.io/websocket"
    "nhooyr.io/websocket/wsjson"
)

// ErrNoClient is returned when a session has no connected voice client.
var ErrNoClient = errors.New("no voice client connected")

// Registry keeps at most one voice client connection per session.
type Registry struct {
    mu    sync.Mutex
    conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a session and closes the previous one if present.
func (r *Registry) Replace(sessionID string, c *ws.Conn) (prevClosed bool) {
    r.mu.Lock()
    old := r.conns[sessionID]
    r.conns[sessionID] = c
    r.mu.Unlock()
    if old != nil {
        _ = old.Close(ws.StatusNormalClosure, "replaced")
        prevClosed = true
    }
    metricClients.Set(float64(r.Len()))
    return
}

func (r *Registry) Get(sessionID string) *ws.Conn {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.conns[sessionID]
}

// Remove drops c if it is still the session's connection. It reports
// whether anything was removed.
func (r *Registry) Remove(sessionID string, c *ws.Conn) bool {
    r.mu.Lock()
    cur, ok := r.conns[sessionID]
    removed := ok && (c == nil || cur == c)
    if removed {
        delete(r.conns, sessionID)
    }
    r.mu.Unlock()
    metricClients.Set(float64(r.Len()))
    return removed
}

// Close closes and forgets the session's connection.
func (r *Registry) Close(sessionID, reason string) {
    r.mu.Lock()
    c := r.conns[sessionID]
    delete(r.conns, sessionID)
    r.mu.Unlock()
    if c != nil {
        _ = c.Close(ws.StatusNormalClosure, reason)
    }
    metricClients.Set(float64(r.Len()))
}

func (r *Registry) Len() int {
    r.mu.Lock()
    defer r.mu.Unlock()
    return len(r.conns)
}

// SendJSON writes v to the session's client.
func (r *Registry) SendJSON(ctx context.Context, sessionID string, v any) error {
    c := r.Get(sessionID)
    if c == nil {
        return ErrNoClient
    }
    if err := wsjson.Write(ctx, c, v); err != nil {
        metricSendErrors.Inc()
        return err
    }
    return nil
}
