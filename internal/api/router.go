package api

import (
	"net/http"
	"strings"

	"codetutor/voicedebug/internal/command"
)

// NewRouter mounts the REST surface. ws serves the voice client socket and
// may be nil in tests.
func NewRouter(h *Handlers, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)

	if ws != nil {
		mux.Handle("/ws/client", ws)
	}

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.HandleCreateSession(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/history", only(http.MethodGet, h.HandleHistory))
	mux.HandleFunc("/progress", only(http.MethodGet, h.HandleProgress))
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.HandleGetProfile(w, r)
		case http.MethodPut:
			h.HandleUpdateProfile(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /sessions/{id}[/action[/sub]]
		path := strings.TrimSuffix(r.URL.Path, "/")
		rest := strings.TrimPrefix(path, "/sessions/")
		parts := strings.Split(rest, "/")
		if len(parts) == 0 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id := parts[0]
		tail := strings.Join(parts[1:], "/")

		route := func(method string, fn func()) {
			if r.Method != method {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			fn()
		}

		switch tail {
		case "":
			switch r.Method {
			case http.MethodGet:
				h.HandleGetSession(w, r, id)
			case http.MethodDelete:
				h.HandleCloseSession(w, r, id)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		case "code":
			route(http.MethodPut, func() { h.HandleSetCode(w, r, id) })
		case "code/reset":
			route(http.MethodPost, func() { h.HandleResetCode(w, r, id) })
		case "language":
			route(http.MethodPut, func() { h.HandleSetLanguage(w, r, id) })
		case "analyze":
			route(http.MethodPost, func() { h.HandleAction(w, r, id, command.Analyze) })
		case "clear":
			route(http.MethodPost, func() { h.HandleAction(w, r, id, command.Clear) })
		case "explain":
			route(http.MethodPost, func() { h.HandleAction(w, r, id, command.RepeatExplanation) })
		case "transcript":
			route(http.MethodPost, func() { h.HandleTranscript(w, r, id) })
		case "rate":
			route(http.MethodPost, func() { h.HandleRate(w, r, id) })
		case "settled":
			route(http.MethodPost, func() { h.HandleSettled(w, r, id) })
		case "listen":
			switch r.Method {
			case http.MethodPost:
				h.HandleListen(w, r, id, true)
			case http.MethodDelete:
				h.HandleListen(w, r, id, false)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		case "speak/stop":
			route(http.MethodPost, func() { h.HandleStopSpeaking(w, r, id) })
		case "client-token":
			route(http.MethodPost, func() { h.HandleMintClientToken(w, r, id) })
		case "events":
			route(http.MethodGet, func() { h.HandleListEvents(w, r, id) })
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}
