package api

import (
	"net/http"
	"strings"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleSaveSession(w, r)
	})

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /api/sessions/new | /api/sessions/{id} | /api/sessions/{id}/recording
		rest := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/api/sessions/")
		parts := strings.Split(rest, "/")
		if len(parts) == 0 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if parts[0] == "new" {
			h.HandleCreateSession(w, r)
			return
		}
		id := parts[0]
		if len(parts) == 1 {
			h.HandleUpdateSession(w, r, id)
			return
		}
		if parts[1] == "recording" {
			h.HandleUploadRecording(w, r, id)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/api/replays", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleListReplays(w, r)
	})

	mux.HandleFunc("/api/replays/", func(w http.ResponseWriter, r *http.Request) {
		// /api/replays/{id} | /{id}/video | /{id}/thumbnail | /{id}/recording
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/api/replays/")
		parts := strings.Split(rest, "/")
		if len(parts) == 0 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id := parts[0]
		if len(parts) == 1 {
			h.HandleGetReplay(w, r, id)
			return
		}
		switch parts[1] {
		case "video":
			h.HandleGetVideo(w, r, id)
		case "thumbnail":
			h.HandleGetThumbnail(w, r, id)
		case "recording":
			h.HandleGetRecording(w, r, id)
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}
