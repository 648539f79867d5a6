package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"

	"relive/replay/internal/render"
	"relive/replay/internal/replay"
	"relive/replay/internal/session"
	"relive/replay/internal/types"
)

// SessionStore is the write/read surface the handlers need from the store.
type SessionStore interface {
	CreateOrAppend(id string, events []types.Event, patch types.MetadataPatch) (string, error)
	Read(id string) (*types.Session, error)
	List() ([]types.SessionSummary, error)
}

type Handlers struct {
	store   SessionStore
	replays *replay.Service
}

func NewHandlers(store SessionStore, replays *replay.Service) *Handlers {
	return &Handlers{store: store, replays: replays}
}

// saveRequest is the batch upload body sent by the capture SDK every few
// seconds.
type saveRequest struct {
	SessionID string              `json:"sessionId"`
	Events    []types.Event       `json:"events"`
	Metadata  types.MetadataPatch `json:"metadata"`
}

func (h *Handlers) HandleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.appendAndReply(w, req.SessionID, req.Events, req.Metadata)
}

// HandleCreateSession initializes an empty session from the client metadata
// and returns the generated ID.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var patch types.MetadataPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := h.store.CreateOrAppend("", nil, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id})
}

func (h *Handlers) HandleUpdateSession(w http.ResponseWriter, r *http.Request, id string) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.appendAndReply(w, id, req.Events, req.Metadata)
}

func (h *Handlers) appendAndReply(w http.ResponseWriter, id string, events []types.Event, patch types.MetadataPatch) {
	id, err := h.store.CreateOrAppend(id, events, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": id})
}

// HandleUploadRecording stores the raw screen recording the SDK captured
// client-side.
func (h *Handlers) HandleUploadRecording(w http.ResponseWriter, r *http.Request, id string) {
	file, _, err := r.FormFile("recording")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing recording file")
		return
	}
	defer file.Close()
	if err := h.replays.SaveRecording(id, file); err != nil {
		log.Printf("api: recording upload for %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to store recording")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) HandleListReplays(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.replays.ListReplays()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) HandleGetReplay(w http.ResponseWriter, r *http.Request, id string) {
	rep, err := h.replays.GetReplay(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) HandleGetVideo(w http.ResponseWriter, r *http.Request, id string) {
	url, err := h.replays.VideoURL(r.Context(), id)
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (h *Handlers) HandleGetThumbnail(w http.ResponseWriter, r *http.Request, id string) {
	path, err := h.replays.Thumbnail(r.Context(), id)
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": "/thumbnails/" + filepath.Base(path)})
}

func (h *Handlers) HandleGetRecording(w http.ResponseWriter, r *http.Request, id string) {
	url, err := h.replays.RecordingURL(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, replay.ErrRecordingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeRenderError keeps the transient/terminal distinction visible to the
// caller: transient failures get a retry hint, terminal ones do not.
func writeRenderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, render.ErrTooBusy), errors.Is(err, render.ErrRendererUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, render.ErrEncodeFailed), errors.Is(err, render.ErrRetryBudgetExhausted):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeStoreError(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
