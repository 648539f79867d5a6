package ingest

import (
	"encoding/json"
	"log"
	"net/http"

	ws "nhooyr.io/websocket"

	"relive/replay/internal/types"
)

// wsBatch is one websocket frame from a live capture tab.
type wsBatch struct {
	Events   []types.Event       `json:"events"`
	Metadata types.MetadataPatch `json:"metadata"`
}

// WSHandler accepts a live capture connection and feeds its batches into the
// collector. The session ID is fixed per connection via the session_id query
// parameter.
type WSHandler struct {
	Collector *Collector
}

func (h *WSHandler) HandleIngestWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("ingest[%s] ws accept: %v", sessionID, err)
		return
	}

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var batch wsBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			log.Printf("ingest[%s] invalid batch: %v", sessionID, err)
			continue
		}
		if err := types.Validate(batch.Events, batch.Metadata); err != nil {
			log.Printf("ingest[%s] rejected batch: %v", sessionID, err)
			continue
		}
		h.Collector.Enqueue(Batch{SessionID: sessionID, Events: batch.Events, Patch: batch.Metadata})
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
}
