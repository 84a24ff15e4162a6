package web

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type streamEvent struct {
	Seq   uint64 `json:"seq"`
	Total int    `json:"total"`
}

// handleStream relays the API's snapshot stream to the browser as
// server-sent events. The page reloads when the sequence number moves.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshots, errs := h.clientFor(r, token).Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snapshot := range snapshots {
		h.cache.Advance(snapshot)
		payload, err := json.Marshal(streamEvent{Seq: snapshot.Seq, Total: len(snapshot.Issues)})
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
	if err := <-errs; err != nil {
		h.logger.Warn("live updates stopped", "err", err)
		payload, _ := json.Marshal(err.Error())
		fmt.Fprintf(w, "event: failure\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}
