package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams pipeline results as server-sent events.
// The optional query parameter session restricts the stream to one session.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	session := r.URL.Query().Get("session")
	results := h.events.Subscribe(r.Context(), session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res, ok := <-results:
			if !ok {
				return
			}
			data, err := json.Marshal(res)
			if err != nil {
				h.l.Warn("could not encode result", log.ErrorField(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n",
				res.RunID, res.State, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
