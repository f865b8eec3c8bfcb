package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/settingsd/internal/config/watcher"
)

const changeEvent = "settings-change"

// handleWatchEvents streams watcher events as server-sent events.
// Slow clients lose events rather than holding up delivery.
func (s *Server) handleWatchEvents(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Watcher not available")
		return
	}

	rc := http.NewResponseController(w)

	events := make(chan watcher.Event, 32)
	sub := s.watcher.Subscribe(func(ev watcher.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer sub.Unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.requestLogger(r).Warn("event stream not flushable: %v", err)
		return
	}

	log := s.requestLogger(r)
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warn("encoding event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", changeEvent, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
