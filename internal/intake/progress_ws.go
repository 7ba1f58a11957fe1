package intake

import (
	"net/http"

	"golang.org/x/net/websocket"
)

type progressMessage struct {
	Type        string         `json:"type"`
	Event       *ProgressEvent `json:"event,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// StreamProgress handles GET /intake/sessions/{sessionID}/progress as a
// websocket pushing attachment progress events.
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveProgress(conn, s)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveProgress(conn *websocket.Conn, s *Session) {
	defer conn.Close()

	events, cancel := s.Subscribe()
	defer cancel()

	if err := websocket.JSON.Send(conn, progressMessage{Type: "snapshot", Attachments: s.Snapshot().Attachments}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var in struct {
			Type string `json:"type"`
		}
		for {
			if err := websocket.JSON.Receive(conn, &in); err != nil {
				return
			}
			if in.Type == "ping" {
				_ = websocket.JSON.Send(conn, progressMessage{Type: "pong"})
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case evt, open := <-events:
			if !open {
				return
			}
			if err := websocket.JSON.Send(conn, progressMessage{Type: "progress", Event: &evt}); err != nil {
				h.logger.Debug("progress stream closed", "session_id", s.ID(), "error", err)
				return
			}
		}
	}
}
