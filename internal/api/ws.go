package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024 * 16,
		WriteBufferSize: 1024 * 16,
		CheckOrigin:     s.originAllowed,
	}
}

// handleWebSocket attaches the connection to the presence room named in
// the path. Room ids are opaque; clients derive them from the PR id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		s.writeError(w, http.StatusBadRequest, "room id is required")
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "room", roomID, "error", err)
		return
	}
	s.hub.Serve(conn, roomID)
}
