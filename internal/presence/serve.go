package presence

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Serve runs one websocket connection against roomID until it closes.
// The connection becomes a member only after it sends a join frame;
// until then nothing is delivered to it.
func (h *Hub) Serve(conn *websocket.Conn, roomID string) {
	log := h.cfg.Logger.With("room", roomID, "remote", conn.RemoteAddr().String())

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	var member *Member
	defer func() {
		if member != nil {
			member.Leave()
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		msg, err := Decode(raw)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				log.Debug("ignoring malformed frame", "error", err)
			} else {
				log.Debug("ignoring frame", "error", err)
			}
			continue
		}

		switch msg := msg.(type) {
		case Join:
			if member != nil {
				continue
			}
			member = h.Join(roomID, msg)
			go h.writePump(conn, member)
		case PresenceUpdate:
			if member != nil {
				member.Update(msg.Patch)
			}
		case CommentAdded:
			if member != nil {
				member.Comment(msg.Comment)
			}
		}
	}
}

// writePump is the only writer on conn once the member has joined.
func (h *Hub) writePump(conn *websocket.Conn, m *Member) {
	ticker := time.NewTicker(h.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-m.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
