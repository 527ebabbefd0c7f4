package ws

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// HandleWS upgrades the request to a WebSocket, registers the connection as
// an observer, and blocks consuming inbound frames until the peer goes
// away. Observers are read-only; anything they send is discarded, the read
// loop exists to detect disconnects and service pings.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	o, err := h.Connect(conn)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}
	defer h.Disconnect(o)

	slog.Debug("websocket accepted", "remote", r.RemoteAddr, "observer", o.ID())

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
