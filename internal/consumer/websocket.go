package consumer

import (
	"context"

	"github.com/coder/websocket"
)

// maxFrameBytes bounds a single inbound frame. Snapshots dominate frame
// size; 8 MiB comfortably fits a full backlog of events.
const maxFrameBytes = 8 << 20

// WebSocketDial returns a DialFunc that connects to the hub's /ws endpoint
// at the given URL.
func WebSocketDial(url string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		c, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		c.SetReadLimit(maxFrameBytes)
		return &wsConn{c: c}, nil
	}
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
