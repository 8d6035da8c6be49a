package dispatch

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// nhooyrConn adapts nhooyr.io/websocket.Conn to wsConn.
type nhooyrConn struct {
	c *websocket.Conn
}

func (c *nhooyrConn) Read(ctx context.Context) (wsMessageType, []byte, error) {
	mt, data, err := c.c.Read(ctx)
	if err != nil {
		return 0, nil, err
	}
	switch mt {
	case websocket.MessageText:
		return wsMessageText, data, nil
	default:
		return wsMessageBinary, data, nil
	}
}

func (c *nhooyrConn) Write(ctx context.Context, typ wsMessageType, data []byte) error {
	mt := websocket.MessageBinary
	if typ == wsMessageText {
		mt = websocket.MessageText
	}
	return c.c.Write(ctx, mt, data)
}

func (c *nhooyrConn) Close(code wsStatusCode, reason string) error {
	return c.c.Close(websocket.StatusCode(code), reason)
}

// dialNhooyrWebSocket dials rawurl over tr and wraps the result as a wsConn.
func dialNhooyrWebSocket(ctx context.Context, rawurl string, tr *http.Transport) (wsConn, error) {
	opts := &websocket.DialOptions{
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: tr,
		},
	}
	conn, _, err := websocket.Dial(ctx, rawurl, opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &nhooyrConn{c: conn}, nil
}
