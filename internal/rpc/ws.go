package rpc

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// wsFramer carries one JSON-RPC message per websocket text frame, the
// framing used by language servers exposed to browser-hosted editors.
type wsFramer struct {
	ws *websocket.Conn
}

// NewWebSocket creates a connection over an established websocket.
func NewWebSocket(ws *websocket.Conn) *Endpoint {
	return newEndpoint(&wsFramer{ws: ws})
}

// DialWebSocket connects to a language server at a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*Endpoint, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocket(ws), nil
}

func (f *wsFramer) writeFrame(body []byte) error {
	return f.ws.WriteMessage(websocket.TextMessage, body)
}

func (f *wsFramer) readFrame() ([]byte, error) {
	for {
		msgType, body, err := f.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return body, nil
		}
	}
}

func (f *wsFramer) close() error {
	return f.ws.Close()
}
