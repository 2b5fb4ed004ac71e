// Package rpc provides the narrow request/notify boundary between the
// session layer and a JSON-RPC 2.0 language-server connection.
//
// The session consumes a Conn as an opaque capability: correlation of
// request ids, per-request deadlines, and wire framing all live behind it.
// Two implementations are provided: StdioConn (Content-Length framing over
// a pipe pair, the standard LSP transport) and WSConn (one message per
// websocket frame).
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Standard errors returned by connections.
var (
	// ErrClosed indicates the connection has been closed.
	ErrClosed = errors.New("rpc: connection closed")

	// ErrTimeout indicates the server did not answer within the deadline.
	ErrTimeout = errors.New("rpc: request timed out")
)

// Conn is the two-call contract the session layer depends on, plus handler
// registration for traffic the server initiates.
type Conn interface {
	// Call sends a request and decodes the response into result (which may
	// be nil, or a *json.RawMessage to defer decoding). The context deadline
	// bounds the wait; exceeding it yields ErrTimeout.
	Call(ctx context.Context, method string, params, result any) error

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// SetNotificationHandler registers the handler for server-pushed
	// notifications. At most one handler is active; the session fans out.
	SetNotificationHandler(h NotificationHandler)

	// SetRequestHandler registers the handler for server-initiated requests
	// (e.g. workspace/configuration). Without a handler such requests are
	// answered with a method-not-found error.
	SetRequestHandler(h RequestHandler)

	// Close tears down the connection. Pending calls fail with ErrClosed.
	Close() error
}

// NotificationHandler receives server-pushed notifications.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers server-initiated requests.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC and LSP error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// message is the union wire shape for requests, responses and notifications.
// The id is kept raw so server-assigned ids (numbers or strings) echo back
// unchanged.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// isResponse reports whether the message answers one of our requests.
func (m *message) isResponse() bool {
	return len(m.ID) > 0 && m.Method == "" && (m.Result != nil || m.Error != nil)
}

// isRequest reports whether the message is a server-initiated request.
func (m *message) isRequest() bool {
	return len(m.ID) > 0 && m.Method != ""
}

// marshalMessage encodes an outbound message with caller params.
func marshalMessage(id json.RawMessage, method string, params any) ([]byte, error) {
	m := message{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		m.Params = raw
	}
	return json.Marshal(&m)
}

// marshalResponse encodes an answer to a server-initiated request.
func marshalResponse(id json.RawMessage, result any, callErr error) ([]byte, error) {
	m := message{JSONRPC: "2.0", ID: id}
	if callErr != nil {
		var rpcErr *Error
		if !errors.As(callErr, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: callErr.Error()}
		}
		m.Error = rpcErr
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		m.Result = raw
	}
	return json.Marshal(&m)
}
