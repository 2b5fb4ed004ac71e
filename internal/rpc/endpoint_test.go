package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

// pipeServer plays the server side of a stdio connection in-process.
type pipeServer struct {
	reader *bufio.Reader
	writer io.Writer
}

// newPipePair wires an Endpoint to a pipeServer through in-memory pipes.
func newPipePair() (*Endpoint, *pipeServer) {
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	ep := NewStdio(clientIn, clientOut, nil)
	srv := &pipeServer{
		reader: bufio.NewReader(serverIn),
		writer: serverOut,
	}
	return ep, srv
}

func (s *pipeServer) readMessage(t *testing.T) map[string]any {
	t.Helper()

	contentLength := 0
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			t.Fatalf("server read header: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		t.Fatalf("server read body: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("server unmarshal: %v", err)
	}
	return msg
}

func (s *pipeServer) send(t *testing.T, msg string) {
	t.Helper()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(msg))
	if _, err := io.WriteString(s.writer, header+msg); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	go func() {
		msg := srv.readMessage(t)
		if msg["method"] != "test/echo" {
			t.Errorf("server saw method %v", msg["method"])
		}
		id := int(msg["id"].(float64))
		srv.send(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"value":42}}`, id))
	}()

	var result struct {
		Value int `json:"value"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ep.Call(ctx, "test/echo", map[string]string{"k": "v"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Value != 42 {
		t.Errorf("result = %d, want 42", result.Value)
	}
}

func TestCallServerError(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	go func() {
		msg := srv.readMessage(t)
		id := int(msg["id"].(float64))
		srv.send(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"nope"}}`, id))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := ep.Call(ctx, "test/missing", nil, nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	// Server reads the request but never answers.
	go srv.readMessage(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := ep.Call(ctx, "test/slow", nil, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	ep, _ := newPipePair()
	ep.Close()

	if err := ep.Call(context.Background(), "test/x", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := ep.Notify(context.Background(), "test/x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Notify, got %v", err)
	}
	// Close is idempotent.
	if err := ep.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNotifyHasNoID(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	done := make(chan map[string]any, 1)
	go func() {
		done <- srv.readMessage(t)
	}()

	if err := ep.Notify(context.Background(), "test/note", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	msg := <-done
	if _, hasID := msg["id"]; hasID {
		t.Error("notification should not carry an id")
	}
	if msg["method"] != "test/note" {
		t.Errorf("method = %v", msg["method"])
	}
}

func TestServerNotificationDispatch(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	got := make(chan string, 1)
	ep.SetNotificationHandler(func(method string, params json.RawMessage) {
		got <- method
	})

	srv.send(t, `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///x","diagnostics":[]}}`)

	select {
	case method := <-got:
		if method != "textDocument/publishDiagnostics" {
			t.Errorf("method = %q", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched")
	}
}

func TestNotificationsDeliveredInArrivalOrder(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	order := make(chan string, 2)
	ep.SetNotificationHandler(func(method string, _ json.RawMessage) {
		if method == "diag/old" {
			// A slow handler delays later notifications; it must never be
			// overtaken by them, or consumers end up holding stale state.
			time.Sleep(50 * time.Millisecond)
		}
		order <- method
	})

	srv.send(t, `{"jsonrpc":"2.0","method":"diag/old"}`)
	srv.send(t, `{"jsonrpc":"2.0","method":"diag/new"}`)

	for _, want := range []string{"diag/old", "diag/new"} {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("delivery order: got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %q not delivered", want)
		}
	}
}

func TestNotifyCancelledContext(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ep.Notify(ctx, "test/cancelled", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	// The cancelled notification never reached the wire: the next frame the
	// server sees is the live one.
	done := make(chan map[string]any, 1)
	go func() { done <- srv.readMessage(t) }()
	if err := ep.Notify(context.Background(), "test/live", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if msg := <-done; msg["method"] != "test/live" {
		t.Errorf("cancelled notify reached the wire: saw %v", msg["method"])
	}
}

func TestServerRequestAnswered(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	ep.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		if method != "workspace/configuration" {
			return nil, &Error{Code: CodeMethodNotFound, Message: method}
		}
		return []any{map[string]bool{"enable": true}}, nil
	})

	srv.send(t, `{"jsonrpc":"2.0","id":"cfg-1","method":"workspace/configuration","params":{"items":[{"section":"gopls"}]}}`)

	resp := srv.readMessage(t)
	if resp["id"] != "cfg-1" {
		t.Errorf("response id = %v, want cfg-1 (string id must echo unchanged)", resp["id"])
	}
	if resp["result"] == nil {
		t.Errorf("expected result, got %v", resp)
	}
}

func TestServerRequestWithoutHandler(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	srv.send(t, `{"jsonrpc":"2.0","id":7,"method":"client/unknown"}`)

	resp := srv.readMessage(t)
	errObj, ok := resp["error"].(map[string]any)
	if !ok || int(errObj["code"].(float64)) != CodeMethodNotFound {
		t.Errorf("expected method-not-found response, got %v", resp)
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	ep, srv := newPipePair()
	defer ep.Close()

	got := make(chan string, 1)
	ep.SetNotificationHandler(func(method string, params json.RawMessage) {
		got <- method
	})

	srv.send(t, `{not json`)
	srv.send(t, `{"jsonrpc":"2.0","method":"still/alive"}`)

	select {
	case method := <-got:
		if method != "still/alive" {
			t.Errorf("method = %q", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not survive malformed frame")
	}
}
