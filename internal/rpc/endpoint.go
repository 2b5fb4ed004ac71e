package rpc

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
)

// framer reads and writes whole JSON-RPC message bodies. Implementations
// supply the wire framing (Content-Length headers, websocket frames).
type framer interface {
	writeFrame(body []byte) error
	readFrame() ([]byte, error)
	close() error
}

// Endpoint correlates requests with responses over a framer and dispatches
// server-initiated traffic. It implements Conn.
type Endpoint struct {
	framer framer

	writeMu sync.Mutex

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *message

	handlerMu sync.RWMutex
	onNotify  NotificationHandler
	onRequest RequestHandler

	// notifyCh feeds server notifications to the single dispatch goroutine,
	// preserving per-connection arrival order.
	notifyCh chan *message

	closed atomic.Bool
	done   chan struct{}
}

func newEndpoint(f framer) *Endpoint {
	e := &Endpoint{
		framer:   f,
		pending:  make(map[int64]chan *message),
		notifyCh: make(chan *message, 64),
		done:     make(chan struct{}),
	}
	go e.readLoop()
	go e.notifyLoop()
	return e
}

// Call sends a request and waits for its response.
func (e *Endpoint) Call(ctx context.Context, method string, params, result any) error {
	if e.closed.Load() {
		return ErrClosed
	}

	id := e.nextID.Add(1)
	ch := make(chan *message, 1)

	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	body, err := marshalMessage(json.RawMessage(strconv.FormatInt(id, 10)), method, params)
	if err != nil {
		return err
	}
	if err := e.write(body); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return err
			}
		}
		return nil
	}
}

// Notify sends a notification. A context cancelled before the write keeps
// the frame off the wire.
func (e *Endpoint) Notify(ctx context.Context, method string, params any) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return ErrTimeout
		}
		return err
	}
	body, err := marshalMessage(nil, method, params)
	if err != nil {
		return err
	}
	return e.write(body)
}

// SetNotificationHandler registers the server-notification handler.
func (e *Endpoint) SetNotificationHandler(h NotificationHandler) {
	e.handlerMu.Lock()
	e.onNotify = h
	e.handlerMu.Unlock()
}

// SetRequestHandler registers the server-request handler.
func (e *Endpoint) SetRequestHandler(h RequestHandler) {
	e.handlerMu.Lock()
	e.onRequest = h
	e.handlerMu.Unlock()
}

// Close tears down the connection and fails pending calls with ErrClosed.
func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	close(e.done)

	// Waiters drain via e.done; the map just needs clearing.
	e.mu.Lock()
	e.pending = make(map[int64]chan *message)
	e.mu.Unlock()

	return e.framer.close()
}

// write serializes frame writes so concurrent calls do not interleave.
func (e *Endpoint) write(body []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.framer.writeFrame(body)
}

// readLoop decodes incoming frames and routes them until the connection
// closes. Malformed frames are skipped; the stream stays up.
func (e *Endpoint) readLoop() {
	for {
		body, err := e.framer.readFrame()
		if err != nil {
			if !e.closed.Load() {
				e.Close()
			}
			return
		}

		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}

		switch {
		case msg.isResponse():
			e.handleResponse(&msg)
		case msg.isRequest():
			go e.handleRequest(&msg)
		case msg.Method != "":
			e.handleNotification(&msg)
		}
	}
}

func (e *Endpoint) handleResponse(msg *message) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		return
	}

	e.mu.Lock()
	ch, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if ok {
		ch <- msg
	}
}

func (e *Endpoint) handleRequest(msg *message) {
	e.handlerMu.RLock()
	handler := e.onRequest
	e.handlerMu.RUnlock()

	var result any
	var callErr error
	if handler == nil {
		callErr = &Error{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method}
	} else {
		result, callErr = handler(context.Background(), msg.Method, msg.Params)
	}

	body, err := marshalResponse(msg.ID, result, callErr)
	if err != nil {
		return
	}
	_ = e.write(body)
}

// handleNotification queues a server notification for serial dispatch. The
// buffered queue keeps the read loop off the handler's critical path; a
// consumer slower than the buffer applies backpressure rather than losing
// or reordering notifications.
func (e *Endpoint) handleNotification(msg *message) {
	select {
	case e.notifyCh <- msg:
	case <-e.done:
	}
}

// notifyLoop delivers queued notifications one at a time, in arrival order.
// Handlers are never invoked concurrently, so two publishDiagnostics pushes
// for the same document always reach listeners oldest-first.
func (e *Endpoint) notifyLoop() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.notifyCh:
			e.handlerMu.RLock()
			handler := e.onNotify
			e.handlerMu.RUnlock()
			if handler != nil {
				handler(msg.Method, msg.Params)
			}
		}
	}
}
