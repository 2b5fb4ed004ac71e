// Package session runs one language-server lifecycle over an rpc.Conn.
//
// A Session owns the initialize handshake, the negotiated capabilities, the
// fan-out of server-pushed notifications, and the registry of consumers
// keeping the backend alive. Feature requests are capability-gated: before
// the handshake completes, or when the server never declared the feature,
// they resolve to an empty result instead of failing.
package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dshills/lspbridge/internal/protocol"
	"github.com/dshills/lspbridge/internal/rpc"
)

// State is the session's lifecycle phase. Transitions are linear:
// Uninitialized -> Initializing -> Ready -> Closed, with a failed handshake
// falling back to Uninitialized so a later attempt can retry.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultRequestTimeout bounds feature requests. The initialize handshake
// gets three times this, since servers index workspaces before answering.
const DefaultRequestTimeout = 10 * time.Second

// NotificationListener receives every server-pushed notification.
type NotificationListener func(method string, params json.RawMessage)

// ConfigurationResolver answers one workspace/configuration item. A nil
// return stands for JSON null, which tells the server to use its defaults.
type ConfigurationResolver func(item protocol.ConfigurationItem) any

// Session is one client lifecycle against a language server.
type Session struct {
	conn rpc.Conn
	log  *zap.Logger

	rootURI        protocol.DocumentURI
	folders        []protocol.WorkspaceFolder
	clientCaps     protocol.ClientCapabilities
	capsTransform  func(protocol.ClientCapabilities) protocol.ClientCapabilities
	initOptions    any
	timeout        time.Duration
	autoClose      bool
	configResolver ConfigurationResolver

	mu           sync.RWMutex
	state        State
	initDone     chan struct{}
	initErr      error
	caps         *protocol.Capabilities
	serverInfo   *protocol.ServerInfo
	listeners    map[int]NotificationListener
	nextListener int
	consumers    map[string]struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger routes session diagnostics to log. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRootPath sets the workspace root from a filesystem path. The path
// becomes both the root URI and the sole workspace folder.
func WithRootPath(path string) Option {
	return func(s *Session) {
		uri := protocol.FilePathToURI(path)
		s.rootURI = uri
		s.folders = []protocol.WorkspaceFolder{{URI: uri, Name: path}}
	}
}

// WithWorkspaceFolders sets the workspace folders explicitly. The first
// folder doubles as the root URI.
func WithWorkspaceFolders(folders []protocol.WorkspaceFolder) Option {
	return func(s *Session) {
		s.folders = folders
		if len(folders) > 0 {
			s.rootURI = folders[0].URI
		}
	}
}

// WithClientCapabilities replaces the default capability descriptor sent
// during initialize.
func WithClientCapabilities(caps protocol.ClientCapabilities) Option {
	return func(s *Session) {
		s.clientCaps = caps
	}
}

// WithCapabilitiesTransform adjusts the capability descriptor right before
// it is sent, after any replacement.
func WithCapabilitiesTransform(f func(protocol.ClientCapabilities) protocol.ClientCapabilities) Option {
	return func(s *Session) {
		s.capsTransform = f
	}
}

// WithInitializationOptions sets server-specific initialize options.
func WithInitializationOptions(opts any) Option {
	return func(s *Session) {
		s.initOptions = opts
	}
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithAutoClose closes the session when the last attached consumer detaches.
func WithAutoClose() Option {
	return func(s *Session) {
		s.autoClose = true
	}
}

// WithConfigurationResolver answers server-initiated workspace/configuration
// pulls. Without one, every requested item is answered with null.
func WithConfigurationResolver(r ConfigurationResolver) Option {
	return func(s *Session) {
		s.configResolver = r
	}
}

// New wraps a connection in a session. The handshake does not start until
// Initialize is called.
func New(conn rpc.Conn, opts ...Option) *Session {
	s := &Session{
		conn:       conn,
		log:        zap.NewNop(),
		clientCaps: protocol.DefaultClientCapabilities(),
		timeout:    DefaultRequestTimeout,
		listeners:  make(map[int]NotificationListener),
		consumers:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	conn.SetNotificationHandler(s.dispatch)
	conn.SetRequestHandler(s.handleServerRequest)
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the handshake has completed.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Capabilities returns the negotiated server capabilities, nil before Ready.
func (s *Session) Capabilities() *protocol.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// ServerInfo returns the server's self-identification, nil when it sent none.
func (s *Session) ServerInfo() *protocol.ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

// Initialize runs the handshake. It is idempotent: once Ready it returns
// immediately, and concurrent callers share the one in-flight attempt
// rather than sending a second initialize.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateInitializing:
		done := s.initDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.initErr
	}

	s.state = StateInitializing
	done := make(chan struct{})
	s.initDone = done
	timeout := 3 * s.timeout
	s.mu.Unlock()

	err := s.handshake(ctx, timeout)

	s.mu.Lock()
	s.initErr = err
	if s.state == StateInitializing {
		if err == nil {
			s.state = StateReady
		} else {
			s.state = StateUninitialized
		}
	}
	close(done)
	s.mu.Unlock()
	return err
}

func (s *Session) handshake(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	caps := s.clientCaps
	if s.capsTransform != nil {
		caps = s.capsTransform(caps)
	}

	params := protocol.InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               s.rootURI,
		Capabilities:          caps,
		InitializationOptions: s.initOptions,
		WorkspaceFolders:      s.folders,
	}

	var raw json.RawMessage
	if err := s.conn.Call(ctx, protocol.MethodInitialize, params, &raw); err != nil {
		s.log.Warn("initialize failed", zap.Error(err))
		return err
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn("initialize result malformed", zap.Error(err))
		return err
	}

	var capsRaw []byte
	if v := gjson.GetBytes(raw, "capabilities"); v.Exists() {
		capsRaw = []byte(v.Raw)
	}

	if err := s.conn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		s.log.Warn("initialized notification failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.caps = protocol.NewCapabilities(result.Capabilities, capsRaw)
	s.serverInfo = result.ServerInfo
	s.mu.Unlock()

	if result.ServerInfo != nil {
		s.log.Info("session ready",
			zap.String("server", result.ServerInfo.Name),
			zap.String("version", result.ServerInfo.Version))
	} else {
		s.log.Info("session ready")
	}
	return nil
}

// Close shuts the session down: a polite shutdown/exit exchange when the
// server is still answering, then the connection itself. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	wasReady := s.state == StateReady
	s.state = StateClosed
	s.mu.Unlock()

	if wasReady {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := s.conn.Call(shutdownCtx, protocol.MethodShutdown, nil, nil); err != nil {
			s.log.Debug("shutdown request failed", zap.Error(err))
		}
		if err := s.conn.Notify(shutdownCtx, protocol.MethodExit, nil); err != nil {
			s.log.Debug("exit notification failed", zap.Error(err))
		}
		cancel()
	}

	return s.conn.Close()
}

// --- Consumer registry ---

// Attach registers a consumer keeping the session alive. Attaching the same
// id twice is a no-op.
func (s *Session) Attach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.consumers[id] = struct{}{}
}

// Detach removes a consumer. Unknown ids are ignored. With WithAutoClose,
// removing the last consumer closes the session.
func (s *Session) Detach(id string) {
	s.mu.Lock()
	if _, ok := s.consumers[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.consumers, id)
	closeNow := s.autoClose && len(s.consumers) == 0 && s.state != StateClosed
	s.mu.Unlock()

	if closeNow {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			s.log.Debug("auto-close failed", zap.Error(err))
		}
	}
}

// Consumers returns the number of attached consumers.
func (s *Session) Consumers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumers)
}

// --- Notification fan-out ---

// OnNotification registers a listener for every server-pushed notification.
// The returned disposer removes exactly this listener and is idempotent.
func (s *Session) OnNotification(l NotificationListener) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// OnDiagnostics registers a listener for publishDiagnostics pushes only,
// decoded. Malformed pushes are logged and dropped.
func (s *Session) OnDiagnostics(f func(protocol.PublishDiagnosticsParams)) func() {
	return s.OnNotification(func(method string, params json.RawMessage) {
		if method != protocol.MethodPublishDiagnostics {
			return
		}
		var p protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Warn("publishDiagnostics malformed", zap.Error(err))
			return
		}
		f(p)
	})
}

// dispatch fans a server notification out to every listener. The listener
// set is snapshotted under the lock and invoked outside it, so a listener
// may dispose itself or others mid-delivery.
func (s *Session) dispatch(method string, params json.RawMessage) {
	s.mu.RLock()
	snapshot := make([]NotificationListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		l(method, params)
	}
}

// handleServerRequest answers server-initiated requests. Unknown methods get
// a null result rather than an error so the server never stalls waiting.
func (s *Session) handleServerRequest(_ context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case protocol.MethodConfiguration:
		var p protocol.ConfigurationParams
		if err := json.Unmarshal(params, &p); err != nil {
			s.log.Warn("configuration request malformed", zap.Error(err))
			return []any{}, nil
		}
		results := make([]any, len(p.Items))
		if s.configResolver != nil {
			for i, item := range p.Items {
				results[i] = s.configResolver(item)
			}
		}
		return results, nil
	default:
		s.log.Debug("unhandled server request", zap.String("method", method))
		return nil, nil
	}
}
