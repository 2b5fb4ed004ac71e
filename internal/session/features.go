package session

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dshills/lspbridge/internal/protocol"
)

// readyCaps returns the negotiated capabilities when the session is Ready.
// Every feature request gates through this; a false return means the request
// resolves to an empty result without touching the wire.
func (s *Session) readyCaps() (*protocol.Capabilities, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.caps == nil {
		return nil, false
	}
	return s.caps, true
}

// call issues a request under the session's per-request deadline.
func (s *Session) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.conn.Call(ctx, method, params, result)
}

func posParams(uri protocol.DocumentURI, pos protocol.Position) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// Hover requests documentation at a position.
func (s *Session) Hover(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (*protocol.Hover, error) {
	caps, ok := s.readyCaps()
	if !ok || !protocol.HasCapability(caps.Server().HoverProvider) {
		return nil, nil
	}

	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodHover, protocol.HoverParams{TextDocumentPositionParams: posParams(uri, pos)}, &raw); err != nil {
		return nil, err
	}
	return protocol.ParseHoverResult(raw)
}

// Completion requests candidates at a position. The context, when present,
// tells the server whether a trigger character or an explicit invocation
// asked for it.
func (s *Session) Completion(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position, cctx *protocol.CompletionContext) (*protocol.CompletionList, error) {
	caps, ok := s.readyCaps()
	if !ok || caps.Server().CompletionProvider == nil {
		return nil, nil
	}

	params := protocol.CompletionParams{
		TextDocumentPositionParams: posParams(uri, pos),
		Context:                    cctx,
	}
	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodCompletion, params, &raw); err != nil {
		return nil, err
	}
	return protocol.ParseCompletionResult(raw)
}

// ResolveCompletion fills in the lazy fields of a completion item. Servers
// without a resolve provider yield an empty result, and so does a failed
// resolve: the caller keeps using the partial item it already has, since
// enrichment is never worth surfacing an error for.
func (s *Session) ResolveCompletion(ctx context.Context, item protocol.CompletionItem) (*protocol.CompletionItem, error) {
	caps, ok := s.readyCaps()
	if !ok {
		return nil, nil
	}
	provider := caps.Server().CompletionProvider
	if provider == nil || !provider.ResolveProvider {
		return nil, nil
	}

	var resolved protocol.CompletionItem
	if err := s.call(ctx, protocol.MethodCompletionResolve, item, &resolved); err != nil {
		s.log.Debug("completion resolve failed", zap.String("label", item.Label), zap.Error(err))
		return nil, nil
	}
	return &resolved, nil
}

// Definition requests the definition sites of the symbol at a position.
func (s *Session) Definition(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error) {
	caps, ok := s.readyCaps()
	if !ok || !protocol.HasCapability(caps.Server().DefinitionProvider) {
		return nil, nil
	}

	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodDefinition, posParams(uri, pos), &raw); err != nil {
		return nil, err
	}
	return protocol.ParseLocationResult(raw)
}

// CodeActions requests fixes and refactorings for a range. The diagnostics
// give the server context; only, when non-empty, restricts the action kinds.
func (s *Session) CodeActions(ctx context.Context, uri protocol.DocumentURI, rng protocol.Range, diagnostics []protocol.Diagnostic, only []protocol.CodeActionKind) ([]protocol.CodeAction, error) {
	caps, ok := s.readyCaps()
	if !ok || !protocol.HasCapability(caps.Server().CodeActionProvider) {
		return nil, nil
	}

	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	params := protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Range:        rng,
		Context:      protocol.CodeActionContext{Diagnostics: diagnostics, Only: only},
	}
	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodCodeAction, params, &raw); err != nil {
		return nil, err
	}
	return protocol.ParseCodeActionResult(raw)
}

// Rename requests the workspace-wide edit renaming the symbol at a position.
func (s *Session) Rename(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	caps, ok := s.readyCaps()
	if !ok || !protocol.HasCapability(caps.Server().RenameProvider) {
		return nil, nil
	}

	params := protocol.RenameParams{
		TextDocumentPositionParams: posParams(uri, pos),
		NewName:                    newName,
	}
	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodRename, params, &raw); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var edit protocol.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, err
	}
	return &edit, nil
}

// PrepareRename asks whether rename is valid at a position. Only servers
// that declare prepare support are asked; the rest yield an empty result
// and the caller falls back to its own word range.
func (s *Session) PrepareRename(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (*protocol.PrepareRenameResult, error) {
	caps, ok := s.readyCaps()
	if !ok || !prepareRenameSupported(caps) {
		return nil, nil
	}

	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodPrepareRename, protocol.PrepareRenameParams{TextDocumentPositionParams: posParams(uri, pos)}, &raw); err != nil {
		return nil, err
	}
	return protocol.ParsePrepareRenameResult(raw)
}

// prepareRenameSupported checks for renameProvider.prepareProvider, which
// the protocol only allows in the object form of renameProvider.
func prepareRenameSupported(caps *protocol.Capabilities) bool {
	if m, ok := caps.Server().RenameProvider.(map[string]any); ok {
		enabled, _ := m["prepareProvider"].(bool)
		return enabled
	}
	return caps.Supports("renameProvider.prepareProvider")
}

// SignatureHelp requests the overloads at a call site.
func (s *Session) SignatureHelp(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position, sctx *protocol.SignatureHelpContext) (*protocol.SignatureHelp, error) {
	caps, ok := s.readyCaps()
	if !ok || caps.Server().SignatureHelpProvider == nil {
		return nil, nil
	}

	params := protocol.SignatureHelpParams{
		TextDocumentPositionParams: posParams(uri, pos),
		Context:                    sctx,
	}
	var raw json.RawMessage
	if err := s.call(ctx, protocol.MethodSignatureHelp, params, &raw); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var help protocol.SignatureHelp
	if err := json.Unmarshal(raw, &help); err != nil {
		return nil, err
	}
	if len(help.Signatures) == 0 {
		return nil, nil
	}
	return &help, nil
}

// --- Document lifecycle notifications ---

// DidOpen announces an opened document. Unlike feature requests these
// return ErrNotReady before the handshake, so the synchronizer can decide
// to suppress rather than silently racing the handshake.
func (s *Session) DidOpen(ctx context.Context, params protocol.DidOpenTextDocumentParams) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.conn.Notify(ctx, protocol.MethodDidOpen, params)
}

// DidChange announces document edits.
func (s *Session) DidChange(ctx context.Context, params protocol.DidChangeTextDocumentParams) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.conn.Notify(ctx, protocol.MethodDidChange, params)
}

// DidClose announces a closed document.
func (s *Session) DidClose(ctx context.Context, params protocol.DidCloseTextDocumentParams) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.conn.Notify(ctx, protocol.MethodDidClose, params)
}
