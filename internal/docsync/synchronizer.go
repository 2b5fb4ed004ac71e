// Package docsync keeps one open document in step with a language server.
//
// A Synchronizer owns the version counter and the last text the server was
// told about. Edits arrive as UTF-16 offset spans; in incremental mode each
// span becomes one range change event, in full mode the whole buffer is
// resent. Send failures never surface to the editor: the document keeps
// working locally and the miss is logged.
package docsync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/lspbridge/internal/protocol"
	"github.com/dshills/lspbridge/internal/textpos"
)

// Mode selects how changes are encoded on the wire.
type Mode int

const (
	// ModeFull resends the complete document text on every change.
	ModeFull Mode = iota
	// ModeIncremental sends one range/text event per edit span.
	ModeIncremental
)

// ModeFor picks the change encoding a server's capabilities allow.
// Anything other than an explicit incremental kind falls back to full sync.
func ModeFor(caps *protocol.Capabilities) Mode {
	if caps != nil && caps.SyncKind() == protocol.TextDocumentSyncKindIncremental {
		return ModeIncremental
	}
	return ModeFull
}

// Edit is one replacement span in UTF-16 code-unit offsets. Start and End
// address the document as left by the preceding edit in the same batch;
// Start == End inserts, Text == "" deletes.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Sender is the slice of the session the synchronizer needs. Ready gates
// every send; the Did* methods forward the matching notifications.
type Sender interface {
	Ready() bool
	DidOpen(ctx context.Context, params protocol.DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params protocol.DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params protocol.DidCloseTextDocumentParams) error
}

// Synchronizer tracks one document's server-side state.
type Synchronizer struct {
	sender     Sender
	log        *zap.Logger
	uri        protocol.DocumentURI
	languageID string
	mode       Mode

	mu      sync.Mutex
	version int
	text    string
	opened  bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger routes suppressed-send reports to log. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Synchronizer) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a synchronizer for one document. The sync mode is fixed for
// the life of the document.
func New(sender Sender, uri protocol.DocumentURI, languageID string, mode Mode, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sender:     sender,
		log:        zap.NewNop(),
		uri:        uri,
		languageID: languageID,
		mode:       mode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URI returns the document's identifier.
func (s *Synchronizer) URI() protocol.DocumentURI { return s.uri }

// Version returns the last version successfully announced to the server.
func (s *Synchronizer) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Text returns the current local text, edits applied.
func (s *Synchronizer) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Open records the initial text and announces the document at version 1.
// When the session is not ready the announcement is dropped; the local
// state still initializes, and the first SendChanges after the session
// becomes ready announces the document instead.
func (s *Synchronizer) Open(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text = text
	s.version = 1

	if !s.sender.Ready() {
		s.log.Debug("didOpen suppressed, session not ready", zap.String("uri", string(s.uri)))
		return
	}

	err := s.sender.DidOpen(ctx, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        s.uri,
			LanguageID: s.languageID,
			Version:    s.version,
			Text:       text,
		},
	})
	if err != nil {
		s.log.Warn("didOpen failed", zap.String("uri", string(s.uri)), zap.Error(err))
		return
	}
	s.opened = true
}

// SendChanges applies edits to the local text and announces them. The whole
// batch shares a single version bump, taken only when the send succeeds.
// A document whose open announcement was suppressed gets announced here on
// the first ready send, with the batch folded into the full text.
// Invalid spans return an error and change nothing; a not-ready session or a
// transport failure is logged and swallowed.
func (s *Synchronizer) SendChanges(ctx context.Context, edits []Edit) error {
	if len(edits) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.text
	events := make([]protocol.TextDocumentContentChangeEvent, 0, len(edits))
	for _, e := range edits {
		next, rng, err := apply(text, e)
		if err != nil {
			return err
		}
		events = append(events, protocol.TextDocumentContentChangeEvent{Range: rng, Text: e.Text})
		text = next
	}
	s.text = text

	if !s.sender.Ready() {
		s.log.Debug("didChange suppressed, session not ready", zap.String("uri", string(s.uri)))
		return nil
	}

	// A suppressed Open leaves the document unannounced. Announce it now
	// with the edits already folded in; a didChange without a didOpen would
	// be invalid, and the full text supersedes this batch's events anyway.
	if !s.opened {
		version := s.version + 1
		err := s.sender.DidOpen(ctx, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        s.uri,
				LanguageID: s.languageID,
				Version:    version,
				Text:       text,
			},
		})
		if err != nil {
			s.log.Warn("didOpen failed", zap.String("uri", string(s.uri)), zap.Error(err))
			return nil
		}
		s.version = version
		s.opened = true
		return nil
	}

	if s.mode == ModeFull {
		events = []protocol.TextDocumentContentChangeEvent{{Text: text}}
	}

	version := s.version + 1
	err := s.sender.DidChange(ctx, protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: s.uri},
			Version:                version,
		},
		ContentChanges: events,
	})
	if err != nil {
		s.log.Warn("didChange failed", zap.String("uri", string(s.uri)), zap.Error(err))
		return nil
	}
	s.version = version
	return nil
}

// Replace swaps the entire local text and announces it as a single edit
// spanning the whole document. Used after external reloads.
func (s *Synchronizer) Replace(ctx context.Context, text string) error {
	s.mu.Lock()
	old := s.text
	s.mu.Unlock()
	return s.SendChanges(ctx, []Edit{{Start: 0, End: utf16Len(old), Text: text}})
}

// Close announces didClose when the document was announced at all.
func (s *Synchronizer) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return
	}
	s.opened = false

	if !s.sender.Ready() {
		s.log.Debug("didClose suppressed, session not ready", zap.String("uri", string(s.uri)))
		return
	}
	err := s.sender.DidClose(ctx, protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: s.uri},
	})
	if err != nil {
		s.log.Warn("didClose failed", zap.String("uri", string(s.uri)), zap.Error(err))
	}
}

// apply replaces the edit's span in text and returns the new text plus the
// span's range in (line, character) terms.
func apply(text string, e Edit) (string, *protocol.Range, error) {
	if e.Start < 0 || e.End < e.Start {
		return "", nil, fmt.Errorf("docsync: invalid span [%d, %d)", e.Start, e.End)
	}

	m := textpos.NewMapper(text)
	start, err := m.OffsetToPosition(e.Start)
	if err != nil {
		return "", nil, fmt.Errorf("docsync: span start: %w", err)
	}
	end, err := m.OffsetToPosition(e.End)
	if err != nil {
		return "", nil, fmt.Errorf("docsync: span end: %w", err)
	}

	startByte, err := m.PositionToByteOffset(start)
	if err != nil {
		return "", nil, err
	}
	endByte, err := m.PositionToByteOffset(end)
	if err != nil {
		return "", nil, err
	}

	return text[:startByte] + e.Text + text[endByte:], &protocol.Range{Start: start, End: end}, nil
}

// utf16Len counts a string's UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r > 0xFFFF {
			n++
		}
	}
	return n
}
