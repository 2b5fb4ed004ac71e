package docsync

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/lspbridge/internal/protocol"
)

// fakeSender records every notification and can simulate a not-ready
// session or a failing transport.
type fakeSender struct {
	ready   bool
	failAll bool

	opens   []protocol.DidOpenTextDocumentParams
	changes []protocol.DidChangeTextDocumentParams
	closes  []protocol.DidCloseTextDocumentParams
}

func (f *fakeSender) Ready() bool { return f.ready }

func (f *fakeSender) DidOpen(_ context.Context, p protocol.DidOpenTextDocumentParams) error {
	if f.failAll {
		return errors.New("send failed")
	}
	f.opens = append(f.opens, p)
	return nil
}

func (f *fakeSender) DidChange(_ context.Context, p protocol.DidChangeTextDocumentParams) error {
	if f.failAll {
		return errors.New("send failed")
	}
	f.changes = append(f.changes, p)
	return nil
}

func (f *fakeSender) DidClose(_ context.Context, p protocol.DidCloseTextDocumentParams) error {
	if f.failAll {
		return errors.New("send failed")
	}
	f.closes = append(f.closes, p)
	return nil
}

func openDoc(t *testing.T, sender *fakeSender, mode Mode, text string) *Synchronizer {
	t.Helper()
	s := New(sender, "file:///tmp/a.go", "go", mode)
	s.Open(context.Background(), text)
	return s
}

func TestOpenAnnouncesVersionOne(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "hello")

	if len(sender.opens) != 1 {
		t.Fatalf("got %d didOpen, want 1", len(sender.opens))
	}
	doc := sender.opens[0].TextDocument
	if doc.Version != 1 || doc.Text != "hello" || doc.LanguageID != "go" {
		t.Errorf("didOpen payload: %+v", doc)
	}
	if s.Version() != 1 {
		t.Errorf("Version() = %d, want 1", s.Version())
	}
}

func TestOpenSuppressedWhenNotReady(t *testing.T) {
	sender := &fakeSender{ready: false}
	s := openDoc(t, sender, ModeIncremental, "hello")

	if len(sender.opens) != 0 {
		t.Errorf("got %d didOpen, want 0", len(sender.opens))
	}
	// Local state still initializes.
	if s.Text() != "hello" {
		t.Errorf("Text() = %q", s.Text())
	}
}

func TestSendChangesIncremental(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	// Second span addresses the text as left by the first.
	err := s.SendChanges(context.Background(), []Edit{
		{Start: 1, End: 2, Text: "XY"}, // "abc" -> "aXYc"
		{Start: 3, End: 3, Text: "!"},  // "aXYc" -> "aXY!c"
	})
	if err != nil {
		t.Fatalf("SendChanges: %v", err)
	}
	if s.Text() != "aXY!c" {
		t.Errorf("Text() = %q, want %q", s.Text(), "aXY!c")
	}

	if len(sender.changes) != 1 {
		t.Fatalf("got %d didChange, want 1", len(sender.changes))
	}
	change := sender.changes[0]
	if change.TextDocument.Version != 2 {
		t.Errorf("version = %d, want 2 (one bump per batch)", change.TextDocument.Version)
	}
	if len(change.ContentChanges) != 2 {
		t.Fatalf("got %d events, want 2", len(change.ContentChanges))
	}

	first := change.ContentChanges[0]
	if first.Range == nil || first.Range.Start.Character != 1 || first.Range.End.Character != 2 || first.Text != "XY" {
		t.Errorf("first event: %+v", first)
	}
	second := change.ContentChanges[1]
	if second.Range == nil || second.Range.Start.Character != 3 || second.Range.End.Character != 3 || second.Text != "!" {
		t.Errorf("second event: %+v", second)
	}
}

func TestSendChangesFullMode(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeFull, "abc")

	if err := s.SendChanges(context.Background(), []Edit{{Start: 0, End: 1, Text: "z"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}

	change := sender.changes[0]
	if len(change.ContentChanges) != 1 {
		t.Fatalf("got %d events, want 1", len(change.ContentChanges))
	}
	event := change.ContentChanges[0]
	if event.Range != nil || event.Text != "zbc" {
		t.Errorf("full-mode event: %+v", event)
	}
}

func TestSendChangesNotReady(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	sender.ready = false
	if err := s.SendChanges(context.Background(), []Edit{{Start: 0, End: 0, Text: "x"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}

	if len(sender.changes) != 0 {
		t.Errorf("got %d didChange, want 0", len(sender.changes))
	}
	// Edits still apply locally; the version never moves.
	if s.Text() != "xabc" || s.Version() != 1 {
		t.Errorf("Text() = %q Version() = %d", s.Text(), s.Version())
	}
}

func TestSendChangesTransportFailureSwallowed(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	sender.failAll = true
	if err := s.SendChanges(context.Background(), []Edit{{Start: 0, End: 0, Text: "x"}}); err != nil {
		t.Fatalf("transport failure should be swallowed, got %v", err)
	}
	if s.Version() != 1 {
		t.Errorf("failed send must not advance the version, got %d", s.Version())
	}

	// The next successful batch picks up where the server last was.
	sender.failAll = false
	if err := s.SendChanges(context.Background(), []Edit{{Start: 0, End: 0, Text: "y"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}
	if got := sender.changes[0].TextDocument.Version; got != 2 {
		t.Errorf("version = %d, want 2", got)
	}
}

func TestSendChangesInvalidSpan(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	if err := s.SendChanges(context.Background(), []Edit{{Start: 2, End: 99, Text: "x"}}); err == nil {
		t.Fatal("out-of-range span: want error")
	}
	if s.Text() != "abc" || s.Version() != 1 || len(sender.changes) != 0 {
		t.Errorf("invalid span must change nothing: text=%q version=%d sends=%d",
			s.Text(), s.Version(), len(sender.changes))
	}
}

func TestSendChangesUTF16Spans(t *testing.T) {
	sender := &fakeSender{ready: true}
	// The emoji occupies two UTF-16 units, so "x" after it starts at 2.
	s := openDoc(t, sender, ModeIncremental, "\U0001F600x")

	if err := s.SendChanges(context.Background(), []Edit{{Start: 2, End: 3, Text: "y"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}
	if s.Text() != "\U0001F600y" {
		t.Errorf("Text() = %q", s.Text())
	}
	rng := sender.changes[0].ContentChanges[0].Range
	if rng.Start.Character != 2 || rng.End.Character != 3 {
		t.Errorf("range = %+v, want UTF-16 characters 2..3", rng)
	}
}

func TestLazyOpenOnFirstReadySend(t *testing.T) {
	sender := &fakeSender{ready: false}
	s := openDoc(t, sender, ModeIncremental, "abc")

	// The first send after the session comes up announces the document
	// with the batch folded in, instead of staying suppressed forever.
	sender.ready = true
	if err := s.SendChanges(context.Background(), []Edit{{Start: 3, End: 3, Text: "d"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}

	if len(sender.opens) != 1 || len(sender.changes) != 0 {
		t.Fatalf("got %d didOpen / %d didChange, want 1 / 0", len(sender.opens), len(sender.changes))
	}
	doc := sender.opens[0].TextDocument
	if doc.Version != 2 || doc.Text != "abcd" {
		t.Errorf("lazy didOpen payload: %+v", doc)
	}

	// Later batches flow as ordinary changes.
	if err := s.SendChanges(context.Background(), []Edit{{Start: 4, End: 4, Text: "e"}}); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}
	if len(sender.changes) != 1 || sender.changes[0].TextDocument.Version != 3 {
		t.Errorf("follow-up batch: %+v", sender.changes)
	}

	// And the document can now close properly.
	s.Close(context.Background())
	if len(sender.closes) != 1 {
		t.Errorf("got %d didClose, want 1", len(sender.closes))
	}
}

func TestVersionMonotonicAcrossBatches(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "")

	// Each send call bumps exactly once, however many spans it carried.
	batches := [][]Edit{
		{{Start: 0, End: 0, Text: "a"}},
		{{Start: 1, End: 1, Text: "b"}, {Start: 2, End: 2, Text: "c"}},
		{{Start: 0, End: 3, Text: "done"}},
	}
	for _, batch := range batches {
		if err := s.SendChanges(context.Background(), batch); err != nil {
			t.Fatalf("SendChanges: %v", err)
		}
	}

	if len(sender.changes) != 3 {
		t.Fatalf("got %d didChange, want 3", len(sender.changes))
	}
	for i, change := range sender.changes {
		if got, want := change.TextDocument.Version, i+2; got != want {
			t.Errorf("batch %d: version = %d, want %d", i, got, want)
		}
	}
	if s.Text() != "done" {
		t.Errorf("Text() = %q", s.Text())
	}
}

func TestSendChangesEmptyBatch(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	if err := s.SendChanges(context.Background(), nil); err != nil {
		t.Fatalf("SendChanges: %v", err)
	}
	if len(sender.changes) != 0 || s.Version() != 1 {
		t.Error("empty batch must be a no-op")
	}
}

func TestReplace(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeFull, "old text")

	if err := s.Replace(context.Background(), "new"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if s.Text() != "new" || s.Version() != 2 {
		t.Errorf("Text() = %q Version() = %d", s.Text(), s.Version())
	}
}

func TestClose(t *testing.T) {
	sender := &fakeSender{ready: true}
	s := openDoc(t, sender, ModeIncremental, "abc")

	s.Close(context.Background())
	if len(sender.closes) != 1 {
		t.Fatalf("got %d didClose, want 1", len(sender.closes))
	}
	if sender.closes[0].TextDocument.URI != "file:///tmp/a.go" {
		t.Errorf("didClose uri: %v", sender.closes[0].TextDocument.URI)
	}

	// Closing again is a no-op.
	s.Close(context.Background())
	if len(sender.closes) != 1 {
		t.Errorf("second Close sent didClose again")
	}
}

func TestCloseWithoutOpenAnnouncement(t *testing.T) {
	sender := &fakeSender{ready: false}
	s := openDoc(t, sender, ModeIncremental, "abc")

	sender.ready = true
	s.Close(context.Background())
	if len(sender.closes) != 0 {
		t.Errorf("document never announced; didClose must be suppressed")
	}
}

func TestModeFor(t *testing.T) {
	if got := ModeFor(nil); got != ModeFull {
		t.Errorf("nil caps: got %v, want ModeFull", got)
	}

	caps := protocol.NewCapabilities(
		protocol.ServerCapabilities{TextDocumentSync: float64(2)}, nil)
	if got := ModeFor(caps); got != ModeIncremental {
		t.Errorf("sync kind 2: got %v, want ModeIncremental", got)
	}

	caps = protocol.NewCapabilities(
		protocol.ServerCapabilities{TextDocumentSync: map[string]any{"change": float64(1)}}, nil)
	if got := ModeFor(caps); got != ModeFull {
		t.Errorf("sync kind 1: got %v, want ModeFull", got)
	}
}
