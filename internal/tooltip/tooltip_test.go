package tooltip

import (
	"testing"

	"github.com/dshills/lspbridge/internal/protocol"
)

func spec(value string) Spec {
	return Spec{
		URI:      "file:///a.go",
		Anchor:   protocol.Position{Line: 2, Character: 4},
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: value},
	}
}

func TestShowHide(t *testing.T) {
	var events []*Spec
	c := NewController(func(s *Spec) { events = append(events, s) })

	if c.Visible() {
		t.Fatal("new controller should start hidden")
	}

	c.Show(spec("doc"))
	if !c.Visible() || c.Current().Contents.Value != "doc" {
		t.Errorf("after Show: current = %+v", c.Current())
	}

	c.Show(spec("newer"))
	if c.Current().Contents.Value != "newer" {
		t.Errorf("Show should replace: current = %+v", c.Current())
	}

	c.Hide()
	if c.Visible() {
		t.Error("after Hide: still visible")
	}

	// Projection saw every transition: show, show, hide.
	if len(events) != 3 || events[0] == nil || events[1] == nil || events[2] != nil {
		t.Errorf("events = %v", events)
	}
}

func TestHideWhenHiddenDoesNotNotify(t *testing.T) {
	notified := 0
	c := NewController(func(*Spec) { notified++ })

	c.Hide()
	c.Hide()
	if notified != 0 {
		t.Errorf("hidden Hide notified %d times", notified)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	c := NewController(nil)
	c.Show(spec("doc"))

	got := c.Current()
	got.Contents.Value = "mutated"
	if c.Current().Contents.Value != "doc" {
		t.Error("Current must return a copy")
	}
}

func TestNilCallback(t *testing.T) {
	c := NewController(nil)
	c.Show(spec("doc"))
	c.Hide()
	if c.Visible() {
		t.Error("state transitions must work without a callback")
	}
}
