package rank

import (
	"testing"

	"github.com/dshills/lspbridge/internal/protocol"
)

func items(labels ...string) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, len(labels))
	for i, l := range labels {
		out[i] = protocol.CompletionItem{Label: l}
	}
	return out
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRankFiltersAndSorts(t *testing.T) {
	got := Rank(items("zebra", "alpha", "test", "testing"), "te", "go")
	if !equal(labels(got), []string{"test", "testing"}) {
		t.Errorf("with token: got %v", labels(got))
	}
}

func TestRankNoToken(t *testing.T) {
	got := Rank(items("zebra", "alpha", "test", "testing"), "", "go")
	if !equal(labels(got), []string{"alpha", "test", "testing", "zebra"}) {
		t.Errorf("no token: got %v", labels(got))
	}
}

func TestRankNonWordTokenSkipsFilter(t *testing.T) {
	// A bare punctuation trigger is not a word token; nothing is filtered.
	got := Rank(items("zebra", "alpha"), ".", "go")
	if len(got) != 2 {
		t.Errorf("punctuation token should skip filtering, got %v", labels(got))
	}
}

func TestRankFilterCaseInsensitive(t *testing.T) {
	got := Rank(items("TestCase", "other"), "te", "go")
	if !equal(labels(got), []string{"TestCase"}) {
		t.Errorf("got %v", labels(got))
	}
}

func TestRankUsesFilterText(t *testing.T) {
	candidates := []protocol.CompletionItem{
		{Label: "[signal]", FilterText: "signal"},
		{Label: "other"},
	}
	got := Rank(candidates, "sig", "go")
	if len(got) != 1 || got[0].Label != "[signal]" {
		t.Errorf("filterText not honored: got %v", labels(got))
	}
}

func TestRankUsesSortText(t *testing.T) {
	candidates := []protocol.CompletionItem{
		{Label: "bbb", SortText: "0001"},
		{Label: "aaa", SortText: "0002"},
	}
	got := Rank(candidates, "", "go")
	if !equal(labels(got), []string{"bbb", "aaa"}) {
		t.Errorf("sortText not honored: got %v", labels(got))
	}
}

func TestRankTokenPrefixGroupFirst(t *testing.T) {
	// Keys starting with the token sort entirely before the rest, keeping
	// lexicographic order inside each group.
	candidates := []protocol.CompletionItem{
		{Label: "append"},
		{Label: "telem", FilterText: "telem"},
		{Label: "Tent", FilterText: "tent"},
	}
	// Filter keeps all three (case-insensitive), the case-sensitive prefix
	// group contains only "telem".
	got := Rank(candidates, "te", "go")
	if !equal(labels(got), []string{"telem", "Tent", "append"}) {
		t.Errorf("got %v", labels(got))
	}
}

func TestRankPythonKeywordArgsFirst(t *testing.T) {
	got := Rank(items("value", "name=", "id="), "", "python")
	if !equal(labels(got), []string{"id=", "name=", "value"}) {
		t.Errorf("python kwargs: got %v", labels(got))
	}

	// Same items outside Python keep plain lexicographic order.
	got = Rank(items("value", "name=", "id="), "", "go")
	if !equal(labels(got), []string{"id=", "name=", "value"}) {
		t.Errorf("go: got %v", labels(got))
	}
}

func TestRankUnderscoreNotSpecialCased(t *testing.T) {
	// Underscore candidates are never filtered out, and their placement is
	// purely the sort key's byte order. Servers that want them deferred
	// assign a later sortText, which the key honors as-is.
	got := Rank(items("_private", "public"), "", "go")
	if !equal(labels(got), []string{"_private", "public"}) {
		t.Errorf("got %v", labels(got))
	}

	deferred := []protocol.CompletionItem{
		{Label: "_private", SortText: "zz-_private"},
		{Label: "public"},
	}
	got = Rank(deferred, "", "go")
	if !equal(labels(got), []string{"public", "_private"}) {
		t.Errorf("server-deferred underscore: got %v", labels(got))
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil, "x", "go"); got != nil {
		t.Errorf("nil items: got %v", got)
	}
}
