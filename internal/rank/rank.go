// Package rank filters and orders completion candidates for presentation.
package rank

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/lspbridge/internal/protocol"
)

var wordToken = regexp.MustCompile(`^\w+$`)

// Rank filters and orders candidates for the in-progress token and the
// document's language. Candidates are never mutated; the result is a new
// ordered slice.
//
// A token made solely of word characters filters to candidates whose filter
// text starts with it (case-insensitive); any other token skips filtering.
// The primary order is the case-sensitive sort key (sortText, else label),
// with token-prefixed keys grouped first. Python documents get a final
// stable pass that lifts keyword-argument labels (trailing "=") to the top.
func Rank(items []protocol.CompletionItem, token, languageID string) []protocol.CompletionItem {
	if len(items) == 0 {
		return nil
	}

	filterable := token != "" && wordToken.MatchString(token)

	ranked := make([]protocol.CompletionItem, 0, len(items))
	if filterable {
		lower := strings.ToLower(token)
		for _, item := range items {
			if strings.HasPrefix(strings.ToLower(filterText(item)), lower) {
				ranked = append(ranked, item)
			}
		}
	} else {
		ranked = append(ranked, items...)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := sortKey(ranked[i]), sortKey(ranked[j])
		if token != "" {
			ap := strings.HasPrefix(a, token)
			bp := strings.HasPrefix(b, token)
			if ap != bp {
				return ap
			}
		}
		return a < b
	})

	if languageID == "python" {
		sort.SliceStable(ranked, func(i, j int) bool {
			return isKeywordArg(ranked[i]) && !isKeywordArg(ranked[j])
		})
	}

	return ranked
}

// filterText is the text candidates are filtered on.
func filterText(item protocol.CompletionItem) string {
	if item.FilterText != "" {
		return item.FilterText
	}
	return item.Label
}

// sortKey is the text candidates are ordered on.
func sortKey(item protocol.CompletionItem) string {
	if item.SortText != "" {
		return item.SortText
	}
	return item.Label
}

// isKeywordArg recognizes Python keyword-argument candidates ("name=").
func isKeywordArg(item protocol.CompletionItem) bool {
	return strings.HasSuffix(item.Label, "=")
}
