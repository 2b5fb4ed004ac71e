// Package trigger decides when editor events should become protocol
// requests: completion trigger-kind inference, signature-help trigger
// placement, and the cursor-inside-call predicate.
//
// All three are pure functions; they run on keystrokes and keep no state.
package trigger

import (
	"regexp"
	"strings"

	"github.com/dshills/lspbridge/internal/protocol"
	"github.com/dshills/lspbridge/internal/textpos"
)

// DefaultMaxLinesBack bounds the backward window of the inside-call scan.
const DefaultMaxLinesBack = 20

// completionPattern matches text that should implicitly invoke completion:
// the end of a word, or a word followed by a member/path accessor.
var completionPattern = regexp.MustCompile(`(\w+|\w+\.|\w+/)$`)

// CompletionTrigger is the outcome of completion-trigger inference.
type CompletionTrigger struct {
	Kind      protocol.CompletionTriggerKind
	Character string // set only for TriggerCharacter
}

// Completion infers whether completion should fire given the text before
// the cursor, whether the user explicitly invoked it, and the server's
// trigger characters. A nil return means no completion fires.
//
// Precedence: explicit invocation, then trigger character, then the
// word/member-access pattern.
func Completion(before string, explicit bool, triggerChars []string) *CompletionTrigger {
	return CompletionWithPattern(before, explicit, triggerChars, completionPattern)
}

// CompletionWithPattern is Completion with a caller-supplied implicit
// pattern replacing the default.
func CompletionWithPattern(before string, explicit bool, triggerChars []string, pattern *regexp.Regexp) *CompletionTrigger {
	if explicit {
		return &CompletionTrigger{Kind: protocol.CompletionTriggerKindInvoked}
	}

	if last := lastChar(before); last != "" {
		for _, tc := range triggerChars {
			if tc == last {
				return &CompletionTrigger{
					Kind:      protocol.CompletionTriggerKindTriggerCharacter,
					Character: tc,
				}
			}
		}
	}

	if pattern != nil && pattern.MatchString(before) {
		return &CompletionTrigger{Kind: protocol.CompletionTriggerKindInvoked}
	}
	return nil
}

// lastChar returns the final rune of s as a string, or "".
func lastChar(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	return string(runes[len(runes)-1])
}

// SignatureTrigger is the outcome of signature-help trigger inference.
type SignatureTrigger struct {
	// Pos is the document offset where signature help should anchor: the
	// position immediately after the matched trigger character.
	Pos int
	// Character is the trigger character that matched.
	Character string
}

// SignatureHelp scans an inserted text fragment for a signature-help
// trigger. insertOffset is the document offset where the insertion began.
//
// The earliest match position in the fragment wins; when several trigger
// sequences match at the same position, list order breaks the tie. The
// anchor lands right after the matched character, so an auto-paired "()"
// insertion triggers between the brackets, not after the pair.
func SignatureHelp(inserted string, insertOffset int, triggerChars []string) *SignatureTrigger {
	if inserted == "" || len(triggerChars) == 0 {
		return nil
	}

	for i := range inserted {
		for _, tc := range triggerChars {
			if tc == "" {
				continue
			}
			if strings.HasPrefix(inserted[i:], tc) {
				return &SignatureTrigger{
					Pos:       insertOffset + i + len(tc),
					Character: tc,
				}
			}
		}
	}
	return nil
}

// InsideCall reports whether the cursor sits inside an unclosed call,
// judged by the running parenthesis balance over a backward window of at
// most maxLinesBack lines (DefaultMaxLinesBack when <= 0). Only '(' and ')'
// participate; other bracket kinds are ignored.
//
// Known limitation: parentheses inside string literals are counted. The
// scan is byte-wise over existing line slices and allocates nothing.
func InsideCall(m *textpos.Mapper, pos protocol.Position, maxLinesBack int) bool {
	if maxLinesBack <= 0 {
		maxLinesBack = DefaultMaxLinesBack
	}
	if pos.Line < 0 || pos.Line >= m.LineCount() {
		return false
	}

	startLine := pos.Line - maxLinesBack + 1
	if startLine < 0 {
		startLine = 0
	}

	balance := 0
	for line := startLine; line <= pos.Line; line++ {
		text := m.LineText(line)
		limit := len(text)
		if line == pos.Line {
			b, err := m.PositionToByteOffset(pos)
			if err != nil {
				return false
			}
			// PositionToByteOffset is document-relative; recover the
			// in-line offset from the line start.
			lineStart, _ := m.PositionToByteOffset(protocol.Position{Line: line})
			limit = b - lineStart
		}
		for i := 0; i < limit; i++ {
			switch text[i] {
			case '(':
				balance++
			case ')':
				balance--
			}
		}
	}
	return balance > 0
}
