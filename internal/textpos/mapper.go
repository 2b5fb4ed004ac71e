// Package textpos converts between flat document offsets and LSP
// line/character positions.
//
// Offsets and characters are both counted in UTF-16 code units, matching
// the LSP base protocol, so conversions round-trip exactly. Conversions are
// strict: a position beyond a line's length or an offset outside the
// document is an error, never a clamped guess.
package textpos

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/lspbridge/internal/protocol"
)

// ErrOutOfRange indicates a position or offset outside the document.
var ErrOutOfRange = errors.New("textpos: position out of range")

// Mapper is an immutable line index over a text buffer.
type Mapper struct {
	text  string
	lines []lineSpan
}

// lineSpan caches per-line byte and UTF-16 geometry. Start offsets include
// the newlines of all preceding lines; lengths exclude the trailing newline.
type lineSpan struct {
	byteStart int
	byteLen   int
	u16Start  int
	u16Len    int
}

// NewMapper builds a line index for the given text.
func NewMapper(text string) *Mapper {
	m := &Mapper{text: text}

	byteStart, u16Start := 0, 0
	u16 := 0
	for i, r := range text {
		if r == '\n' {
			m.lines = append(m.lines, lineSpan{
				byteStart: byteStart,
				byteLen:   i - byteStart,
				u16Start:  u16Start,
				u16Len:    u16 - u16Start,
			})
			byteStart = i + 1
			u16Start = u16 + 1
		}
		if r >= 0x10000 {
			u16 += 2
		} else {
			u16++
		}
	}
	m.lines = append(m.lines, lineSpan{
		byteStart: byteStart,
		byteLen:   len(text) - byteStart,
		u16Start:  u16Start,
		u16Len:    u16 - u16Start,
	})
	return m
}

// Text returns the underlying buffer.
func (m *Mapper) Text() string {
	return m.text
}

// LineCount returns the number of lines. An empty buffer has one line.
func (m *Mapper) LineCount() int {
	return len(m.lines)
}

// LineText returns the content of a line without its newline, or "" for an
// out-of-range line.
func (m *Mapper) LineText(line int) string {
	if line < 0 || line >= len(m.lines) {
		return ""
	}
	l := m.lines[line]
	return m.text[l.byteStart : l.byteStart+l.byteLen]
}

// Len returns the document length in UTF-16 code units.
func (m *Mapper) Len() int {
	last := m.lines[len(m.lines)-1]
	return last.u16Start + last.u16Len
}

// OffsetToPosition converts a flat UTF-16 offset to a position.
func (m *Mapper) OffsetToPosition(offset int) (protocol.Position, error) {
	if offset < 0 || offset > m.Len() {
		return protocol.Position{}, fmt.Errorf("%w: offset %d (len %d)", ErrOutOfRange, offset, m.Len())
	}

	// First line whose end lies at or beyond the offset. The newline
	// between lines occupies one unit, so the mapping is unambiguous.
	line := sort.Search(len(m.lines), func(i int) bool {
		l := m.lines[i]
		return offset <= l.u16Start+l.u16Len
	})
	l := m.lines[line]
	return protocol.Position{Line: line, Character: offset - l.u16Start}, nil
}

// PositionToOffset converts a position to a flat UTF-16 offset. A character
// index beyond the line's length is an error.
func (m *Mapper) PositionToOffset(pos protocol.Position) (int, error) {
	if pos.Line < 0 || pos.Line >= len(m.lines) {
		return 0, fmt.Errorf("%w: line %d (lines %d)", ErrOutOfRange, pos.Line, len(m.lines))
	}
	l := m.lines[pos.Line]
	if pos.Character < 0 || pos.Character > l.u16Len {
		return 0, fmt.Errorf("%w: character %d on line %d (len %d)", ErrOutOfRange, pos.Character, pos.Line, l.u16Len)
	}
	return l.u16Start + pos.Character, nil
}

// PositionToByteOffset converts a position to a byte offset into Text().
func (m *Mapper) PositionToByteOffset(pos protocol.Position) (int, error) {
	if pos.Line < 0 || pos.Line >= len(m.lines) {
		return 0, fmt.Errorf("%w: line %d (lines %d)", ErrOutOfRange, pos.Line, len(m.lines))
	}
	l := m.lines[pos.Line]
	lineText := m.text[l.byteStart : l.byteStart+l.byteLen]

	b, ok := utf16ToByte(lineText, pos.Character)
	if !ok {
		return 0, fmt.Errorf("%w: character %d on line %d", ErrOutOfRange, pos.Character, pos.Line)
	}
	return l.byteStart + b, nil
}

// ByteOffsetToPosition converts a byte offset into Text() to a position.
// The offset must land on a rune boundary within the document.
func (m *Mapper) ByteOffsetToPosition(offset int) (protocol.Position, error) {
	if offset < 0 || offset > len(m.text) {
		return protocol.Position{}, fmt.Errorf("%w: byte offset %d (len %d)", ErrOutOfRange, offset, len(m.text))
	}

	line := sort.Search(len(m.lines), func(i int) bool {
		l := m.lines[i]
		return offset <= l.byteStart+l.byteLen
	})
	l := m.lines[line]
	lineText := m.text[l.byteStart : l.byteStart+l.byteLen]

	u16 := 0
	for i, r := range lineText {
		if i >= offset-l.byteStart {
			if i != offset-l.byteStart {
				return protocol.Position{}, fmt.Errorf("%w: byte offset %d splits a rune", ErrOutOfRange, offset)
			}
			break
		}
		if r >= 0x10000 {
			u16 += 2
		} else {
			u16++
		}
	}
	return protocol.Position{Line: line, Character: u16}, nil
}

// utf16ToByte converts a UTF-16 offset within a line to a byte offset.
// Reports false when the offset exceeds the line or splits a surrogate pair.
func utf16ToByte(s string, u16 int) (int, bool) {
	if u16 < 0 {
		return 0, false
	}
	if u16 == 0 {
		return 0, true
	}

	count := 0
	for i, r := range s {
		if count == u16 {
			return i, true
		}
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
		if count > u16 {
			// Offset points into the middle of a surrogate pair.
			return 0, false
		}
	}
	if count == u16 {
		return len(s), true
	}
	return 0, false
}

// Compare orders two positions: -1 if a precedes b, 0 if equal, 1 if after.
func Compare(a, b protocol.Position) int {
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Character < b.Character:
		return -1
	case a.Character > b.Character:
		return 1
	default:
		return 0
	}
}

// InRange reports whether pos lies within rng (start inclusive, end
// inclusive, matching how diagnostics are hit-tested).
func InRange(pos protocol.Position, rng protocol.Range) bool {
	return Compare(pos, rng.Start) >= 0 && Compare(pos, rng.End) <= 0
}
