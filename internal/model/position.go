package model

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Span is a half-open byte range [Start, End) within a file's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether off lies in [Start, End).
func (s Span) Contains(off int) bool { return s.Start <= off && off < s.End }

// Covers reports whether s fully encloses o.
func (s Span) Covers(o Span) bool { return s.Start <= o.Start && o.End <= s.End }

// Valid reports whether the span is well formed and fits in a text of size bytes.
func (s Span) Valid(size int) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= size
}

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Position is a 0-based line and UTF-16 column, matching editor conventions.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a pair of positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location pins a span to a file.
type Location struct {
	Path  string `json:"path"`
	Span  Span   `json:"span"`
	Range Range  `json:"range"`
}

// Less orders locations by path, then start offset, then end offset.
func (l Location) Less(o Location) bool {
	if l.Path != o.Path {
		return l.Path < o.Path
	}
	if l.Span.Start != o.Span.Start {
		return l.Span.Start < o.Span.Start
	}
	return l.Span.End < o.Span.End
}

// SameSpan reports whether two locations cover the same bytes of the same file.
func (l Location) SameSpan(o Location) bool {
	return l.Path == o.Path && l.Span == o.Span
}

// LineIndex converts between byte offsets and line/character positions for
// one version of a file's text.
type LineIndex struct {
	text       string
	lineStarts []int
}

// NewLineIndex scans text for line breaks. "\n", "\r\n" and lone "\r" all
// terminate a line.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, lineStarts: starts}
}

// Size returns the text length in bytes.
func (x *LineIndex) Size() int { return len(x.text) }

// LineCount returns the number of lines, counting a trailing empty line.
func (x *LineIndex) LineCount() int { return len(x.lineStarts) }

// Position converts a byte offset to a position. Offsets are clamped to the
// text bounds.
func (x *LineIndex) Position(off int) Position {
	if off < 0 {
		off = 0
	}
	if off > len(x.text) {
		off = len(x.text)
	}
	line := sort.Search(len(x.lineStarts), func(i int) bool { return x.lineStarts[i] > off }) - 1
	start := x.lineStarts[line]
	return Position{Line: line, Character: utf16Len(x.text[start:off])}
}

// Range converts a span to a range.
func (x *LineIndex) Range(s Span) Range {
	return Range{Start: x.Position(s.Start), End: x.Position(s.End)}
}

// Offset converts a position to a byte offset. Lines past the end map to the
// end of the text, characters past the end of a line map to the line end.
func (x *LineIndex) Offset(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(x.lineStarts) {
		return len(x.text)
	}
	start := x.lineStarts[p.Line]
	end := len(x.text)
	if p.Line+1 < len(x.lineStarts) {
		end = x.lineStarts[p.Line+1]
	}
	for end > start && (x.text[end-1] == '\n' || x.text[end-1] == '\r') {
		end--
	}

	units := 0
	off := start
	for off < end && units < p.Character {
		r, size := utf8.DecodeRuneInString(x.text[off:end])
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		off += size
	}
	return off
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
