// Package markbuf implements the attributed text buffer the editor renders
// from. The buffer holds the exact Markdown source as UTF-8 bytes plus a
// sorted, non-overlapping list of attribute spans keyed by byte range. Text
// mutations re-clip the spans; attribute mutations never touch the bytes, so
// stripping all spans always yields the original Markdown.
package markbuf

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

type FontFamily uint8

const (
	FontSans FontFamily = iota
	FontSerif
	FontMono
)

// Attr is the presentation state of one byte range. A zero FontSizePt or
// ColorRGBA means "unset" and is normalized against the buffer base style.
type Attr struct {
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Code      bool
	Hidden    bool // marker-hiding: rendered near-zero size, background color

	FontFamily FontFamily
	FontSizePt uint16
	ColorRGBA  uint32
	BgRGBA     uint32 // 0 = no background tint
	Indent     uint8  // paragraph indent level

	Link  string // actionable URL for link interiors
	Image string // resolved asset path for embedded image attachments
}

type Span struct {
	Start uint32
	End   uint32
	Attr  Attr
}

// Buffer owns the Markdown source and its attribute projection. It is not
// safe for concurrent use; there is exactly one mutator thread.
type Buffer struct {
	utf8  []byte
	spans []Span
	base  Attr
}

// DefaultBase is the style every range falls back to after a reset.
func DefaultBase() Attr {
	return Attr{FontSizePt: 14, ColorRGBA: 0x202020FF, FontFamily: FontSans}
}

func New(text string, base Attr) (*Buffer, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("markbuf: text must be valid UTF-8")
	}
	base = normalize(base, DefaultBase())
	b := &Buffer{utf8: []byte(strings.ReplaceAll(text, "\r\n", "\n")), base: base}
	b.spans = b.sanitize(nil)
	return b, nil
}

func (b *Buffer) Len() int      { return len(b.utf8) }
func (b *Buffer) Text() string  { return string(b.utf8) }
func (b *Buffer) Bytes() []byte { return b.utf8 }
func (b *Buffer) Base() Attr    { return b.base }

// Spans returns a full-coverage copy of the attribute map.
func (b *Buffer) Spans() []Span {
	out := make([]Span, len(b.spans))
	copy(out, b.spans)
	return out
}

// SpansIn returns the coverage spans clipped to [start, end).
func (b *Buffer) SpansIn(start, end int) []Span {
	start, end = b.clampRange(start, end)
	out := make([]Span, 0, 4)
	for _, s := range b.spans {
		ss, se := int(s.Start), int(s.End)
		if se <= start || ss >= end {
			continue
		}
		if ss < start {
			ss = start
		}
		if se > end {
			se = end
		}
		out = append(out, Span{Start: uint32(ss), End: uint32(se), Attr: s.Attr})
	}
	return out
}

// AttrAt reports the attribute in effect at the given byte position.
func (b *Buffer) AttrAt(pos int) Attr {
	if len(b.utf8) == 0 {
		if len(b.spans) > 0 {
			return b.spans[0].Attr
		}
		return b.base
	}
	if pos < 0 {
		pos = 0
	}
	if pos >= len(b.utf8) {
		pos = len(b.utf8) - 1
	}
	for _, s := range b.spans {
		if int(s.Start) <= pos && pos < int(s.End) {
			return s.Attr
		}
	}
	return b.base
}

// Reset restores [start, end) to the base style.
func (b *Buffer) Reset(start, end int) {
	b.SetAttr(start, end, b.base)
}

// SetAttr overwrites the attributes of [start, end).
func (b *Buffer) SetAttr(start, end int, attr Attr) {
	b.Apply(start, end, func(a *Attr) { *a = attr })
}

// Apply mutates the attributes of [start, end) in place, splitting spans at
// the range boundaries. The text is never modified.
func (b *Buffer) Apply(start, end int, mut func(*Attr)) {
	if mut == nil {
		return
	}
	start, end = b.clampRange(start, end)
	if len(b.utf8) == 0 {
		attr := b.base
		if len(b.spans) > 0 {
			attr = b.spans[0].Attr
		}
		mut(&attr)
		b.spans = []Span{{Start: 0, End: 0, Attr: normalize(attr, b.base)}}
		return
	}
	if start >= end {
		return
	}
	next := make([]Span, 0, len(b.spans)+2)
	for _, s := range b.spans {
		ss, se := int(s.Start), int(s.End)
		if se <= start || ss >= end {
			next = append(next, s)
			continue
		}
		if ss < start {
			next = append(next, Span{Start: uint32(ss), End: uint32(start), Attr: s.Attr})
			ss = start
		}
		mid := se
		if mid > end {
			mid = end
		}
		attr := s.Attr
		mut(&attr)
		next = append(next, Span{Start: uint32(ss), End: uint32(mid), Attr: normalize(attr, b.base)})
		if se > end {
			next = append(next, Span{Start: uint32(end), End: uint32(se), Attr: s.Attr})
		}
	}
	b.spans = b.sanitize(next)
}

// Replace substitutes [start, end) with insert. Spans right of the edit are
// shifted, spans crossing it are clipped, and the inserted bytes take the
// supplied attribute. This is the single text-mutation entry point.
func (b *Buffer) Replace(start, end int, insert string, attr Attr) error {
	if !utf8.ValidString(insert) {
		return fmt.Errorf("markbuf: insert must be valid UTF-8")
	}
	start, end = b.clampRange(start, end)
	ins := []byte(insert)
	delta := len(ins) - (end - start)

	next := make([]byte, 0, len(b.utf8)+delta)
	next = append(next, b.utf8[:start]...)
	next = append(next, ins...)
	next = append(next, b.utf8[end:]...)

	shifted := make([]Span, 0, len(b.spans)+1)
	for _, s := range b.spans {
		ss, se := int(s.Start), int(s.End)
		switch {
		case se <= start:
			shifted = append(shifted, s)
		case ss >= end:
			shifted = append(shifted, Span{Start: uint32(ss + delta), End: uint32(se + delta), Attr: s.Attr})
		default:
			if ss < start {
				shifted = append(shifted, Span{Start: uint32(ss), End: uint32(start), Attr: s.Attr})
			}
			if se > end {
				shifted = append(shifted, Span{Start: uint32(end + delta), End: uint32(se + delta), Attr: s.Attr})
			}
		}
	}
	if len(ins) > 0 {
		shifted = append(shifted, Span{Start: uint32(start), End: uint32(start + len(ins)), Attr: normalize(attr, b.base)})
	}
	b.utf8 = next
	b.spans = b.sanitize(shifted)
	return nil
}

// Insert places text at pos with the base attribute.
func (b *Buffer) Insert(pos int, text string) error {
	return b.Replace(pos, pos, text, b.base)
}

// Delete removes [start, end).
func (b *Buffer) Delete(start, end int) {
	_ = b.Replace(start, end, "", b.base)
}

// ParagraphRange widens [start, end) to full newline-delimited lines. Line
// anchored decoration rules need the whole line as context.
func (b *Buffer) ParagraphRange(start, end int) (int, int) {
	start, end = b.clampRange(start, end)
	for start > 0 && b.utf8[start-1] != '\n' {
		start--
	}
	for end < len(b.utf8) && b.utf8[end] != '\n' {
		end++
	}
	return start, end
}

// ClampToRuneBoundary pulls pos back to the nearest rune start at or before
// it.
func (b *Buffer) ClampToRuneBoundary(pos int) int {
	return clampToRuneBoundary(b.utf8, pos)
}

func (b *Buffer) clampRange(start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if start > len(b.utf8) {
		start = len(b.utf8)
	}
	if end > len(b.utf8) {
		end = len(b.utf8)
	}
	if start > end {
		start, end = end, start
	}
	return start, end
}

// sanitize sorts, clips, drops empties, merges equal neighbours, and fills
// coverage gaps with the base style so the span list always covers the whole
// text exactly once.
func (b *Buffer) sanitize(spans []Span) []Span {
	textLen := len(b.utf8)
	if textLen == 0 {
		if len(spans) == 0 {
			return []Span{{Start: 0, End: 0, Attr: b.base}}
		}
		return []Span{{Start: 0, End: 0, Attr: normalize(spans[0].Attr, b.base)}}
	}

	clean := make([]Span, 0, len(spans))
	for _, s := range spans {
		ss, se := int(s.Start), int(s.End)
		if ss < 0 {
			ss = 0
		}
		if se > textLen {
			se = textLen
		}
		if ss >= se {
			continue
		}
		clean = append(clean, Span{Start: uint32(ss), End: uint32(se), Attr: normalize(s.Attr, b.base)})
	}
	sort.Slice(clean, func(i, j int) bool {
		if clean[i].Start == clean[j].Start {
			return clean[i].End < clean[j].End
		}
		return clean[i].Start < clean[j].Start
	})

	out := make([]Span, 0, len(clean)+2)
	for _, s := range clean {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}
		last := &out[len(out)-1]
		if s.Start < last.End {
			if s.End <= last.End {
				continue
			}
			s.Start = last.End
		}
		if last.End == s.Start && attrsEqual(last.Attr, s.Attr) {
			last.End = s.End
			continue
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return []Span{{Start: 0, End: uint32(textLen), Attr: b.base}}
	}
	if out[0].Start > 0 {
		out = append([]Span{{Start: 0, End: out[0].Start, Attr: b.base}}, out...)
	}
	if int(out[len(out)-1].End) < textLen {
		out = append(out, Span{Start: out[len(out)-1].End, End: uint32(textLen), Attr: b.base})
	}
	for i := 1; i < len(out); i++ {
		if out[i].Start > out[i-1].End {
			gap := Span{Start: out[i-1].End, End: out[i].Start, Attr: b.base}
			out = append(out[:i], append([]Span{gap}, out[i:]...)...)
			i++
		}
	}
	return out
}

func normalize(attr, base Attr) Attr {
	if attr.FontSizePt == 0 {
		attr.FontSizePt = base.FontSizePt
	}
	if attr.ColorRGBA == 0 {
		attr.ColorRGBA = base.ColorRGBA
	}
	if attr.FontFamily != FontSans && attr.FontFamily != FontSerif && attr.FontFamily != FontMono {
		attr.FontFamily = base.FontFamily
	}
	return attr
}

func attrsEqual(a, b Attr) bool {
	return a == b
}

func clampToRuneBoundary(text []byte, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	for pos > 0 && pos < len(text) && (text[pos]&0xC0) == 0x80 {
		pos--
	}
	return pos
}
