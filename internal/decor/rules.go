package decor

import (
	"regexp"
	"strings"

	"inknote/pkg/markbuf"
)

// Rule is one ordered decoration pass. Ordering is load-bearing: later rules
// must not re-match text an earlier rule already marker-hid, and the one
// MutatesText rule (images) runs in its own final pass so buffer offsets stay
// valid for everything before it.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	MutatesText bool
	RawColor    uint32
	Apply       func(e *Engine, buf *markbuf.Buffer, m []int)
}

var (
	reHeader    = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
	reUnordered = regexp.MustCompile(`(?m)^([ \t]*)([-*+]) (.+)$`)
	reOrdered   = regexp.MustCompile(`(?m)^([ \t]*)(\d+\.) (.+)$`)
	reChecklist = regexp.MustCompile(`(?m)^([ \t]*)- \[( |x|X)\] (.*)$`)
	reQuote     = regexp.MustCompile(`(?m)^> (.*)$`)
	reBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic    = regexp.MustCompile(`\*\*.+?\*\*|\*([^*\n]+)\*`)
	reStrike    = regexp.MustCompile(`~~(.+?)~~`)
	reCode      = regexp.MustCompile("`([^`\n]+)`")
	reLink      = regexp.MustCompile(`\[([^\]]*)\]\(([^\)]*)\)`)
	reRule      = regexp.MustCompile(`(?m)^(---|_{3,}|\*{3,})$`)
	reImage     = regexp.MustCompile(`!\[([^\]]*)\]\(([^\)]*)\)`)
)

var headerSizes = [6]uint16{26, 22, 19, 17, 15, 14}

func defaultRules() []Rule {
	return []Rule{
		{Name: "header", Pattern: reHeader, RawColor: colorAccent, Apply: applyHeader},
		{Name: "unordered-list", Pattern: reUnordered, RawColor: colorAccent, Apply: applyUnorderedList},
		{Name: "ordered-list", Pattern: reOrdered, RawColor: colorAccent, Apply: applyOrderedList},
		{Name: "checklist", Pattern: reChecklist, RawColor: colorMuted, Apply: applyChecklist},
		{Name: "blockquote", Pattern: reQuote, RawColor: colorMuted, Apply: applyBlockquote},
		{Name: "bold", Pattern: reBold, RawColor: colorHeading, Apply: applyBold},
		{Name: "italic", Pattern: reItalic, RawColor: colorHeading, Apply: applyItalic},
		{Name: "strikethrough", Pattern: reStrike, RawColor: colorMuted, Apply: applyStrike},
		{Name: "inline-code", Pattern: reCode, RawColor: colorCodeFg, Apply: applyCode},
		{Name: "link", Pattern: reLink, RawColor: colorLink, Apply: applyLink},
		{Name: "horizontal-rule", Pattern: reRule, RawColor: colorMuted, Apply: applyHorizontalRule},
		{Name: "image", Pattern: reImage, MutatesText: true, RawColor: colorLink},
	}
}

func applyHeader(e *Engine, buf *markbuf.Buffer, m []int) {
	hs, he, ok := group(m, 1)
	if !ok {
		return
	}
	ts, te, ok := group(m, 2)
	if !ok {
		return
	}
	level := he - hs
	if level < 1 || level > 6 {
		return
	}
	// hide the hashes and the separating whitespace with them
	e.hide(buf, hs, ts)
	buf.Apply(ts, te, func(a *markbuf.Attr) {
		a.Bold = true
		a.FontSizePt = headerSizes[level-1]
		a.ColorRGBA = colorHeading
		if level <= 2 {
			a.Underline = true
		}
	})
}

func applyUnorderedList(e *Engine, buf *markbuf.Buffer, m []int) {
	ws, we, ok := group(m, 1)
	if !ok {
		return
	}
	bs, be, ok := group(m, 2)
	if !ok {
		return
	}
	_, te, ok := group(m, 3)
	if !ok {
		return
	}
	depth := indentDepth(buf.Bytes()[ws:we])
	buf.Apply(ws, te, func(a *markbuf.Attr) { a.Indent = depth })
	buf.Apply(bs, be, func(a *markbuf.Attr) { a.ColorRGBA = colorAccent })
}

func applyOrderedList(e *Engine, buf *markbuf.Buffer, m []int) {
	applyUnorderedList(e, buf, m)
}

func applyChecklist(e *Engine, buf *markbuf.Buffer, m []int) {
	ws, _, ok := group(m, 1)
	if !ok {
		return
	}
	cs, ce, ok := group(m, 2)
	if !ok {
		return
	}
	ts, te, ok := group(m, 3)
	if !ok {
		return
	}
	checked := ce > cs && (buf.Bytes()[cs] == 'x' || buf.Bytes()[cs] == 'X')
	// dim the whole "- [x]" prefix, not just the state character
	buf.Apply(ws, ce+1, func(a *markbuf.Attr) { a.ColorRGBA = colorMuted })
	if checked {
		buf.Apply(ts, te, func(a *markbuf.Attr) {
			a.Strike = true
			a.ColorRGBA = colorMuted
		})
	}
}

func applyBlockquote(e *Engine, buf *markbuf.Buffer, m []int) {
	ts, te, ok := group(m, 1)
	if !ok {
		return
	}
	ms, _, ok := group(m, 0)
	if !ok {
		return
	}
	buf.Apply(ms, ts, func(a *markbuf.Attr) { a.ColorRGBA = colorMuted })
	buf.Apply(ts, te, func(a *markbuf.Attr) {
		a.Italic = true
		a.Indent = 1
	})
}

func applyBold(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	ts, te, ok := group(m, 1)
	if !ok {
		return
	}
	if e.alreadyHidden(buf, ms) {
		return
	}
	e.hide(buf, ms, ts)
	e.hide(buf, te, me)
	buf.Apply(ts, te, func(a *markbuf.Attr) { a.Bold = true })
}

// applyItalic styles single-asterisk spans. RE2 has no lookaround, so the
// pattern consumes double-asterisk spans as a captureless alternative: a
// match without group 1 is a bold span the scanner must step over, not an
// italic occurrence. The neighbour-byte checks stay as a second guard for
// unbalanced runs.
func applyItalic(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	ts, te, ok := group(m, 1)
	if !ok {
		return // bold alternative consumed, no italic group
	}
	text := buf.Bytes()
	if ms > 0 && text[ms-1] == '*' {
		return
	}
	if me < len(text) && text[me] == '*' {
		return
	}
	if e.alreadyHidden(buf, ms) {
		return
	}
	e.hide(buf, ms, ts)
	e.hide(buf, te, me)
	buf.Apply(ts, te, func(a *markbuf.Attr) { a.Italic = true })
}

func applyStrike(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	ts, te, ok := group(m, 1)
	if !ok {
		return
	}
	if e.alreadyHidden(buf, ms) {
		return
	}
	e.hide(buf, ms, ts)
	e.hide(buf, te, me)
	buf.Apply(ts, te, func(a *markbuf.Attr) { a.Strike = true })
}

func applyCode(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	ts, te, ok := group(m, 1)
	if !ok {
		return
	}
	if e.alreadyHidden(buf, ms) {
		return
	}
	e.hide(buf, ms, ts)
	e.hide(buf, te, me)
	buf.Apply(ts, te, func(a *markbuf.Attr) {
		a.Code = true
		a.FontFamily = markbuf.FontMono
		a.BgRGBA = colorCodeBg
	})
}

func applyLink(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	ts, te, ok := group(m, 1)
	if !ok {
		return
	}
	us, ue, ok := group(m, 2)
	if !ok {
		return
	}
	if ms > 0 && buf.Bytes()[ms-1] == '!' {
		return // image tag, handled by the final pass
	}
	if e.alreadyHidden(buf, ms) {
		return
	}
	url := string(buf.Bytes()[us:ue])
	e.hide(buf, ms, ts) // opening bracket
	e.hide(buf, te, me) // closing bracket, parens, and the URL itself
	buf.Apply(ts, te, func(a *markbuf.Attr) {
		a.Underline = true
		a.ColorRGBA = colorLink
		a.Link = url
	})
}

func applyHorizontalRule(e *Engine, buf *markbuf.Buffer, m []int) {
	ms, me, ok := group(m, 0)
	if !ok {
		return
	}
	buf.Apply(ms, me, func(a *markbuf.Attr) {
		a.Strike = true
		a.ColorRGBA = colorRuleLine
	})
}

func indentDepth(ws []byte) uint8 {
	cols := 0
	for _, c := range ws {
		if c == '\t' {
			cols += 2
			continue
		}
		cols++
	}
	depth := cols / 2
	if depth > 8 {
		depth = 8
	}
	return uint8(depth)
}

// rejectNestedRef guards image refs: the renderer only resolves plain
// filenames inside the asset directory.
func rejectNestedRef(ref string) bool {
	return strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..")
}
