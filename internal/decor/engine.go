// Package decor is the live Markdown decoration engine. It re-derives the
// presentation attributes of the edited paragraph range on every edit,
// directly against the markbuf buffer: syntax markers are shrunk and painted
// in the background color rather than deleted, so the buffer text stays the
// exact Markdown source. The one exception is image tags, which are replaced
// by an object-replacement character carrying the attachment reference.
package decor

import (
	"inknote/pkg/markbuf"
)

const (
	colorHeading  = 0x1F2A3CFF
	colorAccent   = 0x2B579AFF
	colorMuted    = 0x8A94A6FF
	colorLink     = 0x0B61C9FF
	colorCodeBg   = 0xEFF2F6FF
	colorCodeFg   = 0xA31515FF
	colorRuleLine = 0xB2BFD0FF

	// hiddenSizePt keeps hidden markers measurable but visually absent.
	hiddenSizePt = 1
)

// AttachmentChar replaces a resolved image tag in the buffer.
const AttachmentChar = "￼"

// AssetResolver maps an image reference from a markdown tag to a displayable
// asset path. Resolution failure leaves the tag as plain text.
type AssetResolver interface {
	Resolve(ref string) (string, bool)
}

// Engine applies the ordered rule set. Raw switches to the diagnostics mode:
// color-coded syntax highlighting only, no marker hiding and no destructive
// image replacement.
type Engine struct {
	Resolver   AssetResolver
	Raw        bool
	Background uint32

	rules []Rule
}

func NewEngine(resolver AssetResolver) *Engine {
	return &Engine{
		Resolver:   resolver,
		Background: 0xFFFFFFFF,
		rules:      defaultRules(),
	}
}

// Rules exposes the ordered rule table.
func (e *Engine) Rules() []Rule { return e.rules }

// DecorateAll re-decorates the entire buffer.
func (e *Engine) DecorateAll(buf *markbuf.Buffer) {
	e.Decorate(buf, 0, buf.Len())
}

// Decorate re-derives presentation for the paragraph range enclosing
// [start, end). Attributes in the range are reset to the base style first
// (attachment references survive the reset so already-substituted images are
// not lost), then every non-destructive rule runs in order, then the image
// pass rewrites resolved tags. Running Decorate twice over an unchanged
// range yields an identical attribute map.
func (e *Engine) Decorate(buf *markbuf.Buffer, start, end int) {
	start, end = buf.ParagraphRange(start, end)
	base := buf.Base()
	buf.Apply(start, end, func(a *markbuf.Attr) {
		img := a.Image
		*a = base
		a.Image = img
	})

	for _, r := range e.rules {
		if r.MutatesText && !e.Raw {
			continue
		}
		e.applyRule(r, buf, start, end)
	}
	if e.Raw {
		return
	}
	e.imagePass(buf, start, end)
}

func (e *Engine) applyRule(r Rule, buf *markbuf.Buffer, start, end int) {
	matches := matchAll(r.Pattern, buf.Bytes(), start, end)
	for _, m := range matches {
		if e.Raw {
			if ms, me, ok := group(m, 0); ok {
				c := r.RawColor
				buf.Apply(ms, me, func(a *markbuf.Attr) { a.ColorRGBA = c })
			}
			continue
		}
		if r.Apply != nil {
			r.Apply(e, buf, m)
		}
	}
}

// imagePass is the destructive final pass: each resolvable image tag is
// replaced with an attachment character. Unresolvable tags are left as plain
// unstyled text. The scan restarts after every substitution because the
// replacement shifts offsets.
func (e *Engine) imagePass(buf *markbuf.Buffer, start, end int) {
	if e.Resolver == nil {
		return
	}
	searchFrom := start
	for {
		m := reImage.FindSubmatchIndex(buf.Bytes()[searchFrom:end])
		if m == nil {
			return
		}
		ms := m[0] + searchFrom
		me := m[1] + searchFrom
		rs, re2 := m[4]+searchFrom, m[5]+searchFrom
		if m[4] < 0 {
			searchFrom = me
			continue
		}
		ref := string(buf.Bytes()[rs:re2])
		if rejectNestedRef(ref) {
			searchFrom = me
			continue
		}
		path, ok := e.Resolver.Resolve(ref)
		if !ok {
			searchFrom = me
			continue
		}
		attr := buf.Base()
		attr.Image = path
		if err := buf.Replace(ms, me, AttachmentChar, attr); err != nil {
			searchFrom = me
			continue
		}
		delta := len(AttachmentChar) - (me - ms)
		end += delta
		searchFrom = ms + len(AttachmentChar)
	}
}

// hide shrinks a marker range to near-zero and matches its color to the
// background, preserving buffer offsets while it visually disappears.
func (e *Engine) hide(buf *markbuf.Buffer, start, end int) {
	if start >= end {
		return
	}
	bg := e.Background
	buf.Apply(start, end, func(a *markbuf.Attr) {
		a.Hidden = true
		a.FontSizePt = hiddenSizePt
		a.ColorRGBA = bg
	})
}

// alreadyHidden reports whether an earlier rule marker-hid this offset, in
// which case the occurrence belongs to that rule and is skipped.
func (e *Engine) alreadyHidden(buf *markbuf.Buffer, pos int) bool {
	return buf.AttrAt(pos).Hidden
}
