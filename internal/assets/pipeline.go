// Package assets ingests pasted or dropped image content. The interaction
// thread inserts an uploading placeholder synchronously, the raw bytes are
// persisted off-thread, and the completion is marshaled back onto the
// interaction thread before it touches the buffer. A placeholder the user
// has already edited away makes the completion a silent no-op.
package assets

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"inknote/pkg/markbuf"
)

type Origin int

const (
	OriginPaste Origin = iota
	OriginDrop
	OriginInline
)

// Store persists raw image bytes and returns the final reference used in
// the markdown image tag.
type Store interface {
	SaveImage(data []byte) (string, error)
}

// Dispatch marshals a completion onto the interaction thread. Buffer
// mutation is not safe from arbitrary goroutines.
type Dispatch func(func())

var reInlineImage = regexp.MustCompile(`!\[([^\]]*)\]\(data:image/([A-Za-z0-9.+-]+);base64,([A-Za-z0-9+/=\r\n]+)\)`)

// Pipeline hands pasted image data to the store and substitutes the
// placeholder once persistence finishes. Save failures are terminal: the
// placeholder stays in the document, which is the visible failure state.
type Pipeline struct {
	// OnSubstituted fires after a successful placeholder swap so the caller
	// can re-decorate the affected range.
	OnSubstituted func(buf *markbuf.Buffer, start, end int)

	store    Store
	dispatch Dispatch
	log      *slog.Logger

	lastStamp int64 // monotonic guard over the wall-clock token source
}

func NewPipeline(store Store, dispatch Dispatch, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: store, dispatch: dispatch, log: log}
}

// PasteImage inserts an uploading placeholder at pos and persists data in
// the background. It returns the process-unique token of the placeholder.
// Must be called from the interaction thread.
func (p *Pipeline) PasteImage(buf *markbuf.Buffer, pos int, data []byte, origin Origin) (string, error) {
	token := p.nextToken()
	placeholder := placeholderFor(token)
	if err := buf.Insert(pos, placeholder+"\n"); err != nil {
		return "", fmt.Errorf("assets: insert placeholder: %w", err)
	}
	p.persist(buf, token, data, origin)
	return token, nil
}

// ScanInline detects an embedded base64 image reference in the buffer and
// converts it to an upload. Only the first match per edit is processed;
// handling several at once would invalidate the later match offsets. The
// base64 payload never survives the edit cycle that introduced it.
func (p *Pipeline) ScanInline(buf *markbuf.Buffer) bool {
	m := reInlineImage.FindSubmatchIndex(buf.Bytes())
	if m == nil {
		return false
	}
	raw := strings.Map(dropSpace, string(buf.Bytes()[m[6]:m[7]]))
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		p.log.Warn("assets: inline image payload not decodable", "err", err)
		return false
	}

	token := p.nextToken()
	if err := buf.Replace(m[0], m[1], placeholderFor(token), buf.Base()); err != nil {
		p.log.Warn("assets: inline placeholder swap failed", "err", err)
		return false
	}
	p.persist(buf, token, data, OriginInline)
	return true
}

func (p *Pipeline) persist(buf *markbuf.Buffer, token string, data []byte, origin Origin) {
	go func() {
		ref, err := p.store.SaveImage(data)
		p.dispatch(func() {
			if err != nil {
				// Terminal: the stuck placeholder is the failure surface.
				p.log.Warn("assets: image save failed, placeholder left unresolved",
					"token", token, "origin", int(origin), "err", err)
				return
			}
			p.resolve(buf, token, ref)
		})
	}()
}

// resolve swaps the placeholder for the final reference. Runs on the
// interaction thread. The placeholder is matched by string search over the
// current text, so completions of concurrent uploads are order-independent.
func (p *Pipeline) resolve(buf *markbuf.Buffer, token, ref string) {
	placeholder := placeholderFor(token)
	idx := strings.Index(buf.Text(), placeholder)
	if idx < 0 {
		p.log.Debug("assets: placeholder gone, dropping completion", "token", token)
		return
	}
	final := fmt.Sprintf("![Image](%s)", ref)
	if err := buf.Replace(idx, idx+len(placeholder), final, buf.Base()); err != nil {
		p.log.Warn("assets: final reference swap failed", "token", token, "err", err)
		return
	}
	if p.OnSubstituted != nil {
		p.OnSubstituted(buf, idx, idx+len(final))
	}
}

// nextToken derives a process-unique token from the wall clock, bumped past
// the previous stamp so rapid successive pastes never collide.
func (p *Pipeline) nextToken() string {
	now := time.Now().UnixNano()
	if now <= p.lastStamp {
		now = p.lastStamp + 1
	}
	p.lastStamp = now
	return fmt.Sprintf("img_%d", now)
}

func placeholderFor(token string) string {
	return fmt.Sprintf("![Uploading Image...](%s)", token)
}

func dropSpace(r rune) rune {
	if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
		return -1
	}
	return r
}
