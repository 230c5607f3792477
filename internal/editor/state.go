// Package editor holds the interaction state of the markdown editor: one
// attributed buffer, a byte caret, an anchored selection, and an undo
// history of text snapshots. Every mutation reports the affected byte range
// through OnEdit so the owner can re-decorate it.
package editor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"inknote/pkg/markbuf"
)

const maxUndoDepth = 200

type snapshot struct {
	text  string
	caret int
}

type State struct {
	Buf         *markbuf.Buffer
	Caret       int
	ZoomPercent int
	HelpVisible bool

	// OnEdit receives the affected byte range after every text mutation.
	OnEdit func(start, end int)

	selectionAnchor    int
	selectionAnchored  bool
	selectionIsVisible bool

	undo []snapshot
	redo []snapshot
}

func NewState(buf *markbuf.Buffer) *State {
	if buf == nil {
		buf, _ = markbuf.New("", markbuf.DefaultBase())
	}
	s := &State{Buf: buf, ZoomPercent: 100}
	s.Normalize()
	return s
}

// Normalize clamps the caret and selection anchor to rune boundaries.
func (s *State) Normalize() {
	if s.Buf == nil {
		s.Buf, _ = markbuf.New("", markbuf.DefaultBase())
	}
	s.Caret = s.Buf.ClampToRuneBoundary(s.Caret)
	if s.selectionAnchored {
		s.selectionAnchor = s.Buf.ClampToRuneBoundary(s.selectionAnchor)
		s.selectionIsVisible = s.selectionAnchor != s.Caret
	}
}

func (s *State) Text() string { return s.Buf.Text() }

// SetText replaces the whole document, clearing selection and history.
func (s *State) SetText(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("editor: text must be valid UTF-8")
	}
	buf, err := markbuf.New(text, s.Buf.Base())
	if err != nil {
		return err
	}
	s.Buf = buf
	s.Caret = 0
	s.ClearSelection()
	s.undo = nil
	s.redo = nil
	s.edited(0, s.Buf.Len())
	return nil
}

func (s *State) SetCaret(pos int) {
	s.Normalize()
	s.Caret = s.Buf.ClampToRuneBoundary(pos)
	if s.selectionAnchored {
		s.selectionIsVisible = s.selectionAnchor != s.Caret
	}
}

func (s *State) MoveCaretLeft() {
	s.Normalize()
	if s.Caret == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(s.Buf.Bytes()[:s.Caret])
	if size <= 0 {
		size = 1
	}
	s.Caret -= size
}

func (s *State) MoveCaretRight() {
	s.Normalize()
	text := s.Buf.Bytes()
	if s.Caret >= len(text) {
		return
	}
	_, size := utf8.DecodeRune(text[s.Caret:])
	if size <= 0 {
		size = 1
	}
	s.Caret += size
}

func (s *State) MoveCaretWordLeft() {
	s.Normalize()
	s.Caret = previousWordBoundary(s.Buf.Bytes(), s.Caret)
}

func (s *State) MoveCaretWordRight() {
	s.Normalize()
	s.Caret = nextWordBoundary(s.Buf.Bytes(), s.Caret)
}

// MoveCaretToLineStart puts the caret after the previous newline.
func (s *State) MoveCaretToLineStart() {
	s.Normalize()
	text := s.Buf.Bytes()
	i := s.Caret
	for i > 0 && text[i-1] != '\n' {
		i--
	}
	s.Caret = i
}

func (s *State) MoveCaretToLineEnd() {
	s.Normalize()
	text := s.Buf.Bytes()
	i := s.Caret
	for i < len(text) && text[i] != '\n' {
		i++
	}
	s.Caret = i
}

// LineRange returns the newline-delimited line containing the caret.
func (s *State) LineRange() (int, int) {
	s.Normalize()
	text := s.Buf.Bytes()
	start := s.Caret
	for start > 0 && text[start-1] != '\n' {
		start--
	}
	end := s.Caret
	for end < len(text) && text[end] != '\n' {
		end++
	}
	return start, end
}

// InsertText inserts at the caret, replacing the selection if one is
// active. CRLF input is normalized.
func (s *State) InsertText(input string) error {
	if input == "" {
		return nil
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("editor: input must be valid UTF-8")
	}
	s.Normalize()
	input = strings.ReplaceAll(input, "\r\n", "\n")
	s.pushUndo()

	if s.HasSelection() {
		start, end, _ := s.SelectionRange()
		if err := s.Buf.Replace(start, end, input, s.Buf.Base()); err != nil {
			return err
		}
		s.Caret = start + len(input)
		s.ClearSelection()
		s.edited(start, start+len(input))
		return nil
	}

	pos := s.Caret
	if err := s.Buf.Insert(pos, input); err != nil {
		return err
	}
	s.Caret = pos + len(input)
	s.ClearSelection()
	s.edited(pos, pos+len(input))
	return nil
}

func (s *State) Backspace() {
	s.Normalize()
	if s.deleteSelectionWithUndo() {
		return
	}
	if s.Caret == 0 {
		return
	}
	s.pushUndo()
	start := previousRuneBoundary(s.Buf.Bytes(), s.Caret)
	s.Buf.Delete(start, s.Caret)
	s.Caret = start
	s.edited(start, start)
}

func (s *State) DeleteForward() {
	s.Normalize()
	if s.deleteSelectionWithUndo() {
		return
	}
	text := s.Buf.Bytes()
	if s.Caret >= len(text) {
		return
	}
	s.pushUndo()
	end := nextRuneBoundary(text, s.Caret)
	s.Buf.Delete(s.Caret, end)
	s.edited(s.Caret, s.Caret)
}

func (s *State) DeleteWordBackward() {
	s.Normalize()
	if s.deleteSelectionWithUndo() {
		return
	}
	if s.Caret == 0 {
		return
	}
	s.pushUndo()
	start := previousWordBoundary(s.Buf.Bytes(), s.Caret)
	s.Buf.Delete(start, s.Caret)
	s.Caret = start
	s.edited(start, start)
}

func (s *State) DeleteWordForward() {
	s.Normalize()
	if s.deleteSelectionWithUndo() {
		return
	}
	text := s.Buf.Bytes()
	if s.Caret >= len(text) {
		return
	}
	s.pushUndo()
	end := nextWordBoundary(text, s.Caret)
	s.Buf.Delete(s.Caret, end)
	s.edited(s.Caret, s.Caret)
}

func (s *State) HasSelection() bool {
	s.Normalize()
	return s.selectionIsVisible
}

func (s *State) EnsureSelectionAnchor() {
	s.Normalize()
	if s.selectionAnchored {
		return
	}
	s.selectionAnchor = s.Caret
	s.selectionAnchored = true
	s.selectionIsVisible = false
}

func (s *State) UpdateSelectionFromCaret() {
	s.Normalize()
	if !s.selectionAnchored {
		s.selectionAnchor = s.Caret
		s.selectionAnchored = true
	}
	s.selectionIsVisible = s.selectionAnchor != s.Caret
}

func (s *State) ClearSelection() {
	s.selectionAnchored = false
	s.selectionIsVisible = false
}

func (s *State) SelectionRange() (int, int, bool) {
	s.Normalize()
	if !s.selectionIsVisible {
		return 0, 0, false
	}
	a, b := s.selectionAnchor, s.Caret
	if a > b {
		a, b = b, a
	}
	return a, b, true
}

func (s *State) SelectAll() {
	s.Normalize()
	s.selectionAnchor = 0
	s.selectionAnchored = true
	s.Caret = s.Buf.Len()
	s.selectionIsVisible = s.Caret != 0
}

func (s *State) SelectedText() string {
	start, end, ok := s.SelectionRange()
	if !ok {
		return ""
	}
	return string(s.Buf.Bytes()[start:end])
}

func (s *State) DeleteSelection() bool {
	return s.deleteSelectionWithUndo()
}

func (s *State) deleteSelectionWithUndo() bool {
	start, end, ok := s.SelectionRange()
	if !ok {
		return false
	}
	s.pushUndo()
	s.Buf.Delete(start, end)
	s.Caret = start
	s.ClearSelection()
	s.edited(start, start)
	return true
}

// Undo restores the previous text snapshot; the current text moves to the
// redo stack.
func (s *State) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	s.redo = append(s.redo, snapshot{text: s.Buf.Text(), caret: s.Caret})
	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.restore(last)
	return true
}

func (s *State) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	s.undo = append(s.undo, snapshot{text: s.Buf.Text(), caret: s.Caret})
	last := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.restore(last)
	return true
}

func (s *State) restore(snap snapshot) {
	buf, err := markbuf.New(snap.text, s.Buf.Base())
	if err != nil {
		return
	}
	s.Buf = buf
	s.Caret = buf.ClampToRuneBoundary(snap.caret)
	s.ClearSelection()
	s.edited(0, s.Buf.Len())
}

func (s *State) pushUndo() {
	s.undo = append(s.undo, snapshot{text: s.Buf.Text(), caret: s.Caret})
	if len(s.undo) > maxUndoDepth {
		s.undo = s.undo[len(s.undo)-maxUndoDepth:]
	}
	s.redo = nil
}

func (s *State) edited(start, end int) {
	if s.OnEdit != nil {
		s.OnEdit(start, end)
	}
}

func previousRuneBoundary(text []byte, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	_, size := utf8.DecodeLastRune(text[:pos])
	if size <= 0 {
		size = 1
	}
	return pos - size
}

func nextRuneBoundary(text []byte, pos int) int {
	if pos < 0 {
		pos = 0
	}
	if pos >= len(text) {
		return len(text)
	}
	_, size := utf8.DecodeRune(text[pos:])
	if size <= 0 {
		size = 1
	}
	return pos + size
}

func previousWordBoundary(text []byte, pos int) int {
	for pos > 0 {
		r, size := utf8.DecodeLastRune(text[:pos])
		if size <= 0 {
			size = 1
		}
		if !unicode.IsSpace(r) {
			break
		}
		pos -= size
	}
	for pos > 0 {
		r, size := utf8.DecodeLastRune(text[:pos])
		if size <= 0 {
			size = 1
		}
		if unicode.IsSpace(r) {
			break
		}
		pos -= size
	}
	if pos < 0 {
		return 0
	}
	return pos
}

func nextWordBoundary(text []byte, pos int) int {
	for pos < len(text) {
		r, size := utf8.DecodeRune(text[pos:])
		if size <= 0 {
			size = 1
		}
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	for pos < len(text) {
		r, size := utf8.DecodeRune(text[pos:])
		if size <= 0 {
			size = 1
		}
		if unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}
