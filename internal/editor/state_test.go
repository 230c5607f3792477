package editor

import (
	"testing"

	"inknote/pkg/markbuf"
)

func newState(t *testing.T, text string) *State {
	t.Helper()
	buf, err := markbuf.New(text, markbuf.DefaultBase())
	if err != nil {
		t.Fatal(err)
	}
	return NewState(buf)
}

func TestInsertAndDelete(t *testing.T) {
	s := newState(t, "abcd")
	s.SetCaret(2)
	if err := s.InsertText("X"); err != nil {
		t.Fatal(err)
	}
	if got := s.Text(); got != "abXcd" {
		t.Fatalf("unexpected insert result: %q", got)
	}
	s.DeleteForward()
	if got := s.Text(); got != "abXd" {
		t.Fatalf("unexpected delete result: %q", got)
	}
}

func TestBackspaceJoinsLines(t *testing.T) {
	s := newState(t, "a\nb")
	s.SetCaret(2)
	s.Backspace()
	if got := s.Text(); got != "ab" {
		t.Fatalf("unexpected joined text: %q", got)
	}
	if s.Caret != 1 {
		t.Fatalf("caret at %d, want 1", s.Caret)
	}
}

func TestSelectionDeleteAcrossLines(t *testing.T) {
	s := newState(t, "alpha\nbeta")
	s.SetCaret(2)
	s.EnsureSelectionAnchor()
	s.SetCaret(8)
	s.UpdateSelectionFromCaret()

	if !s.DeleteSelection() {
		t.Fatal("expected selection delete")
	}
	if got := s.Text(); got != "alta" {
		t.Fatalf("unexpected merged text: %q", got)
	}
	if s.HasSelection() {
		t.Fatal("selection must clear after delete")
	}
}

func TestInsertReplacesSelection(t *testing.T) {
	s := newState(t, "hello world")
	s.SetCaret(0)
	s.EnsureSelectionAnchor()
	s.SetCaret(5)
	s.UpdateSelectionFromCaret()

	if err := s.InsertText("bye"); err != nil {
		t.Fatal(err)
	}
	if got := s.Text(); got != "bye world" {
		t.Fatalf("unexpected replace result: %q", got)
	}
	if s.Caret != 3 {
		t.Fatalf("caret at %d, want 3", s.Caret)
	}
}

func TestWordMovement(t *testing.T) {
	s := newState(t, "hello brave world")
	s.SetCaret(len("hello brave world"))
	s.MoveCaretWordLeft()
	if s.Caret != len("hello brave ") {
		t.Fatalf("unexpected first word-left caret: %d", s.Caret)
	}
	s.MoveCaretWordLeft()
	if s.Caret != len("hello ") {
		t.Fatalf("unexpected second word-left caret: %d", s.Caret)
	}
	s.MoveCaretWordRight()
	if s.Caret != len("hello brave") {
		t.Fatalf("unexpected word-right caret: %d", s.Caret)
	}
}

func TestLineNavigation(t *testing.T) {
	s := newState(t, "one\ntwo three\nfour")
	s.SetCaret(8)
	s.MoveCaretToLineStart()
	if s.Caret != 4 {
		t.Fatalf("line start caret: %d", s.Caret)
	}
	s.SetCaret(8)
	s.MoveCaretToLineEnd()
	if s.Caret != 13 {
		t.Fatalf("line end caret: %d", s.Caret)
	}
	start, end := s.LineRange()
	if start != 4 || end != 13 {
		t.Fatalf("line range [%d,%d)", start, end)
	}
}

func TestDeleteWordBackward(t *testing.T) {
	s := newState(t, "keep remove")
	s.SetCaret(len("keep remove"))
	s.DeleteWordBackward()
	if got := s.Text(); got != "keep " {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := newState(t, "base")
	s.SetCaret(4)
	if err := s.InsertText("!"); err != nil {
		t.Fatal(err)
	}
	if got := s.Text(); got != "base!" {
		t.Fatalf("unexpected text: %q", got)
	}

	if !s.Undo() {
		t.Fatal("undo refused")
	}
	if got := s.Text(); got != "base" {
		t.Fatalf("undo result: %q", got)
	}
	if !s.Redo() {
		t.Fatal("redo refused")
	}
	if got := s.Text(); got != "base!" {
		t.Fatalf("redo result: %q", got)
	}
	if s.Redo() {
		t.Fatal("redo past the end must refuse")
	}
}

func TestEditCallbackReportsRange(t *testing.T) {
	s := newState(t, "0123456789")
	var gotStart, gotEnd int
	s.OnEdit = func(start, end int) { gotStart, gotEnd = start, end }

	s.SetCaret(5)
	if err := s.InsertText("xy"); err != nil {
		t.Fatal(err)
	}
	if gotStart != 5 || gotEnd != 7 {
		t.Fatalf("edit range [%d,%d), want [5,7)", gotStart, gotEnd)
	}
}

func TestCRLFNormalizedOnInsert(t *testing.T) {
	s := newState(t, "")
	if err := s.InsertText("a\r\nb"); err != nil {
		t.Fatal(err)
	}
	if got := s.Text(); got != "a\nb" {
		t.Fatalf("CRLF survived insert: %q", got)
	}
}
