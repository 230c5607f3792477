package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"inknote/internal/decor"
	"inknote/pkg/markbuf"
)

func TestWriteProducesPDF(t *testing.T) {
	buf, err := markbuf.New("# Heading\n\nSome **bold** text with `code`.\n- item one\n- item two\n", markbuf.DefaultBase())
	if err != nil {
		t.Fatal(err)
	}
	decor.NewEngine(nil).DecorateAll(buf)

	path := filepath.Join(t.TempDir(), "note.pdf")
	p := &PDF{Title: "Heading"}
	if err := p.Write(buf, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", data[:16])
	}
}

func TestHiddenMarkersAreOmitted(t *testing.T) {
	buf, err := markbuf.New("**bold** word\n", markbuf.DefaultBase())
	if err != nil {
		t.Fatal(err)
	}
	decor.NewEngine(nil).DecorateAll(buf)

	path := filepath.Join(t.TempDir(), "note.pdf")
	if err := (&PDF{}).Write(buf, path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("empty pdf written")
	}
}

func TestStyleString(t *testing.T) {
	a := markbuf.Attr{Bold: true, Italic: true, Underline: true}
	if got := styleString(a); got != "BIU" {
		t.Fatalf("style string %q", got)
	}
	if got := styleString(markbuf.Attr{}); got != "" {
		t.Fatalf("plain style string %q", got)
	}
}
