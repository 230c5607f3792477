package assets

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"inknote/pkg/markbuf"
)

type saveCall struct {
	data  []byte
	reply chan saveReply
}

type saveReply struct {
	ref string
	err error
}

// blockingStore hands every SaveImage call to the test, which decides when
// and how it completes.
type blockingStore struct {
	calls chan *saveCall
}

func newBlockingStore() *blockingStore {
	return &blockingStore{calls: make(chan *saveCall, 8)}
}

func (s *blockingStore) SaveImage(data []byte) (string, error) {
	c := &saveCall{data: data, reply: make(chan saveReply)}
	s.calls <- c
	r := <-c.reply
	return r.ref, r.err
}

func (s *blockingStore) next(t *testing.T) *saveCall {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("store never received the image")
		return nil
	}
}

func newTestPipeline(store Store) (*Pipeline, chan func()) {
	queue := make(chan func(), 8)
	p := NewPipeline(store, func(f func()) { queue <- f }, nil)
	return p, queue
}

func drain(t *testing.T, queue chan func()) {
	t.Helper()
	select {
	case f := <-queue:
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion was dispatched")
	}
}

func newBuf(t *testing.T, text string) *markbuf.Buffer {
	t.Helper()
	b, err := markbuf.New(text, markbuf.DefaultBase())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPasteInsertsPlaceholderAndResolves(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	buf := newBuf(t, "0123456789 tail")

	token, err := p.PasteImage(buf, 10, []byte{1, 2, 3}, OriginPaste)
	if err != nil {
		t.Fatal(err)
	}
	placeholder := fmt.Sprintf("![Uploading Image...](%s)\n", token)
	want := "0123456789" + placeholder + " tail"
	if got := buf.Text(); got != want {
		t.Fatalf("placeholder not inserted at cursor:\n got %q\nwant %q", got, want)
	}

	call := store.next(t)
	if !bytes.Equal(call.data, []byte{1, 2, 3}) {
		t.Fatalf("store got wrong bytes: %v", call.data)
	}
	call.reply <- saveReply{ref: "abc.png"}
	drain(t, queue)

	want = "0123456789![Image](abc.png)\n tail"
	if got := buf.Text(); got != want {
		t.Fatalf("final reference not substituted:\n got %q\nwant %q", got, want)
	}
}

func TestConcurrentPastesResolveIndependently(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	buf := newBuf(t, "")

	tok1, err := p.PasteImage(buf, 0, []byte("first"), OriginPaste)
	if err != nil {
		t.Fatal(err)
	}
	tok2, err := p.PasteImage(buf, buf.Len(), []byte("second"), OriginPaste)
	if err != nil {
		t.Fatal(err)
	}
	if tok1 == tok2 {
		t.Fatalf("tokens must be process-unique, both were %q", tok1)
	}

	a := store.next(t)
	b := store.next(t)
	if bytes.Equal(a.data, []byte("second")) {
		a, b = b, a
	}

	// complete out of order: the second paste finishes first
	b.reply <- saveReply{ref: "two.png"}
	drain(t, queue)
	a.reply <- saveReply{ref: "one.png"}
	drain(t, queue)

	text := buf.Text()
	i1 := strings.Index(text, "![Image](one.png)")
	i2 := strings.Index(text, "![Image](two.png)")
	if i1 < 0 || i2 < 0 {
		t.Fatalf("both references must resolve: %q", text)
	}
	if i1 > i2 {
		t.Fatalf("references swapped positions: %q", text)
	}
}

func TestSaveFailureLeavesPlaceholder(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	buf := newBuf(t, "")

	token, err := p.PasteImage(buf, 0, []byte("x"), OriginDrop)
	if err != nil {
		t.Fatal(err)
	}
	store.next(t).reply <- saveReply{err: errors.New("disk full")}
	drain(t, queue)

	placeholder := fmt.Sprintf("![Uploading Image...](%s)\n", token)
	if got := buf.Text(); got != placeholder {
		t.Fatalf("failed save must leave the placeholder: %q", got)
	}
}

func TestCompletionAfterPlaceholderEditedAwayIsDropped(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	buf := newBuf(t, "")

	if _, err := p.PasteImage(buf, 0, []byte("x"), OriginPaste); err != nil {
		t.Fatal(err)
	}
	// the user deletes everything while the upload is in flight
	buf.Delete(0, buf.Len())
	if err := buf.Insert(0, "rewritten"); err != nil {
		t.Fatal(err)
	}

	store.next(t).reply <- saveReply{ref: "late.png"}
	drain(t, queue)

	if got := buf.Text(); got != "rewritten" {
		t.Fatalf("stale completion must be a no-op: %q", got)
	}
}

func TestScanInlineConvertsFirstBase64Match(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	// "aGVsbG8=" is "hello"; the second embedded image must wait for the
	// next edit cycle.
	buf := newBuf(t, "a ![p](data:image/png;base64,aGVsbG8=) b ![q](data:image/png;base64,d29ybGQ=) c")

	if !p.ScanInline(buf) {
		t.Fatal("inline image not detected")
	}
	if !strings.Contains(buf.Text(), "![Uploading Image...](img_") {
		t.Fatalf("first match not replaced by placeholder: %q", buf.Text())
	}
	if !strings.Contains(buf.Text(), "base64,d29ybGQ=") {
		t.Fatalf("second match must survive this cycle: %q", buf.Text())
	}

	call := store.next(t)
	if string(call.data) != "hello" {
		t.Fatalf("decoded payload wrong: %q", call.data)
	}
	call.reply <- saveReply{ref: "p.png"}
	drain(t, queue)

	if !strings.Contains(buf.Text(), "![Image](p.png)") {
		t.Fatalf("inline image did not resolve: %q", buf.Text())
	}
}

func TestScanInlineIgnoresUndecodablePayload(t *testing.T) {
	store := newBlockingStore()
	p, _ := newTestPipeline(store)
	// 7 characters with no padding is not a valid standard-encoding payload
	src := "![p](data:image/png;base64,aGVsbG8)"
	buf := newBuf(t, src)

	if p.ScanInline(buf) {
		t.Fatal("undecodable payload must not start an upload")
	}
	if got := buf.Text(); got != src {
		t.Fatalf("buffer must stay untouched: %q", got)
	}
}

func TestSubstitutionReportsAffectedRange(t *testing.T) {
	store := newBlockingStore()
	p, queue := newTestPipeline(store)
	buf := newBuf(t, "head ")

	var gotStart, gotEnd int
	p.OnSubstituted = func(b *markbuf.Buffer, start, end int) {
		gotStart, gotEnd = start, end
	}

	if _, err := p.PasteImage(buf, 5, nil, OriginPaste); err != nil {
		t.Fatal(err)
	}
	store.next(t).reply <- saveReply{ref: "r.png"}
	drain(t, queue)

	final := "![Image](r.png)"
	if gotStart != 5 || gotEnd != 5+len(final) {
		t.Fatalf("re-decoration range [%d,%d), want [5,%d)", gotStart, gotEnd, 5+len(final))
	}
}
