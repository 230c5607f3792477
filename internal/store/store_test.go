package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inknote/pkg/sketch"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	if err := s.Save("groceries", "# Groceries\n- milk\n"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("groceries")
	if err != nil {
		t.Fatal(err)
	}
	if got != "# Groceries\n- milk\n" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestLoadMissingNote(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTitleValidation(t *testing.T) {
	s := newStore(t)
	for _, bad := range []string{"", "a/b", `a\b`, "../escape"} {
		if err := s.Save(bad, "x"); !errors.Is(err, ErrBadTitle) {
			t.Fatalf("title %q: want ErrBadTitle, got %v", bad, err)
		}
	}
}

func TestListPinnedFirst(t *testing.T) {
	s := newStore(t)
	for _, title := range []string{"alpha", "beta", "gamma"} {
		if err := s.Save(title, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Pin("gamma", true); err != nil {
		t.Fatal(err)
	}
	notes, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 3 {
		t.Fatalf("listed %d notes", len(notes))
	}
	if notes[0].Title != "gamma" || !notes[0].Pinned {
		t.Fatalf("pinned note not first: %+v", notes[0])
	}
}

func TestPinSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save("keep", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Pin("keep", true); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	notes, err := s2.List()
	if err != nil {
		t.Fatal(err)
	}
	if !notes[0].Pinned {
		t.Fatal("pin lost across reopen")
	}
}

func TestRenameMovesSidecarAndPin(t *testing.T) {
	s := newStore(t)
	if err := s.Save("old", "text"); err != nil {
		t.Fatal(err)
	}
	m := &sketch.Model{}
	m.Append(sketch.Stroke{Tool: sketch.ToolPen, Width: 2, Points: []sketch.Point{{X: 1, Y: 2}}})
	if err := s.SaveSketch("old", m); err != nil {
		t.Fatal(err)
	}
	if err := s.Pin("old", true); err != nil {
		t.Fatal(err)
	}

	if err := s.Rename("old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("old"); !errors.Is(err, ErrNotFound) {
		t.Fatal("old note still loadable")
	}
	if !s.HasSketch("new") || s.HasSketch("old") {
		t.Fatal("sidecar did not follow the rename")
	}
	notes, _ := s.List()
	if notes[0].Title != "new" || !notes[0].Pinned {
		t.Fatalf("pin did not follow the rename: %+v", notes[0])
	}
}

func TestDeleteMovesToTrashAndHousekeepPurges(t *testing.T) {
	s := newStore(t)
	if err := s.Save("doomed", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("doomed"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("doomed"); !errors.Is(err, ErrNotFound) {
		t.Fatal("deleted note still loadable")
	}
	trashed := filepath.Join(s.Root(), "trash", "doomed.md")
	if _, err := os.Stat(trashed); err != nil {
		t.Fatalf("note not in trash: %v", err)
	}

	// age the trashed file past the retention window
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(trashed, old, old); err != nil {
		t.Fatal(err)
	}
	purged, err := s.Housekeep(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged %d files, want 1", purged)
	}
	if _, err := os.Stat(trashed); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("trashed file survived housekeeping")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	s := newStore(t)
	if err := s.Save("att", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Archive("att"); err != nil {
		t.Fatal(err)
	}
	archived, err := s.ListArchived()
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].Title != "att" {
		t.Fatalf("archive listing: %+v", archived)
	}
	if err := s.Unarchive("att"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("att"); err != nil {
		t.Fatalf("unarchived note not loadable: %v", err)
	}
}

func TestSaveImageAndResolve(t *testing.T) {
	s := newStore(t)
	ref, err := s.SaveImage([]byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(ref, `/\`) {
		t.Fatalf("reference must be a bare filename: %q", ref)
	}
	path, ok := s.Resolve(ref)
	if !ok {
		t.Fatalf("saved asset did not resolve: %q", ref)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Resolve("missing.png"); ok {
		t.Fatal("missing asset resolved")
	}
	if _, ok := s.Resolve("../" + ref); ok {
		t.Fatal("traversal reference resolved")
	}
}

func TestSaveImageTokensUnique(t *testing.T) {
	s := newStore(t)
	a, err := s.SaveImage([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.SaveImage([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("image tokens collided: %q", a)
	}
}

func TestLoadStripsLegacyInlineSketch(t *testing.T) {
	s := newStore(t)
	raw := "# Note\nbody\n<!--sketch:[\"1,2 3,4\"]-->\n"
	path := filepath.Join(s.Root(), "legacy.md")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := s.Load("legacy")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, "sketch:") {
		t.Fatalf("legacy tag not stripped: %q", text)
	}
	if !s.HasSketch("legacy") {
		t.Fatal("legacy strokes not migrated to sidecar")
	}
	m, err := s.LoadSketch("legacy")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Strokes) != 1 || len(m.Strokes[0].Points) != 2 {
		t.Fatalf("migrated strokes wrong: %+v", m.Strokes)
	}
}

func TestSketchSidecarRoundTrip(t *testing.T) {
	s := newStore(t)
	if s.HasSketch("n") {
		t.Fatal("phantom sidecar")
	}
	m := &sketch.Model{}
	m.Append(sketch.Stroke{Tool: sketch.ToolPen, ColorRGBA: 0xFF0000FF, Width: 3,
		Points: []sketch.Point{{X: 1, Y: 1, Size: 3, Opacity: 1}}})
	if err := s.SaveSketch("n", m); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadSketch("n")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Strokes) != 1 || got.Strokes[0].ColorRGBA != 0xFF0000FF {
		t.Fatalf("sidecar round trip: %+v", got.Strokes)
	}
}

func TestSketchCodecOptions(t *testing.T) {
	s := newStore(t)
	s.ConfigureSketch(true, true, "hunter2")
	m := &sketch.Model{}
	m.Append(sketch.Stroke{Tool: sketch.ToolMarker, ColorRGBA: 0x00FF00FF, Width: 4,
		Points: []sketch.Point{{X: 5, Y: 6, Size: 4, Opacity: 0.5}}})
	if err := s.SaveSketch("sealed", m); err != nil {
		t.Fatal(err)
	}
	// the raw sidecar must not be the plain container
	raw, err := os.ReadFile(filepath.Join(s.Root(), "sealed.ink"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(string(raw), sketch.MagicString) {
		t.Fatal("sidecar written unsealed despite codec options")
	}
	got, err := s.LoadSketch("sealed")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Strokes) != 1 || got.Strokes[0].ColorRGBA != 0x00FF00FF {
		t.Fatalf("sealed round trip: %+v", got.Strokes)
	}
}

func TestSuppressScope(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.Root(), "self.md")
	release := s.Suppress(path)
	if !s.isSuppressed(path) {
		t.Fatal("path not suppressed inside scope")
	}
	release()
	// release expires asynchronously so queued events are still absorbed
	deadline := time.Now().Add(2 * time.Second)
	for s.isSuppressed(path) {
		if time.Now().After(deadline) {
			t.Fatal("suppression never expired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
