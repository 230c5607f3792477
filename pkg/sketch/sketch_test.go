package sketch

import (
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

func sampleModel() *Model {
	m := NewModel()
	m.Append(Stroke{
		Tool:      ToolPen,
		ColorRGBA: 0x0057B8FF,
		Width:     3,
		Points: []Point{
			{X: 10, Y: 10, T: 0, Size: 3, Opacity: 1},
			{X: 20, Y: 15, T: 0.01, Size: 3, Opacity: 1},
			{X: 30, Y: 25, T: 0.02, Size: 3, Opacity: 1},
		},
	})
	m.Append(Stroke{Tool: ToolMarker, ColorRGBA: 0xA31515FF, Width: 8, Points: []Point{{X: 5, Y: 40, Size: 8, Opacity: 1}}})
	return m
}

func TestRoundTripSaveLoad(t *testing.T) {
	m := sampleModel()
	path := filepath.Join(t.TempDir(), "note.ink")
	if err := Save(path, m); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Strokes) != 2 {
		t.Fatalf("expected 2 strokes, got %d", len(loaded.Strokes))
	}
	if loaded.Strokes[0].ColorRGBA != 0x0057B8FF || len(loaded.Strokes[0].Points) != 3 {
		t.Fatalf("stroke mismatch: %#v", loaded.Strokes[0])
	}
	if loaded.Strokes[0].Points[1].X != 20 {
		t.Fatalf("point mismatch: %#v", loaded.Strokes[0].Points[1])
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ink")
	if err := os.WriteFile(path, []byte("not a sketch file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestLoadDetectsCorruptPayload(t *testing.T) {
	m := sampleModel()
	path := filepath.Join(t.TempDir(), "corrupt.ink")
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)-1] ^= 0xFF
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoadRejectsOversizedDeclaredCounts(t *testing.T) {
	// checksum-valid container whose stroke count asks for far more strokes
	// than the payload could hold
	payload := appendU32(nil, 0xFFFFFFFF)
	blob := make([]byte, 0, headerSize+len(payload))
	blob = append(blob, MagicString...)
	blob = appendU16(blob, VersionV1)
	blob = appendU16(blob, 0)
	blob = appendU32(blob, uint32(len(payload)))
	blob = appendU32(blob, crc32.ChecksumIEEE(payload))
	blob = append(blob, payload...)

	if _, err := decodeModel(blob); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for oversized stroke count, got %v", err)
	}

	// same for the per-stroke point count
	payload = appendU32(nil, 1)
	payload = append(payload, byte(ToolPen))
	payload = appendU32(payload, 0x0057B8FF)
	payload = appendF32(payload, 3)
	payload = appendU32(payload, 0xFFFFFFFF)
	blob = make([]byte, 0, headerSize+len(payload))
	blob = append(blob, MagicString...)
	blob = appendU16(blob, VersionV1)
	blob = appendU16(blob, 0)
	blob = appendU32(blob, uint32(len(payload)))
	blob = appendU32(blob, crc32.ChecksumIEEE(payload))
	blob = append(blob, payload...)

	if _, err := decodeModel(blob); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for oversized point count, got %v", err)
	}
}

func TestEncryptedSaveRequiresPasswordOnLoad(t *testing.T) {
	m := sampleModel()
	path := filepath.Join(t.TempDir(), "sealed.ink")
	err := SaveWithOptions(path, m, SaveOptions{
		Compression: true,
		Encryption:  EncryptionOptions{Enabled: true, Password: "hunter2"},
	})
	if err != nil {
		t.Fatalf("save sealed failed: %v", err)
	}

	if _, err := LoadWithOptions(path, LoadOptions{}); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := LoadWithOptions(path, LoadOptions{Password: "wrong"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	loaded, err := LoadWithOptions(path, LoadOptions{Password: "hunter2"})
	if err != nil {
		t.Fatalf("expected successful decrypt load, got %v", err)
	}
	if len(loaded.Strokes) != 2 {
		t.Fatalf("expected 2 strokes after decrypt, got %d", len(loaded.Strokes))
	}
}

func TestBoundsPadsByWidestStroke(t *testing.T) {
	m := sampleModel()
	minX, minY, maxX, maxY, ok := m.Bounds()
	if !ok {
		t.Fatalf("expected bounds for non-empty model")
	}
	if minX != 5-8 || minY != 10-8 || maxX != 30+8 || maxY != 40+8 {
		t.Fatalf("unexpected bounds: %v %v %v %v", minX, minY, maxX, maxY)
	}

	if _, _, _, _, ok := NewModel().Bounds(); ok {
		t.Fatalf("expected no bounds for empty model")
	}
}

func TestExtractInlineStripsLegacyTag(t *testing.T) {
	text := "# Note\n\nbody\n<!--sketch:[\"1,2 3,4 5,6\",\"10,10\"]-->\n"
	clean, strokes, ok := ExtractInline(text)
	if !ok {
		t.Fatalf("expected legacy tag detection")
	}
	if clean != "# Note\n\nbody" {
		t.Fatalf("unexpected stripped text: %q", clean)
	}
	if len(strokes) != 2 {
		t.Fatalf("expected 2 strokes, got %d", len(strokes))
	}
	if strokes[0].Points[2].X != 5 || strokes[0].Points[2].Y != 6 {
		t.Fatalf("unexpected parsed point: %#v", strokes[0].Points[2])
	}
}

func TestExtractInlineIgnoresMalformedTag(t *testing.T) {
	text := "body\n<!--sketch:[not json-->"
	clean, strokes, ok := ExtractInline(text)
	if ok || strokes != nil {
		t.Fatalf("expected malformed tag to be ignored")
	}
	if clean != text {
		t.Fatalf("text must be untouched when tag is malformed: %q", clean)
	}
}
