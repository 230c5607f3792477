package sketch

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Older builds appended the drawing to the note text itself as a trailing
// HTML comment holding a JSON array of path strings ("x,y x,y ..."). The
// sidecar file is canonical now; the inline tag is read once, stripped, and
// never written back.
var legacyTagRe = regexp.MustCompile(`(?s)\n?<!--sketch:(\[.*?\])-->\s*$`)

const (
	legacyColor = uint32(0x202020FF)
	legacyWidth = float32(3)
)

// ExtractInline detects a legacy inline drawing tag at the end of text. It
// returns the text with the tag stripped and the parsed strokes. Unparseable
// path entries are skipped; a malformed tag strips nothing.
func ExtractInline(text string) (string, []Stroke, bool) {
	loc := legacyTagRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil, false
	}
	var paths []string
	if err := json.Unmarshal([]byte(text[loc[2]:loc[3]]), &paths); err != nil {
		return text, nil, false
	}

	strokes := make([]Stroke, 0, len(paths))
	for _, p := range paths {
		if s, ok := parseLegacyPath(p); ok {
			strokes = append(strokes, s)
		}
	}
	return text[:loc[0]], strokes, true
}

func parseLegacyPath(path string) (Stroke, bool) {
	fields := strings.Fields(path)
	if len(fields) == 0 {
		return Stroke{}, false
	}
	s := Stroke{Tool: ToolPen, ColorRGBA: legacyColor, Width: legacyWidth}
	for i, f := range fields {
		xy := strings.SplitN(f, ",", 2)
		if len(xy) != 2 {
			return Stroke{}, false
		}
		x, errX := strconv.ParseFloat(xy[0], 32)
		y, errY := strconv.ParseFloat(xy[1], 32)
		if errX != nil || errY != nil {
			return Stroke{}, false
		}
		s.Points = append(s.Points, Point{
			X:       float32(x),
			Y:       float32(y),
			T:       0.01 * float32(i),
			Size:    legacyWidth,
			Opacity: 1,
		})
	}
	return s, true
}
