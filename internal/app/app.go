// Package app is the desktop shell: an ebiten event loop that owns the
// editor state, the decoration engine, the asset pipeline, the note store
// and the ink overlay. All buffer mutation happens on the update thread;
// background completions are marshaled in through the dispatch queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"inknote/internal/assets"
	"inknote/internal/config"
	"inknote/internal/decor"
	"inknote/internal/editor"
	"inknote/internal/export"
	"inknote/internal/ink"
	"inknote/internal/preview"
	"inknote/internal/render"
	"inknote/internal/store"
	"inknote/internal/ui"
	"inknote/pkg/markbuf"
	"inknote/pkg/sketch"

	"github.com/atotto/clipboard"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/sqweek/dialog"
	imgclip "golang.design/x/clipboard"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

type rect struct {
	x int
	y int
	w int
	h int
}

func (r rect) contains(x, y int) bool {
	return x >= r.x && y >= r.y && x < r.x+r.w && y < r.y+r.h
}

type actionButton struct {
	id     string
	label  string
	r      rect
	active bool
}

type noteButton struct {
	title  string
	pinned bool
	r      rect
}

type lineSegment struct {
	start int
	end   int
	text  string
	attr  markbuf.Attr
	face  font.Face
	width int

	img  *ebiten.Image
	imgW int
	imgH int
}

type lineLayout struct {
	startByte int
	text      []byte
	segments  []lineSegment
	docX      int
	docY      int
	viewX     int
	y         int
	baseline  int
	height    int
	ascent    int
	width     int
}

type fontKey struct {
	size   int
	bold   bool
	italic bool
	mono   bool
	scale  int
}

type fontBank struct {
	regular        *opentype.Font
	bold           *opentype.Font
	italic         *opentype.Font
	boldItalic     *opentype.Font
	mono           *opentype.Font
	monoBold       *opentype.Font
	monoItalic     *opentype.Font
	monoBoldItalic *opentype.Font
	cache          map[fontKey]font.Face
}

func newFontBank() fontBank {
	bank := fontBank{cache: map[fontKey]font.Face{}}
	parse := func(ttf []byte) *opentype.Font {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil
		}
		return f
	}
	bank.regular = parse(goregular.TTF)
	bank.bold = parse(gobold.TTF)
	bank.italic = parse(goitalic.TTF)
	bank.boldItalic = parse(gobolditalic.TTF)
	bank.mono = parse(gomono.TTF)
	bank.monoBold = parse(gomonobold.TTF)
	bank.monoItalic = parse(gomonoitalic.TTF)
	bank.monoBoldItalic = parse(gomonobolditalic.TTF)
	return bank
}

type drawTool int

const (
	toolPen drawTool = iota
	toolMarker
	toolEraser
	toolLine
	toolArrow
	toolRect
	toolEllipse
	toolTriangle
	toolStar
)

func (t drawTool) shape() (ink.ShapeKind, bool) {
	switch t {
	case toolLine:
		return ink.ShapeLine, true
	case toolArrow:
		return ink.ShapeArrow, true
	case toolRect:
		return ink.ShapeRect, true
	case toolEllipse:
		return ink.ShapeCircle, true
	case toolTriangle:
		return ink.ShapeTriangle, true
	case toolStar:
		return ink.ShapeStar, true
	}
	return 0, false
}

func (t drawTool) label() string {
	switch t {
	case toolPen:
		return "Pen"
	case toolMarker:
		return "Marker"
	case toolEraser:
		return "Eraser"
	case toolLine:
		return "Line"
	case toolArrow:
		return "Arrow"
	case toolRect:
		return "Rect"
	case toolEllipse:
		return "Ellipse"
	case toolTriangle:
		return "Triangle"
	case toolStar:
		return "Star"
	}
	return "?"
}

type App struct {
	cfg *config.Config
	log *slog.Logger

	theme ui.Theme
	state *editor.State

	store     *store.Store
	engine    *decor.Engine
	pipeline  *assets.Pipeline
	previewer *preview.Renderer

	// dispatchQueue marshals asset completions and watcher notifications
	// onto the update thread.
	dispatchQueue chan func()

	frameBuffer *render.FrameBuffer
	canvas      *ebiten.Image
	docLayer    *ebiten.Image
	inkLayer    *ebiten.Image
	inkPixels   *render.FrameBuffer

	fonts fontBank

	uiScales   []float32
	uiScaleIdx int

	noteTitle string
	dirty     bool
	status    string
	frameTick uint64

	notes       []store.Note
	noteButtons []noteButton
	sidebarMsg  string

	showHelp  bool
	helpRect  rect
	helpClose rect

	previewOpen  bool
	previewHTML  string
	previewStale bool
	previewRect  rect

	topActions     []actionButton
	toolbarActions []actionButton
	colorPalette   []uint32
	colorIdx       int
	contentRect    rect
	lineLayouts    []lineLayout

	imageCache map[string]*ebiten.Image

	drawMode     bool
	tool         drawTool
	strokeWidth  float32
	sketchModel  *sketch.Model
	sketchDirty  bool
	dragging     bool
	dragStart    ink.Pt
	dragCurrent  ink.Pt
	activeStroke *sketch.Stroke
	strokeBegan  time.Time

	clipboardImages bool

	scrollX float64
	scrollY float64
	maxX    float64
	maxY    float64

	dragSelecting bool

	screenW int
	screenH int
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	st, err := store.Open(cfg.Notes.Path, log)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	st.ConfigureSketch(cfg.Sketch.Compress, cfg.Sketch.Encrypt, cfg.Sketch.Password)

	base := markbuf.DefaultBase()
	base.FontSizePt = cfg.Editor.BaseFontPt
	buf, err := markbuf.New("", base)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		log:            log,
		theme:          ui.DefaultTheme(),
		state:          editor.NewState(buf),
		store:          st,
		previewer:      preview.NewRenderer(),
		dispatchQueue:  make(chan func(), 64),
		fonts:          newFontBank(),
		uiScales:       []float32{1.0, 1.25, 1.5, 2.0},
		status:         "Ready",
		topActions:     make([]actionButton, 0, 16),
		toolbarActions: make([]actionButton, 0, 16),
		lineLayouts:    make([]lineLayout, 0, 128),
		imageCache:     map[string]*ebiten.Image{},
		colorPalette:   []uint32{0x202020FF, 0x0057B8FF, 0xA31515FF, 0x117A37FF, 0x7A2DB8FF, 0xE67E22FF},
		strokeWidth:    3,
		sketchModel:    sketch.NewModel(),
		previewStale:   true,
	}
	for i, s := range a.uiScales {
		if float64(s) == cfg.Editor.UIScale {
			a.uiScaleIdx = i
		}
	}

	a.engine = decor.NewEngine(st)
	a.engine.Raw = cfg.Editor.RawMode
	a.pipeline = assets.NewPipeline(st, func(fn func()) { a.dispatchQueue <- fn }, log)
	a.pipeline.OnSubstituted = func(buf *markbuf.Buffer, start, end int) {
		a.engine.Decorate(buf, start, end)
		a.state.Normalize()
		a.dirty = true
		a.previewStale = true
		a.status = "Image saved"
	}
	a.state.OnEdit = func(start, end int) { a.onEdit(start, end) }

	if err := imgclip.Init(); err != nil {
		log.Warn("app: image clipboard unavailable", slog.String("error", err.Error()))
	} else {
		a.clipboardImages = true
	}

	a.refreshNotes()
	if len(a.notes) > 0 {
		a.openNote(a.notes[0].Title)
	} else {
		a.newNote()
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		err := a.store.Watch(ctx, func(kind store.EventKind, title string) {
			a.dispatchQueue <- func() { a.onExternalChange(kind, title) }
		})
		if err != nil {
			a.log.Error("app: watcher failed", slog.String("error", err.Error()))
		}
	}()

	ebiten.SetWindowTitle("Inknote")
	ebiten.SetWindowSize(1280, 800)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(900, 560, -1, -1)
	ebiten.MaximizeWindow()
	if err := ebiten.RunGame(a); err != nil {
		return fmt.Errorf("run game loop: %w", err)
	}
	return nil
}

// onEdit re-derives decoration for every text mutation and feeds the inline
// image scan.
func (a *App) onEdit(start, end int) {
	a.engine.Decorate(a.state.Buf, start, end)
	if a.pipeline.ScanInline(a.state.Buf) {
		a.state.Normalize()
		a.engine.DecorateAll(a.state.Buf)
	}
	a.dirty = true
	a.previewStale = true
}

func (a *App) onExternalChange(kind store.EventKind, title string) {
	switch kind {
	case store.EventAsset:
		// cache keys are full paths; rebuilding is cheaper than matching
		a.imageCache = map[string]*ebiten.Image{}
	case store.EventUpdated:
		a.refreshNotes()
		if title == a.noteTitle {
			if a.dirty {
				a.status = "Note changed on disk (unsaved local edits kept)"
				return
			}
			a.openNote(title)
			a.status = "Reloaded from disk"
		}
	case store.EventRemoved:
		a.refreshNotes()
		if title == a.noteTitle {
			a.status = "Note removed on disk"
			a.dirty = true
		}
	}
}

// ink.Surface implementation: shape insertion reads the active tool style
// from the app.

func (a *App) Tool() sketch.Tool {
	if a.tool == toolMarker {
		return sketch.ToolMarker
	}
	return sketch.ToolPen
}

func (a *App) Color() uint32 { return a.colorPalette[a.colorIdx] }

func (a *App) Width() float32 { return a.strokeWidth }

func (a *App) StrokeChanged() {
	a.sketchDirty = true
	a.dirty = true
}

func (a *App) Update() error {
	a.frameTick++
	a.drainDispatch()
	a.collectDroppedFiles()

	ctrl := ebiten.IsKeyPressed(ebiten.KeyControl) || ebiten.IsKeyPressed(ebiten.KeyMeta)
	shift := ebiten.IsKeyPressed(ebiten.KeyShift)

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		switch {
		case a.showHelp:
			a.showHelp = false
		case a.drawMode:
			a.exitDrawMode()
		case a.previewOpen:
			a.previewOpen = false
		default:
			return ebiten.Termination
		}
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF1) {
		a.showHelp = !a.showHelp
	}
	if a.showHelp {
		if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
			x, y := ebiten.CursorPosition()
			if !a.helpRect.contains(x, y) || a.helpClose.contains(x, y) {
				a.showHelp = false
			}
		}
		return nil
	}

	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.togglePreview()
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyD) {
		a.toggleDrawMode()
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.toggleRawMode()
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.invokeAction("new")
		return nil
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyS) {
		a.invokeAction("save")
		return nil
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyE) {
		a.invokeAction("export_pdf")
		return nil
	}
	if ctrl && (inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd)) {
		a.bumpUIScale(1)
	}
	if ctrl && (inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract)) {
		a.bumpUIScale(-1)
	}

	wheelX, wheelY := ebiten.Wheel()
	if shift && wheelY != 0 {
		a.scrollX -= wheelY * 48
	} else if wheelY != 0 {
		a.scrollY -= wheelY * 42
	}
	if wheelX != 0 {
		a.scrollX -= wheelX * 48
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageDown) {
		a.scrollY += float64(a.contentRect.h) * 0.8
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageUp) {
		a.scrollY -= float64(a.contentRect.h) * 0.8
	}
	a.clampScroll()

	if a.drawMode {
		return a.updateDrawMode(ctrl)
	}
	return a.updateTextMode(ctrl, shift)
}

func (a *App) drainDispatch() {
	for {
		select {
		case fn := <-a.dispatchQueue:
			fn()
		default:
			return
		}
	}
}

// collectDroppedFiles routes image files dropped onto the window into the
// asset pipeline.
func (a *App) collectDroppedFiles() {
	files := ebiten.DroppedFiles()
	if files == nil {
		return
	}
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".jpg") &&
			!strings.HasSuffix(name, ".jpeg") && !strings.HasSuffix(name, ".gif") {
			continue
		}
		data, err := fs.ReadFile(files, entry.Name())
		if err != nil {
			a.status = "Drop failed: " + err.Error()
			continue
		}
		a.ingestImage(data, assets.OriginDrop)
	}
}

func (a *App) ingestImage(data []byte, origin assets.Origin) {
	pos := a.state.Caret
	token, err := a.pipeline.PasteImage(a.state.Buf, pos, data, origin)
	if err != nil {
		a.status = "Image paste failed: " + err.Error()
		return
	}
	inserted := len(fmt.Sprintf("![Uploading Image...](%s)", token)) + 1
	a.state.SetCaret(pos + inserted)
	a.engine.Decorate(a.state.Buf, pos, pos+inserted)
	a.dirty = true
	a.previewStale = true
	a.status = "Uploading image..."
}

func (a *App) updateTextMode(ctrl, shift bool) error {
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		if id, ok := a.actionAt(x, y); ok {
			a.invokeAction(id)
			return nil
		}
		if title, ok := a.noteAt(x, y); ok {
			if ctrl {
				a.togglePin(title)
			} else {
				a.switchToNote(title)
			}
			return nil
		}
		if a.contentRect.contains(x, y) {
			pos := a.hitTestPosition(x, y)
			if shift {
				a.state.EnsureSelectionAnchor()
			} else {
				a.state.ClearSelection()
				a.state.EnsureSelectionAnchor()
			}
			a.state.SetCaret(pos)
			a.state.UpdateSelectionFromCaret()
			a.dragSelecting = true
		} else {
			a.state.ClearSelection()
		}
	}
	if a.dragSelecting && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		a.state.SetCaret(a.hitTestPosition(x, y))
		a.state.UpdateSelectionFromCaret()
		a.ensureCaretVisible()
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		a.dragSelecting = false
	}

	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyZ) {
		if a.state.Undo() {
			a.status = "Undo"
		}
		return nil
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyY) {
		if a.state.Redo() {
			a.status = "Redo"
		}
		return nil
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyA) {
		a.state.SelectAll()
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyC) {
		if a.state.HasSelection() {
			if err := clipboard.WriteAll(a.state.SelectedText()); err != nil {
				a.status = "Copy failed: " + err.Error()
			}
		}
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyX) {
		if a.state.HasSelection() {
			selected := a.state.SelectedText()
			if err := clipboard.WriteAll(selected); err != nil {
				a.status = "Cut failed: " + err.Error()
			} else {
				a.state.DeleteSelection()
			}
		}
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyV) {
		a.pasteFromClipboard()
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyB) {
		a.wrapSelection("**")
	}
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyI) {
		a.wrapSelection("*")
	}

	moveWithSelection := func(move func()) {
		if shift {
			a.state.EnsureSelectionAnchor()
		} else {
			a.state.ClearSelection()
		}
		move()
		if shift {
			a.state.UpdateSelectionFromCaret()
		}
		a.ensureCaretVisible()
	}

	if a.keyTriggered(ebiten.KeyLeft) {
		moveWithSelection(func() {
			if ctrl {
				a.state.MoveCaretWordLeft()
			} else {
				a.state.MoveCaretLeft()
			}
		})
	}
	if a.keyTriggered(ebiten.KeyRight) {
		moveWithSelection(func() {
			if ctrl {
				a.state.MoveCaretWordRight()
			} else {
				a.state.MoveCaretRight()
			}
		})
	}
	if a.keyTriggered(ebiten.KeyUp) {
		moveWithSelection(func() { a.moveCaretVertical(-1) })
	}
	if a.keyTriggered(ebiten.KeyDown) {
		moveWithSelection(func() { a.moveCaretVertical(1) })
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyHome) {
		moveWithSelection(func() { a.state.MoveCaretToLineStart() })
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnd) {
		moveWithSelection(func() { a.state.MoveCaretToLineEnd() })
	}

	if a.keyTriggered(ebiten.KeyBackspace) {
		if ctrl {
			a.state.DeleteWordBackward()
		} else {
			a.state.Backspace()
		}
		a.ensureCaretVisible()
	}
	if a.keyTriggered(ebiten.KeyDelete) {
		if ctrl {
			a.state.DeleteWordForward()
		} else {
			a.state.DeleteForward()
		}
	}
	if a.keyTriggered(ebiten.KeyEnter) || a.keyTriggered(ebiten.KeyNumpadEnter) {
		if err := a.state.InsertText("\n"); err != nil {
			a.status = "Edit failed: " + err.Error()
		}
		a.ensureCaretVisible()
	}
	if a.keyTriggered(ebiten.KeyTab) {
		if err := a.state.InsertText("    "); err != nil {
			a.status = "Edit failed: " + err.Error()
		}
	}

	if !ctrl {
		var typed []rune
		typed = ebiten.AppendInputChars(typed[:0])
		if len(typed) > 0 {
			if err := a.state.InsertText(string(typed)); err != nil {
				a.status = "Edit failed: " + err.Error()
			}
			a.ensureCaretVisible()
		}
	}
	return nil
}

func (a *App) updateDrawMode(ctrl bool) error {
	if ctrl && inpututil.IsKeyJustPressed(ebiten.KeyZ) {
		if _, ok := a.sketchModel.RemoveLast(); ok {
			a.sketchDirty = true
			a.dirty = true
			a.status = "Stroke removed"
		}
		return nil
	}

	switch {
	case ctrl:
		// tool hotkeys are plain keys; chords are handled above
	case inpututil.IsKeyJustPressed(ebiten.KeyP):
		a.tool = toolPen
	case inpututil.IsKeyJustPressed(ebiten.KeyM):
		a.tool = toolMarker
	case inpututil.IsKeyJustPressed(ebiten.KeyE):
		a.tool = toolEraser
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit1):
		a.tool = toolLine
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit2):
		a.tool = toolArrow
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit3):
		a.tool = toolRect
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit4):
		a.tool = toolEllipse
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit5):
		a.tool = toolTriangle
	case inpututil.IsKeyJustPressed(ebiten.KeyDigit6):
		a.tool = toolStar
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		a.colorIdx = (a.colorIdx + 1) % len(a.colorPalette)
	case inpututil.IsKeyJustPressed(ebiten.KeyBracketLeft):
		if a.strokeWidth > 1 {
			a.strokeWidth--
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyBracketRight):
		if a.strokeWidth < 24 {
			a.strokeWidth++
		}
	}

	mx, my := ebiten.CursorPosition()
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		if id, ok := a.actionAt(mx, my); ok {
			a.invokeAction(id)
			return nil
		}
		if a.contentRect.contains(mx, my) {
			a.dragging = true
			a.dragStart = a.docPoint(mx, my)
			a.dragCurrent = a.dragStart
			a.strokeBegan = time.Now()
			if !a.isShapeTool() && a.tool != toolEraser {
				a.activeStroke = &sketch.Stroke{
					Tool:      a.Tool(),
					ColorRGBA: a.Color(),
					Width:     a.strokeWidth,
				}
				a.appendFreehandPoint(a.dragStart)
			}
		}
	}

	if a.dragging && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		p := a.docPoint(mx, my)
		a.dragCurrent = p
		switch {
		case a.tool == toolEraser:
			a.eraseAt(p)
		case a.activeStroke != nil:
			last := a.activeStroke.Points[len(a.activeStroke.Points)-1]
			if math.Hypot(float64(p.X-last.X), float64(p.Y-last.Y)) >= 1.5 {
				a.appendFreehandPoint(p)
			}
		}
	}

	if a.dragging && inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		a.dragging = false
		if kind, ok := a.tool.shape(); ok {
			ink.Insert(a.sketchModel, a, kind, a.dragStart, a.dragCurrent)
			a.status = a.tool.label() + " added"
		} else if a.activeStroke != nil {
			a.sketchModel.Append(*a.activeStroke)
			a.activeStroke = nil
			a.sketchDirty = true
			a.dirty = true
		}
	}
	return nil
}

func (a *App) isShapeTool() bool {
	_, ok := a.tool.shape()
	return ok
}

func (a *App) appendFreehandPoint(p ink.Pt) {
	opacity := float32(1)
	if a.tool == toolMarker {
		opacity = 0.5
	}
	a.activeStroke.Points = append(a.activeStroke.Points, sketch.Point{
		X:       p.X,
		Y:       p.Y,
		T:       float32(time.Since(a.strokeBegan).Seconds()),
		Size:    a.strokeWidth,
		Opacity: opacity,
	})
}

// eraseAt removes any stroke passing within the eraser radius.
func (a *App) eraseAt(p ink.Pt) {
	radius := float64(a.strokeWidth) * 2
	kept := a.sketchModel.Strokes[:0]
	removed := false
	for _, s := range a.sketchModel.Strokes {
		hit := false
		for _, pt := range s.Points {
			if math.Hypot(float64(pt.X-p.X), float64(pt.Y-p.Y)) <= radius {
				hit = true
				break
			}
		}
		if hit {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	a.sketchModel.Strokes = kept
	if removed {
		a.sketchDirty = true
		a.dirty = true
	}
}

// docPoint maps a screen position into document space so ink stays anchored
// to the text while scrolling.
func (a *App) docPoint(x, y int) ink.Pt {
	return ink.Pt{
		X: float32(x-a.contentRect.x) + float32(a.scrollX),
		Y: float32(y-a.contentRect.y) + float32(a.scrollY),
	}
}

// keyTriggered reports a fresh press or a key-repeat tick.
func (a *App) keyTriggered(key ebiten.Key) bool {
	d := inpututil.KeyPressDuration(key)
	return d == 1 || (d >= 24 && d%3 == 0)
}

func (a *App) pasteFromClipboard() {
	if a.clipboardImages {
		if data := imgclip.Read(imgclip.FmtImage); len(data) > 0 {
			a.ingestImage(data, assets.OriginPaste)
			return
		}
	}
	paste, err := clipboard.ReadAll()
	if err != nil {
		a.status = "Paste failed: " + err.Error()
		return
	}
	if paste == "" {
		return
	}
	if err := a.state.InsertText(paste); err != nil {
		a.status = "Paste failed: " + err.Error()
	}
	a.ensureCaretVisible()
}

// wrapSelection surrounds the selection with a markdown marker pair, or
// inserts an empty pair at the caret.
func (a *App) wrapSelection(marker string) {
	if start, end, ok := a.state.SelectionRange(); ok {
		selected := string(a.state.Buf.Bytes()[start:end])
		a.state.ClearSelection()
		a.state.SetCaret(start)
		a.state.EnsureSelectionAnchor()
		a.state.SetCaret(end)
		a.state.UpdateSelectionFromCaret()
		if err := a.state.InsertText(marker + selected + marker); err != nil {
			a.status = "Edit failed: " + err.Error()
		}
		return
	}
	if err := a.state.InsertText(marker + marker); err != nil {
		a.status = "Edit failed: " + err.Error()
		return
	}
	for range len(marker) {
		a.state.MoveCaretLeft()
	}
}

func (a *App) insertLinePrefix(prefix string) {
	start, _ := a.state.LineRange()
	caret := a.state.Caret
	a.state.ClearSelection()
	a.state.SetCaret(start)
	if err := a.state.InsertText(prefix); err != nil {
		a.status = "Edit failed: " + err.Error()
		return
	}
	a.state.SetCaret(caret + len(prefix))
}

func (a *App) actionAt(x, y int) (string, bool) {
	for _, btn := range a.topActions {
		if btn.r.contains(x, y) {
			return btn.id, true
		}
	}
	for _, btn := range a.toolbarActions {
		if btn.r.contains(x, y) {
			return btn.id, true
		}
	}
	return "", false
}

func (a *App) noteAt(x, y int) (string, bool) {
	for _, btn := range a.noteButtons {
		if btn.r.contains(x, y) {
			return btn.title, true
		}
	}
	return "", false
}

func (a *App) invokeAction(id string) {
	switch id {
	case "new":
		a.saveCurrent()
		a.newNote()
	case "save":
		a.saveCurrent()
	case "draw":
		a.toggleDrawMode()
	case "preview":
		a.togglePreview()
	case "raw":
		a.toggleRawMode()
	case "export_pdf":
		a.exportPDF()
	case "export_png":
		a.exportSketchPNG()
	case "archive":
		a.archiveCurrent()
	case "help":
		a.showHelp = !a.showHelp
	case "md_bold":
		a.wrapSelection("**")
	case "md_italic":
		a.wrapSelection("*")
	case "md_strike":
		a.wrapSelection("~~")
	case "md_code":
		a.wrapSelection("`")
	case "md_h1":
		a.insertLinePrefix("# ")
	case "md_h2":
		a.insertLinePrefix("## ")
	case "md_list":
		a.insertLinePrefix("- ")
	case "md_check":
		a.insertLinePrefix("- [ ] ")
	case "md_image":
		a.insertImageFromDialog()
	case "tool_pen":
		a.tool = toolPen
	case "tool_marker":
		a.tool = toolMarker
	case "tool_eraser":
		a.tool = toolEraser
	case "tool_line":
		a.tool = toolLine
	case "tool_arrow":
		a.tool = toolArrow
	case "tool_rect":
		a.tool = toolRect
	case "tool_ellipse":
		a.tool = toolEllipse
	case "tool_triangle":
		a.tool = toolTriangle
	case "tool_star":
		a.tool = toolStar
	case "tool_color":
		a.colorIdx = (a.colorIdx + 1) % len(a.colorPalette)
	case "width_down":
		if a.strokeWidth > 1 {
			a.strokeWidth--
		}
	case "width_up":
		if a.strokeWidth < 24 {
			a.strokeWidth++
		}
	}
}

func (a *App) toggleDrawMode() {
	if a.drawMode {
		a.exitDrawMode()
		return
	}
	a.drawMode = true
	a.tool = toolPen
	a.status = "Draw mode"
}

func (a *App) exitDrawMode() {
	a.drawMode = false
	a.dragging = false
	a.activeStroke = nil
	a.status = "Text mode"
}

func (a *App) togglePreview() {
	a.previewOpen = !a.previewOpen
	if a.previewOpen {
		a.previewStale = true
	}
}

func (a *App) toggleRawMode() {
	a.engine.Raw = !a.engine.Raw
	a.engine.DecorateAll(a.state.Buf)
	a.state.Normalize()
	if a.engine.Raw {
		a.status = "Raw markdown"
	} else {
		a.status = "Decorated"
	}
}

func (a *App) refreshNotes() {
	notes, err := a.store.List()
	if err != nil {
		a.log.Error("app: list notes", slog.String("error", err.Error()))
		a.sidebarMsg = "List failed"
		return
	}
	a.notes = notes
	a.sidebarMsg = ""
}

func (a *App) uniqueTitle() string {
	taken := map[string]bool{}
	for _, n := range a.notes {
		taken[n.Title] = true
	}
	if !taken["Untitled"] {
		return "Untitled"
	}
	for i := 2; ; i++ {
		title := fmt.Sprintf("Untitled %d", i)
		if !taken[title] {
			return title
		}
	}
}

func (a *App) newNote() {
	title := a.uniqueTitle()
	if err := a.store.Save(title, ""); err != nil {
		a.status = "New note failed: " + err.Error()
		return
	}
	a.refreshNotes()
	a.openNote(title)
	a.status = "Created " + title
}

func (a *App) switchToNote(title string) {
	if title == a.noteTitle {
		return
	}
	a.saveCurrent()
	a.openNote(title)
}

func (a *App) openNote(title string) {
	text, err := a.store.Load(title)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.status = "Note not found: " + title
		} else {
			a.status = "Open failed: " + err.Error()
		}
		return
	}
	a.noteTitle = title
	if err := a.state.SetText(text); err != nil {
		a.status = "Open failed: " + err.Error()
		return
	}
	a.state.SetCaret(0)
	a.engine.DecorateAll(a.state.Buf)
	a.scrollX, a.scrollY = 0, 0

	a.sketchModel = sketch.NewModel()
	if a.store.HasSketch(title) {
		m, err := a.store.LoadSketch(title)
		if err != nil {
			a.log.Warn("app: load sketch", slog.String("note", title), slog.String("error", err.Error()))
		} else {
			a.sketchModel = m
		}
	}
	a.sketchDirty = false
	a.dirty = false
	a.previewStale = true
	a.status = "Opened " + title
}

func (a *App) saveCurrent() {
	if a.noteTitle == "" {
		return
	}
	if a.dirty {
		if err := a.store.Save(a.noteTitle, a.state.Text()); err != nil {
			a.status = "Save failed: " + err.Error()
			return
		}
	}
	if a.sketchDirty && !a.sketchModel.Empty() {
		if err := a.store.SaveSketch(a.noteTitle, a.sketchModel); err != nil {
			a.status = "Sketch save failed: " + err.Error()
			return
		}
	}
	if a.dirty || a.sketchDirty {
		a.status = "Saved " + a.noteTitle
	}
	a.dirty = false
	a.sketchDirty = false
	a.refreshNotes()
}

func (a *App) archiveCurrent() {
	if a.noteTitle == "" {
		return
	}
	a.saveCurrent()
	title := a.noteTitle
	if err := a.store.Archive(title); err != nil {
		a.status = "Archive failed: " + err.Error()
		return
	}
	a.refreshNotes()
	if len(a.notes) > 0 {
		a.openNote(a.notes[0].Title)
	} else {
		a.newNote()
	}
	a.status = "Archived " + title
}

func (a *App) togglePin(title string) {
	pinned := false
	for _, n := range a.notes {
		if n.Title == title {
			pinned = n.Pinned
		}
	}
	if err := a.store.Pin(title, !pinned); err != nil {
		a.status = "Pin failed: " + err.Error()
		return
	}
	a.refreshNotes()
}

func (a *App) insertImageFromDialog() {
	path, err := dialog.File().Filter("Images", "png", "jpg", "jpeg", "gif").Title("Insert Image").Load()
	if err != nil {
		if !errors.Is(err, dialog.ErrCancelled) {
			a.status = "Insert image failed: " + err.Error()
		}
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		a.status = "Insert image failed: " + err.Error()
		return
	}
	a.ingestImage(data, assets.OriginPaste)
}

func (a *App) exportPDF() {
	a.saveCurrent()
	path, err := dialog.File().Filter("PDF files", "pdf").Title("Export PDF").Save()
	if err != nil {
		if !errors.Is(err, dialog.ErrCancelled) {
			a.status = "Export failed: " + err.Error()
		}
		return
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		path += ".pdf"
	}
	pdf := export.PDF{Title: a.noteTitle}
	if err := pdf.Write(a.state.Buf, path); err != nil {
		a.status = "Export failed: " + err.Error()
		return
	}
	a.log.Info("app: exported pdf", slog.String("note", a.noteTitle), slog.String("path", path))
	a.status = "Exported " + path
}

func (a *App) exportSketchPNG() {
	if a.sketchModel.Empty() {
		a.status = "No ink to export"
		return
	}
	path, err := dialog.File().Filter("PNG images", "png").Title("Export Ink").Save()
	if err != nil {
		if !errors.Is(err, dialog.ErrCancelled) {
			a.status = "Export failed: " + err.Error()
		}
		return
	}
	if !strings.HasSuffix(strings.ToLower(path), ".png") {
		path += ".png"
	}
	fb := render.RenderSketch(a.sketchModel)
	if err := fb.WritePNG(path); err != nil {
		a.status = "Export failed: " + err.Error()
		return
	}
	a.status = "Exported " + path
}

func (a *App) bumpUIScale(delta int) {
	next := a.uiScaleIdx + delta
	if next < 0 || next >= len(a.uiScales) {
		return
	}
	a.uiScaleIdx = next
	a.fonts.cache = map[fontKey]font.Face{}
	a.status = fmt.Sprintf("UI scale %.0f%%", a.uiScales[a.uiScaleIdx]*100)
}

func (a *App) Draw(screen *ebiten.Image) {
	w, h := screen.Bounds().Dx(), screen.Bounds().Dy()
	if a.frameBuffer == nil || a.frameBuffer.W != w || a.frameBuffer.H != h {
		a.frameBuffer = render.NewFrameBuffer(w, h)
		a.canvas = ebiten.NewImage(w, h)
	}

	layout := ui.DrawShell(a.frameBuffer, a.state, a.theme, a.uiScales[a.uiScaleIdx], a.previewOpen)
	menuFace := a.uiFace(11, false, false, false)
	statusFace := a.uiFace(10, false, false, false)
	sideFace := a.uiFace(10, false, false, false)

	a.layoutTopActions(menuFace, layout)
	a.layoutToolbar(menuFace, layout)
	a.layoutSidebar(sideFace, layout)
	a.layoutContentRect(layout)
	a.layoutPreviewRect(layout)

	a.layoutDocumentLines()
	a.drawSelectionAndCaret()
	a.drawScrollbars()

	a.canvas.WritePixels(a.frameBuffer.Pixels)
	screen.DrawImage(a.canvas, nil)

	a.drawTopActionLabels(screen, menuFace)
	a.drawToolbarLabels(screen, menuFace)
	a.drawSidebarLabels(screen, sideFace)
	a.drawDocumentText(screen)
	a.drawInkOverlay(screen)
	a.drawPreviewPane(screen)

	a.drawStatusBar(screen, statusFace, h)
	if a.showHelp {
		a.drawHelpOverlay(screen, menuFace, w, h)
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	w, h := outsideWidth, outsideHeight
	if w < 900 {
		w = 900
	}
	if h < 560 {
		h = 560
	}
	a.screenW, a.screenH = w, h
	return w, h
}

func (a *App) layoutTopActions(face font.Face, layout ui.Layout) {
	a.topActions = a.topActions[:0]
	entries := []actionButton{
		{id: "new", label: "New"},
		{id: "save", label: "Save"},
		{id: "draw", label: "Draw", active: a.drawMode},
		{id: "preview", label: "Preview", active: a.previewOpen},
		{id: "raw", label: "Raw", active: a.engine.Raw},
		{id: "export_pdf", label: "Export PDF"},
		{id: "export_png", label: "Export Ink"},
		{id: "archive", label: "Archive"},
		{id: "help", label: "Help"},
	}
	x := 12
	y := 5
	h := layout.MenuH - 10
	if h < 20 {
		h = 20
	}
	mx, my := ebiten.CursorPosition()
	for _, btn := range entries {
		w := a.measureString(face, btn.label) + 20
		if w < 52 {
			w = 52
		}
		r := rect{x: x, y: y, w: w, h: h}
		bg := color.RGBA{R: 43, G: 87, B: 154, A: 255}
		if btn.active {
			bg = color.RGBA{R: 24, G: 58, B: 112, A: 255}
		}
		if r.contains(mx, my) {
			bg = color.RGBA{R: 58, G: 102, B: 172, A: 255}
		}
		a.frameBuffer.FillRect(r.x, r.y, r.w, r.h, bg)
		a.frameBuffer.StrokeRect(r.x, r.y, r.w, r.h, 1, color.RGBA{R: 27, G: 54, B: 97, A: 255})
		btn.r = r
		a.topActions = append(a.topActions, btn)
		x += w + 8
	}
}

func (a *App) layoutToolbar(face font.Face, layout ui.Layout) {
	a.toolbarActions = a.toolbarActions[:0]
	x := 14
	y := layout.MenuH + 8
	h := layout.ToolbarH - 16
	if h < 24 {
		h = 24
	}
	mx, my := ebiten.CursorPosition()

	addBtn := func(id, label string, active bool) {
		w := a.measureString(face, label) + 20
		if w < 44 {
			w = 44
		}
		r := rect{x: x, y: y, w: w, h: h}
		bg := color.RGBA{R: 241, G: 245, B: 251, A: 255}
		if active {
			bg = color.RGBA{R: 215, G: 229, B: 248, A: 255}
		}
		if r.contains(mx, my) {
			bg = color.RGBA{R: 223, G: 236, B: 252, A: 255}
		}
		a.frameBuffer.FillRect(r.x, r.y, r.w, r.h, bg)
		a.frameBuffer.StrokeRect(r.x, r.y, r.w, r.h, 1, color.RGBA{R: 181, G: 194, B: 214, A: 255})
		a.toolbarActions = append(a.toolbarActions, actionButton{id: id, label: label, r: r, active: active})
		x += w + 6
	}

	if a.drawMode {
		tools := []struct {
			id string
			t  drawTool
		}{
			{"tool_pen", toolPen}, {"tool_marker", toolMarker}, {"tool_eraser", toolEraser},
			{"tool_line", toolLine}, {"tool_arrow", toolArrow}, {"tool_rect", toolRect},
			{"tool_ellipse", toolEllipse}, {"tool_triangle", toolTriangle}, {"tool_star", toolStar},
		}
		for _, entry := range tools {
			addBtn(entry.id, entry.t.label(), a.tool == entry.t)
		}
		addBtn("width_down", "-", false)
		addBtn("width_up", "+", false)
		addBtn("tool_color", "Color", false)
		last := a.toolbarActions[len(a.toolbarActions)-1].r
		a.frameBuffer.FillRect(last.x+last.w-14, last.y+6, 8, last.h-12, rgbaFromUint32(a.Color()))
		a.frameBuffer.StrokeRect(last.x+last.w-14, last.y+6, 8, last.h-12, 1, color.RGBA{R: 88, G: 102, B: 122, A: 255})
		return
	}

	addBtn("md_bold", "Bold", false)
	addBtn("md_italic", "Italic", false)
	addBtn("md_strike", "Strike", false)
	addBtn("md_code", "Code", false)
	addBtn("md_h1", "H1", false)
	addBtn("md_h2", "H2", false)
	addBtn("md_list", "List", false)
	addBtn("md_check", "Check", false)
	addBtn("md_image", "Image", false)
}

func (a *App) layoutSidebar(face font.Face, layout ui.Layout) {
	a.noteButtons = a.noteButtons[:0]
	y := layout.CanvasY + 10
	rowH := int(26 * a.uiScales[a.uiScaleIdx])
	if rowH < 22 {
		rowH = 22
	}
	mx, my := ebiten.CursorPosition()
	for _, n := range a.notes {
		if y+rowH > layout.StatusBar {
			break
		}
		r := rect{x: 4, y: y, w: layout.SidebarW - 8, h: rowH}
		if n.Title == a.noteTitle {
			a.frameBuffer.FillRect(r.x, r.y, r.w, r.h, color.RGBA{R: 215, G: 229, B: 248, A: 255})
		} else if r.contains(mx, my) {
			a.frameBuffer.FillRect(r.x, r.y, r.w, r.h, color.RGBA{R: 227, G: 234, B: 243, A: 255})
		}
		a.noteButtons = append(a.noteButtons, noteButton{title: n.Title, pinned: n.Pinned, r: r})
		y += rowH + 2
	}
	_ = face
}

func (a *App) drawSidebarLabels(screen *ebiten.Image, face font.Face) {
	labelColor := color.RGBA{R: 44, G: 58, B: 82, A: 255}
	for _, btn := range a.noteButtons {
		label := btn.title
		if btn.pinned {
			label = "* " + label
		}
		maxW := btn.r.w - 12
		for a.measureString(face, label) > maxW && len(label) > 4 {
			label = label[:len(label)-4] + "..."
		}
		ascent := face.Metrics().Ascent.Round()
		descent := face.Metrics().Descent.Round()
		baseline := btn.r.y + (btn.r.h+ascent+descent)/2 - descent
		text.Draw(screen, label, face, btn.r.x+8, baseline, labelColor)
	}
	if a.sidebarMsg != "" && len(a.noteButtons) == 0 {
		text.Draw(screen, a.sidebarMsg, face, 12, a.contentRect.y+16, labelColor)
	}
}

func (a *App) layoutContentRect(layout ui.Layout) {
	a.contentRect = rect{
		x: layout.ContentX,
		y: layout.ContentY,
		w: layout.ContentW,
		h: layout.ContentH,
	}
}

func (a *App) layoutPreviewRect(layout ui.Layout) {
	a.previewRect = rect{}
	if layout.PreviewW > 0 {
		pad := 12
		a.previewRect = rect{
			x: layout.PreviewX + pad,
			y: layout.CanvasY + pad,
			w: layout.PreviewW - pad*2,
			h: layout.CanvasH - pad*2,
		}
	}
}

func (a *App) drawTopActionLabels(screen *ebiten.Image, face font.Face) {
	textColor := color.RGBA{R: 244, G: 248, B: 255, A: 255}
	for _, btn := range a.topActions {
		tw := a.measureString(face, btn.label)
		ascent := face.Metrics().Ascent.Round()
		descent := face.Metrics().Descent.Round()
		x := btn.r.x + (btn.r.w-tw)/2
		baseline := btn.r.y + (btn.r.h+ascent+descent)/2 - descent
		text.Draw(screen, btn.label, face, x, baseline, textColor)
	}
}

func (a *App) drawToolbarLabels(screen *ebiten.Image, face font.Face) {
	for _, btn := range a.toolbarActions {
		labelColor := color.RGBA{R: 44, G: 58, B: 82, A: 255}
		if btn.active {
			labelColor = color.RGBA{R: 19, G: 62, B: 122, A: 255}
		}
		tw := a.measureString(face, btn.label)
		ascent := face.Metrics().Ascent.Round()
		descent := face.Metrics().Descent.Round()
		x := btn.r.x + (btn.r.w-tw)/2
		baseline := btn.r.y + (btn.r.h+ascent+descent)/2 - descent
		text.Draw(screen, btn.label, face, x, baseline, labelColor)
	}
}

// measureString returns the pixel advance of s in the given face.
func (a *App) measureString(face font.Face, s string) int {
	if face == nil || s == "" {
		return 0
	}
	adv := font.MeasureString(face, s)
	px := (int(adv) + 32) >> 6
	if px < 0 {
		px = 0
	}
	return px
}

func (a *App) uiFace(size int, bold, italic, mono bool) font.Face {
	scaleKey := int(math.Round(float64(a.uiScales[a.uiScaleIdx] * 1000)))
	key := fontKey{size: size, bold: bold, italic: italic, mono: mono, scale: scaleKey}
	if f, ok := a.fonts.cache[key]; ok {
		return f
	}
	var base *opentype.Font
	switch {
	case mono && bold && italic:
		base = a.fonts.monoBoldItalic
	case mono && bold:
		base = a.fonts.monoBold
	case mono && italic:
		base = a.fonts.monoItalic
	case mono:
		base = a.fonts.mono
	case bold && italic:
		base = a.fonts.boldItalic
	case bold:
		base = a.fonts.bold
	case italic:
		base = a.fonts.italic
	default:
		base = a.fonts.regular
	}
	if base == nil {
		return basicfont.Face7x13
	}
	opts := &opentype.FaceOptions{Size: float64(size) * float64(a.uiScales[a.uiScaleIdx]), DPI: 72, Hinting: font.HintingFull}
	face, err := opentype.NewFace(base, opts)
	if err != nil {
		return basicfont.Face7x13
	}
	a.fonts.cache[key] = face
	return face
}

func (a *App) attrFace(attr markbuf.Attr) font.Face {
	size := int(attr.FontSizePt)
	if size < 1 {
		size = 1
	}
	return a.uiFace(size, attr.Bold, attr.Italic, attr.FontFamily == markbuf.FontMono)
}

// imageFor caches an embedded attachment by its resolved path. The path was
// produced by the decoration engine's resolver, so it is already absolute.
func (a *App) imageFor(path string) *ebiten.Image {
	if img, ok := a.imageCache[path]; ok {
		return img
	}
	img, _, err := ebitenutil.NewImageFromFile(path)
	if err != nil {
		a.log.Warn("app: load attachment", slog.String("path", path), slog.String("error", err.Error()))
		// negative-cache so a broken asset is not re-read every frame;
		// asset watcher events flush the cache
		a.imageCache[path] = nil
		return nil
	}
	a.imageCache[path] = img
	return img
}

func (a *App) layoutDocumentLines() {
	a.lineLayouts = a.lineLayouts[:0]
	if a.contentRect.w <= 0 || a.contentRect.h <= 0 {
		return
	}
	buf := a.state.Buf
	textBytes := buf.Bytes()
	scale := a.uiScales[a.uiScaleIdx]

	docY := 4
	lineGap := int(4 * scale)
	if lineGap < 2 {
		lineGap = 2
	}
	maxWidth := 0
	maxImgW := a.contentRect.w - 40
	if maxImgW < 60 {
		maxImgW = 60
	}

	lineStart := 0
	for {
		lineEnd := lineStart
		for lineEnd < len(textBytes) && textBytes[lineEnd] != '\n' {
			lineEnd++
		}
		hasNL := lineEnd < len(textBytes)

		lineBytes := textBytes[lineStart:lineEnd]
		segments := make([]lineSegment, 0, 4)
		lineWidth := 0
		maxAscent := 0
		maxDescent := 0

		for _, span := range buf.SpansIn(lineStart, lineEnd) {
			segStart := int(span.Start) - lineStart
			segEnd := int(span.End) - lineStart
			attr := span.Attr
			segText := string(lineBytes[segStart:segEnd])

			if attr.Image != "" && segText == decor.AttachmentChar {
				img := a.imageFor(attr.Image)
				seg := lineSegment{start: segStart, end: segEnd, text: segText, attr: attr}
				if img != nil {
					iw := img.Bounds().Dx()
					ih := img.Bounds().Dy()
					dispW, dispH := iw, ih
					if dispW > maxImgW {
						dispH = ih * maxImgW / iw
						dispW = maxImgW
					}
					if dispH > 320 {
						dispW = dispW * 320 / dispH
						dispH = 320
					}
					seg.img = img
					seg.imgW = dispW
					seg.imgH = dispH
					seg.width = dispW
					if dispH > maxAscent {
						maxAscent = dispH
					}
				} else {
					face := a.attrFace(attr)
					seg.face = face
					seg.width = a.measureString(face, segText)
				}
				segments = append(segments, seg)
				lineWidth += seg.width
				continue
			}

			face := a.attrFace(attr)
			segW := a.measureString(face, segText)
			m := face.Metrics()
			if asc := m.Ascent.Round(); asc > maxAscent {
				maxAscent = asc
			}
			if des := m.Descent.Round(); des > maxDescent {
				maxDescent = des
			}
			segments = append(segments, lineSegment{
				start: segStart,
				end:   segEnd,
				text:  segText,
				attr:  attr,
				face:  face,
				width: segW,
			})
			lineWidth += segW
		}

		if len(segments) == 0 {
			face := a.attrFace(buf.Base())
			m := face.Metrics()
			maxAscent = m.Ascent.Round()
			maxDescent = m.Descent.Round()
			segments = append(segments, lineSegment{attr: buf.Base(), face: face})
		}

		indent := int(segments[0].attr.Indent) * int(24*scale)
		height := maxAscent + maxDescent + int(6*scale)
		if height < 18 {
			height = 18
		}
		a.lineLayouts = append(a.lineLayouts, lineLayout{
			startByte: lineStart,
			text:      lineBytes,
			segments:  segments,
			docX:      8 + indent,
			docY:      docY,
			height:    height,
			ascent:    maxAscent,
			width:     lineWidth,
		})
		if 8+indent+lineWidth > maxWidth {
			maxWidth = 8 + indent + lineWidth
		}
		docY += height + lineGap

		if !hasNL {
			break
		}
		lineStart = lineEnd + 1
	}

	contentW := max(1, a.contentRect.w-12)
	totalHeight := docY + 6
	a.maxY = math.Max(0, float64(totalHeight-a.contentRect.h))
	a.maxX = math.Max(0, float64(maxWidth-contentW))
	a.clampScroll()

	for i := range a.lineLayouts {
		a.lineLayouts[i].y = a.contentRect.y + a.lineLayouts[i].docY - int(a.scrollY)
		a.lineLayouts[i].viewX = a.contentRect.x + a.lineLayouts[i].docX - int(a.scrollX)
		a.lineLayouts[i].baseline = a.lineLayouts[i].y + a.lineLayouts[i].ascent + 1
	}
}

func (a *App) drawDocumentText(screen *ebiten.Image) {
	if a.contentRect.w <= 0 || a.contentRect.h <= 0 {
		return
	}
	if a.docLayer == nil || a.docLayer.Bounds().Dx() != a.contentRect.w || a.docLayer.Bounds().Dy() != a.contentRect.h {
		a.docLayer = ebiten.NewImage(max(1, a.contentRect.w), max(1, a.contentRect.h))
	}
	a.docLayer.Clear()

	for _, ll := range a.lineLayouts {
		relY := ll.y - a.contentRect.y
		if relY+ll.height < 0 || relY > a.contentRect.h {
			continue
		}
		x := ll.viewX - a.contentRect.x
		baseline := ll.baseline - a.contentRect.y
		for _, seg := range ll.segments {
			segX := x
			if seg.img != nil {
				op := &ebiten.DrawImageOptions{}
				sx := float64(seg.imgW) / float64(seg.img.Bounds().Dx())
				sy := float64(seg.imgH) / float64(seg.img.Bounds().Dy())
				op.GeoM.Scale(sx, sy)
				op.GeoM.Translate(float64(segX), float64(baseline-seg.imgH))
				a.docLayer.DrawImage(seg.img, op)
				x += seg.width
				continue
			}
			if seg.attr.BgRGBA != 0 && seg.width > 0 {
				top := baseline - seg.face.Metrics().Ascent.Round()
				bh := seg.face.Metrics().Ascent.Round() + seg.face.Metrics().Descent.Round()
				if bh < 10 {
					bh = 10
				}
				fillRectOnImage(a.docLayer, segX, top, seg.width, bh, rgbaFromUint32(seg.attr.BgRGBA))
			}
			if seg.text != "" {
				clr := rgbaFromUint32(seg.attr.ColorRGBA)
				text.Draw(a.docLayer, seg.text, seg.face, segX, baseline, clr)
				if seg.attr.Underline {
					underlineY := float64(baseline + max(1, seg.face.Metrics().Descent.Round()/2))
					ebitenutil.DrawLine(a.docLayer, float64(segX), underlineY, float64(segX+seg.width), underlineY, clr)
				}
				if seg.attr.Strike {
					strikeY := float64(baseline - seg.face.Metrics().Ascent.Round()/3)
					ebitenutil.DrawLine(a.docLayer, float64(segX), strikeY, float64(segX+seg.width), strikeY, clr)
				}
			}
			x += seg.width
		}
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(a.contentRect.x), float64(a.contentRect.y))
	screen.DrawImage(a.docLayer, op)
}

func (a *App) drawSelectionAndCaret() {
	selColor := color.RGBA{R: 191, G: 214, B: 255, A: 255}
	if start, end, ok := a.state.SelectionRange(); ok {
		for _, ll := range a.lineLayouts {
			lineStart := ll.startByte
			lineEnd := ll.startByte + len(ll.text)
			selStart := max(start, lineStart)
			selEnd := min(end, lineEnd)
			if selEnd <= selStart {
				continue
			}
			x0 := ll.viewX + a.lineAdvance(ll, selStart-lineStart)
			x1 := ll.viewX + a.lineAdvance(ll, selEnd-lineStart)
			a.fillRectWithinContent(x0, ll.y+1, x1-x0, ll.height-2, selColor)
		}
	}

	if a.drawMode || a.state.HasSelection() || (a.frameTick/30)%2 == 0 {
		return
	}
	caret := a.state.Caret
	for _, ll := range a.lineLayouts {
		lineStart := ll.startByte
		lineEnd := lineStart + len(ll.text)
		if caret < lineStart || caret > lineEnd {
			continue
		}
		x := ll.viewX + a.lineAdvance(ll, caret-lineStart)
		a.fillRectWithinContent(x, ll.y+2, 1, max(2, ll.height-4), color.RGBA{R: 21, G: 84, B: 164, A: 255})
		break
	}
}

// lineAdvance measures the pixel offset of a byte position within a laid-out
// line.
func (a *App) lineAdvance(ll lineLayout, rel int) int {
	x := 0
	for _, seg := range ll.segments {
		if rel <= seg.start {
			return x
		}
		if rel >= seg.end {
			x += seg.width
			continue
		}
		if seg.img != nil {
			return x
		}
		prefix := ll.text[seg.start:rel]
		return x + a.measureString(seg.face, string(prefix))
	}
	return x
}

// hitTestPosition maps a screen point to a byte offset in the buffer.
func (a *App) hitTestPosition(x, y int) int {
	if len(a.lineLayouts) == 0 {
		return 0
	}
	if y < a.lineLayouts[0].y {
		return 0
	}
	for _, ll := range a.lineLayouts {
		if y < ll.y || y >= ll.y+ll.height {
			continue
		}
		rel := x - ll.viewX
		if rel <= 0 {
			return ll.startByte
		}
		acc := 0
		for _, seg := range ll.segments {
			if seg.img != nil {
				if rel < acc+seg.width/2 {
					return ll.startByte + seg.start
				}
				acc += seg.width
				continue
			}
			segText := ll.text[seg.start:seg.end]
			pos := 0
			for pos < len(segText) {
				_, size := utf8.DecodeRune(segText[pos:])
				if size <= 0 {
					size = 1
				}
				wBefore := a.measureString(seg.face, string(segText[:pos]))
				wAfter := a.measureString(seg.face, string(segText[:pos+size]))
				if rel < acc+(wBefore+wAfter)/2 {
					return ll.startByte + seg.start + pos
				}
				pos += size
			}
			acc += seg.width
		}
		return ll.startByte + len(ll.text)
	}
	last := a.lineLayouts[len(a.lineLayouts)-1]
	return last.startByte + len(last.text)
}

// moveCaretVertical moves the caret one visual line up or down, keeping the
// horizontal pixel position.
func (a *App) moveCaretVertical(dir int) {
	caret := a.state.Caret
	idx := -1
	for i, ll := range a.lineLayouts {
		if caret >= ll.startByte && caret <= ll.startByte+len(ll.text) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	target := idx + dir
	if target < 0 || target >= len(a.lineLayouts) {
		return
	}
	x := a.lineLayouts[idx].viewX + a.lineAdvance(a.lineLayouts[idx], caret-a.lineLayouts[idx].startByte)
	ll := a.lineLayouts[target]
	a.state.SetCaret(a.hitTestPosition(x, ll.y+ll.height/2))
}

func (a *App) ensureCaretVisible() {
	caret := a.state.Caret
	for _, ll := range a.lineLayouts {
		if caret < ll.startByte || caret > ll.startByte+len(ll.text) {
			continue
		}
		top := float64(ll.docY)
		bottom := float64(ll.docY + ll.height)
		if top < a.scrollY {
			a.scrollY = top
		}
		if bottom > a.scrollY+float64(a.contentRect.h) {
			a.scrollY = bottom - float64(a.contentRect.h)
		}
		caretX := float64(ll.docX + a.lineAdvance(ll, caret-ll.startByte) - 8)
		if caretX < a.scrollX {
			a.scrollX = math.Max(0, caretX-24)
		}
		if caretX > a.scrollX+float64(a.contentRect.w-24) {
			a.scrollX = caretX - float64(a.contentRect.w-24)
		}
		break
	}
	a.clampScroll()
}

func (a *App) clampScroll() {
	if a.scrollY < 0 {
		a.scrollY = 0
	}
	if a.scrollY > a.maxY {
		a.scrollY = a.maxY
	}
	if a.scrollX < 0 {
		a.scrollX = 0
	}
	if a.scrollX > a.maxX {
		a.scrollX = a.maxX
	}
}

func (a *App) fillRectWithinContent(x, y, w, h int, c color.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	if x < a.contentRect.x {
		w -= a.contentRect.x - x
		x = a.contentRect.x
	}
	if y < a.contentRect.y {
		h -= a.contentRect.y - y
		y = a.contentRect.y
	}
	if x+w > a.contentRect.x+a.contentRect.w {
		w = a.contentRect.x + a.contentRect.w - x
	}
	if y+h > a.contentRect.y+a.contentRect.h {
		h = a.contentRect.y + a.contentRect.h - y
	}
	if w <= 0 || h <= 0 {
		return
	}
	a.frameBuffer.FillRect(x, y, w, h, c)
}

func (a *App) drawScrollbars() {
	if a.contentRect.w <= 0 || a.contentRect.h <= 0 {
		return
	}
	if a.maxY > 0 {
		trackX := a.contentRect.x + a.contentRect.w - 6
		trackY := a.contentRect.y + 2
		trackH := a.contentRect.h - 8
		a.frameBuffer.FillRect(trackX, trackY, 4, trackH, color.RGBA{R: 231, G: 236, B: 244, A: 255})
		thumbH := max(24, int(float64(trackH)*float64(a.contentRect.h)/(float64(a.contentRect.h)+a.maxY)))
		thumbY := trackY + int((a.scrollY/a.maxY)*float64(trackH-thumbH))
		a.frameBuffer.FillRect(trackX, thumbY, 4, thumbH, color.RGBA{R: 156, G: 170, B: 190, A: 255})
	}
	if a.maxX > 0 {
		trackX := a.contentRect.x + 2
		trackY := a.contentRect.y + a.contentRect.h - 6
		trackW := a.contentRect.w - 8
		a.frameBuffer.FillRect(trackX, trackY, trackW, 4, color.RGBA{R: 231, G: 236, B: 244, A: 255})
		thumbW := max(24, int(float64(trackW)*float64(a.contentRect.w)/(float64(a.contentRect.w)+a.maxX)))
		thumbX := trackX + int((a.scrollX/a.maxX)*float64(trackW-thumbW))
		a.frameBuffer.FillRect(thumbX, trackY, thumbW, 4, color.RGBA{R: 156, G: 170, B: 190, A: 255})
	}
}

// drawInkOverlay rasterizes the sketch plus any in-progress stroke onto a
// transparent layer over the document.
func (a *App) drawInkOverlay(screen *ebiten.Image) {
	if a.sketchModel.Empty() && a.activeStroke == nil && !a.dragging {
		return
	}
	if a.contentRect.w <= 0 || a.contentRect.h <= 0 {
		return
	}
	if a.inkPixels == nil || a.inkPixels.W != a.contentRect.w || a.inkPixels.H != a.contentRect.h {
		a.inkPixels = render.NewFrameBuffer(a.contentRect.w, a.contentRect.h)
		a.inkLayer = ebiten.NewImage(a.contentRect.w, a.contentRect.h)
	}
	a.inkPixels.Clear(color.RGBA{})

	offX := float32(a.scrollX)
	offY := float32(a.scrollY)
	for _, s := range a.sketchModel.Strokes {
		a.inkPixels.DrawStroke(s, offX, offY)
	}
	if a.activeStroke != nil {
		a.inkPixels.DrawStroke(*a.activeStroke, offX, offY)
	}
	if a.dragging {
		if kind, ok := a.tool.shape(); ok {
			ghost := ink.Convert(kind, a.dragStart, a.dragCurrent, ink.Style{
				Tool:      a.Tool(),
				ColorRGBA: a.Color(),
				Width:     a.strokeWidth,
			})
			a.inkPixels.DrawStroke(ghost, offX, offY)
		}
	}

	a.inkLayer.WritePixels(a.inkPixels.Pixels)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(a.contentRect.x), float64(a.contentRect.y))
	screen.DrawImage(a.inkLayer, op)
}

func (a *App) drawPreviewPane(screen *ebiten.Image) {
	if a.previewRect.w <= 0 {
		return
	}
	if a.previewStale {
		a.previewHTML = a.previewer.Render(a.state.Text())
		a.previewStale = false
	}
	face := a.uiFace(9, false, false, true)
	lineH := face.Metrics().Ascent.Round() + face.Metrics().Descent.Round() + 3
	charW := a.measureString(face, "M")
	if charW < 1 {
		charW = 7
	}
	cols := a.previewRect.w / charW
	if cols < 8 {
		cols = 8
	}

	titleFace := a.uiFace(10, true, false, false)
	text.Draw(screen, "HTML Preview", titleFace, a.previewRect.x, a.previewRect.y+12, color.RGBA{R: 44, G: 58, B: 82, A: 255})

	y := a.previewRect.y + 12 + lineH*2
	fg := color.RGBA{R: 60, G: 72, B: 94, A: 255}
	for _, raw := range strings.Split(a.previewHTML, "\n") {
		for len(raw) > 0 {
			if y > a.previewRect.y+a.previewRect.h {
				return
			}
			n := min(cols, len(raw))
			text.Draw(screen, raw[:n], face, a.previewRect.x, y, fg)
			raw = raw[n:]
			y += lineH
		}
		if y > a.previewRect.y+a.previewRect.h {
			return
		}
		y += lineH / 3
	}
}

func (a *App) drawStatusBar(screen *ebiten.Image, face font.Face, h int) {
	line, col := a.caretLineCol()
	mode := "Text"
	if a.drawMode {
		mode = "Draw: " + a.tool.label()
	} else if a.engine.Raw {
		mode = "Raw"
	}
	name := a.noteTitle
	if a.dirty || a.sketchDirty {
		name += " *"
	}
	statusLeft := fmt.Sprintf("[ %s ] [ Ln %d, Col %d ] [ %d chars ]", name, line, col, utf8.RuneCount(a.state.Buf.Bytes()))
	statusRight := fmt.Sprintf("[ %s ] [ %s ]", mode, a.status)
	textColor := color.RGBA{R: 42, G: 56, B: 80, A: 255}
	text.Draw(screen, statusLeft, face, 12, h-10, textColor)
	text.Draw(screen, statusRight, face, 430, h-10, textColor)
}

func (a *App) caretLineCol() (int, int) {
	textBytes := a.state.Buf.Bytes()
	caret := a.state.Caret
	line := 1
	lineStart := 0
	for i := 0; i < caret && i < len(textBytes); i++ {
		if textBytes[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	col := utf8.RuneCount(textBytes[lineStart:min(caret, len(textBytes))]) + 1
	return line, col
}

func (a *App) drawHelpOverlay(screen *ebiten.Image, face font.Face, w, h int) {
	pw := int(520 * a.uiScales[a.uiScaleIdx])
	ph := int(420 * a.uiScales[a.uiScaleIdx])
	if pw > w-40 {
		pw = w - 40
	}
	if ph > h-40 {
		ph = h - 40
	}
	px := (w - pw) / 2
	py := (h - ph) / 2
	a.helpRect = rect{x: px, y: py, w: pw, h: ph}
	a.helpClose = rect{x: px + pw - 30, y: py + 8, w: 22, h: 22}

	fillRectOnImage(screen, 0, 0, w, h, color.RGBA{A: 90})
	fillRectOnImage(screen, px, py, pw, ph, color.RGBA{R: 249, G: 251, B: 254, A: 255})
	strokeRectOnImage(screen, px, py, pw, ph, color.RGBA{R: 160, G: 176, B: 198, A: 255})

	titleFace := a.uiFace(12, true, false, false)
	text.Draw(screen, "Inknote Keys", titleFace, px+20, py+28, color.RGBA{R: 24, G: 38, B: 56, A: 255})
	text.Draw(screen, "x", face, a.helpClose.x+7, a.helpClose.y+15, color.RGBA{R: 24, G: 38, B: 56, A: 255})

	lines := []string{
		"Ctrl+N      New note",
		"Ctrl+S      Save note and ink",
		"Ctrl+P      Toggle HTML preview",
		"Ctrl+R      Toggle raw markdown",
		"Ctrl+D      Toggle draw mode",
		"Ctrl+E      Export PDF",
		"Ctrl+B/I    Bold / italic markers",
		"Ctrl+Z/Y    Undo / redo",
		"Ctrl+V      Paste text or image",
		"Ctrl+Click  Pin note in sidebar",
		"",
		"Draw mode:",
		"P/M/E       Pen / marker / eraser",
		"1-6         Line, arrow, rect, ellipse, triangle, star",
		"C           Cycle stroke color",
		"[ / ]       Stroke width",
		"Ctrl+Z      Remove last stroke",
		"Esc         Leave draw mode",
	}
	y := py + 58
	lineFace := a.uiFace(10, false, false, true)
	lh := lineFace.Metrics().Ascent.Round() + lineFace.Metrics().Descent.Round() + 6
	for _, l := range lines {
		text.Draw(screen, l, lineFace, px+24, y, color.RGBA{R: 52, G: 66, B: 92, A: 255})
		y += lh
	}
}

func fillRectOnImage(img *ebiten.Image, x, y, w, h int, c color.RGBA) {
	for yy := y; yy < y+h; yy++ {
		ebitenutil.DrawLine(img, float64(x), float64(yy), float64(x+w), float64(yy), c)
	}
}

func strokeRectOnImage(img *ebiten.Image, x, y, w, h int, c color.RGBA) {
	ebitenutil.DrawLine(img, float64(x), float64(y), float64(x+w), float64(y), c)
	ebitenutil.DrawLine(img, float64(x), float64(y+h), float64(x+w), float64(y+h), c)
	ebitenutil.DrawLine(img, float64(x), float64(y), float64(x), float64(y+h), c)
	ebitenutil.DrawLine(img, float64(x+w), float64(y), float64(x+w), float64(y+h), c)
}

func rgbaFromUint32(v uint32) color.RGBA {
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}
}
