package ui

import (
	"inknote/internal/editor"
	"inknote/internal/render"
)

type Layout struct {
	MenuH     int
	ToolbarH  int
	StatusH   int
	SidebarW  int
	CanvasY   int
	CanvasH   int
	PageX     int
	PageY     int
	PageW     int
	PageH     int
	ContentX  int
	ContentY  int
	ContentW  int
	ContentH  int
	PreviewX  int
	PreviewW  int
	StatusBar int
}

func ComputeLayout(w, h int, theme Theme, scale float32, previewOpen bool) Layout {
	if scale <= 0 {
		scale = 1
	}

	dp := func(v int) int { return int(float32(v) * scale) }

	menuH := dp(theme.MenuHeightDp)
	toolbarH := dp(theme.ToolbarHeightDp)
	statusH := dp(theme.StatusHeightDp)
	margin := dp(theme.PageMarginDp)
	sidebarW := dp(theme.SidebarWidthDp)
	if sidebarW > w/3 {
		sidebarW = w / 3
	}

	canvasY := menuH + toolbarH
	canvasH := h - canvasY - statusH
	if canvasH < 0 {
		canvasH = 0
	}

	previewW := 0
	if previewOpen {
		previewW = (w - sidebarW) / 2
	}

	pageAreaX := sidebarW
	pageAreaW := w - sidebarW - previewW
	pageW := pageAreaW - margin*2
	pageH := canvasH - margin*2
	maxPageW := dp(900)
	if pageW > maxPageW {
		pageW = maxPageW
	}
	if pageW < dp(320) {
		pageW = dp(320)
	}
	if pageH < dp(200) {
		pageH = dp(200)
	}
	pageX := pageAreaX + (pageAreaW-pageW)/2
	pageY := canvasY + margin
	contentPad := dp(18)

	contentW := pageW - contentPad*2
	contentH := pageH - contentPad*2 - dp(4)
	if contentW < dp(100) {
		contentW = dp(100)
	}
	if contentH < dp(100) {
		contentH = dp(100)
	}

	return Layout{
		MenuH:     menuH,
		ToolbarH:  toolbarH,
		StatusH:   statusH,
		SidebarW:  sidebarW,
		CanvasY:   canvasY,
		CanvasH:   canvasH,
		PageX:     pageX,
		PageY:     pageY,
		PageW:     pageW,
		PageH:     pageH,
		ContentX:  pageX + contentPad,
		ContentY:  pageY + contentPad + dp(8),
		ContentW:  contentW,
		ContentH:  contentH,
		PreviewX:  w - previewW,
		PreviewW:  previewW,
		StatusBar: h - statusH,
	}
}

// DrawShell paints the editor chrome: menu and toolbar strip, note list
// sidebar, the centered page, an optional preview pane, and the status bar.
// Text and ink are drawn by the caller on top of the returned layout.
func DrawShell(fb *render.FrameBuffer, state *editor.State, theme Theme, scale float32, previewOpen bool) Layout {
	layout := ComputeLayout(fb.W, fb.H, theme, scale, previewOpen)

	fb.Clear(theme.AppBackground)

	// Menu + toolbar
	fb.FillRect(0, 0, fb.W, layout.MenuH, theme.TopBar)
	fb.FillRect(0, layout.MenuH, fb.W, layout.ToolbarH, theme.Toolbar)
	fb.StrokeRect(0, 0, fb.W, layout.MenuH+layout.ToolbarH, 1, theme.Border)

	// Sidebar with the note list
	fb.FillRect(0, layout.CanvasY, layout.SidebarW, layout.CanvasH, theme.Sidebar)
	fb.StrokeRect(0, layout.CanvasY, layout.SidebarW, layout.CanvasH, 1, theme.Border)

	// Canvas region
	fb.FillRect(layout.SidebarW, layout.CanvasY, fb.W-layout.SidebarW, layout.CanvasH, theme.Canvas)

	// Centered page
	pageX := layout.PageX
	pageY := layout.PageY
	pageW := layout.PageW
	pageH := layout.PageH
	fb.FillRect(pageX+2, pageY+2, pageW, pageH, theme.Shadow)
	fb.FillRect(pageX, pageY, pageW, pageH, theme.Page)
	fb.StrokeRect(pageX, pageY, pageW, pageH, 1, theme.Border)

	// Accent line at top of page as visual anchor.
	accentH := int(3 * scale)
	if accentH < 1 {
		accentH = 1
	}
	fb.FillRect(pageX, pageY, pageW, accentH, theme.Accent)

	// Preview pane
	if layout.PreviewW > 0 {
		fb.FillRect(layout.PreviewX, layout.CanvasY, layout.PreviewW, layout.CanvasH, theme.Page)
		fb.StrokeRect(layout.PreviewX, layout.CanvasY, layout.PreviewW, layout.CanvasH, 1, theme.Border)
	}

	// Status bar
	fb.FillRect(0, layout.StatusBar, fb.W, layout.StatusH, theme.StatusBar)
	fb.StrokeRect(0, layout.StatusBar, fb.W, layout.StatusH, 1, theme.Border)

	_ = state
	return layout
}
