// Package vt adapts github.com/hinshun/vt10x behind a black-box VT
// contract: init/feed/resize/cursor/render-state snapshot, with nothing
// upstream of this package allowed to reach into vt10x types directly.
package vt

import (
	"github.com/hinshun/vt10x"
)

// Glyph mode bits, mirrored from internal/terminal/vt_render.go's
// locally-defined constants since vt10x does not export them.
const (
	ModeBold uint8 = 1 << iota
	ModeUnderline
	ModeReverse
	ModeBlink
	ModeDim
	ModeItalic
	ModeStrikethrough
)

// UnderlineKind enumerates the six underline styles the renderer tracks.
type UnderlineKind uint8

const (
	UnderlineNone UnderlineKind = iota
	UnderlineSingle
	UnderlineDouble
	UnderlineCurly
	UnderlineDotted
	UnderlineDashed
)

// Cursor is the cursor position reported by the VT.
type Cursor struct {
	X, Y int
}

// RenderState is a stable snapshot of one VT's screen, safe to read
// while the VT continues mutating underneath.
type RenderState struct {
	Cols, Rows int
	Cells      [][]Glyph
	Cursor     Cursor
	CursorShow bool
	AltScreen  bool
}

// Glyph is one cell of a RenderState snapshot. FG/BG are vt10x.Color
// values (palette index 0-255, packed 24-bit RGB above that, or a default
// sentinel) carried as a plain uint32 so packages downstream of vt don't
// need to import vt10x themselves.
type Glyph struct {
	Char rune
	Mode uint8
	FG   uint32
	BG   uint32
}

const DefaultColor uint32 = 0xFFFFFFFF

// VT wraps a vt10x.Terminal with a minimal, stable surface.
type VT struct {
	term         vt10x.Terminal
	writer       ptyWriter
	pwd          string
	scrollOffset int
}

// ptyWriter is satisfied by any backend that can receive VT autoresponses
// (DSR/DA/DECRQSS) for the query-scanner component; vt10x itself wants a
// writer at construction time to emit those without round-tripping through
// the pane's output pipeline.
type ptyWriter interface {
	Write(p []byte) (int, error)
}

// New creates a VT of the given size. w receives bytes the VT emits on
// its own initiative in response to queries it answers internally
// (vt10x currently answers none, but the hook is kept since query
// autoresponse is layered on top, in internal/oscpipe, outside the VT).
func New(cols, rows int, w ptyWriter) *VT {
	opts := []vt10x.Option{vt10x.WithSize(cols, rows)}
	if w != nil {
		opts = append(opts, vt10x.WithWriter(w))
	}
	return &VT{term: vt10x.New(opts...), writer: w}
}

// Feed parses bytes into the VT's screen/scrollback state.
func (v *VT) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	v.term.Write(p)
}

// Resize changes the VT's column/row count.
func (v *VT) Resize(cols, rows int) {
	v.term.Resize(cols, rows)
}

// Size returns the current column/row count.
func (v *VT) Size() (cols, rows int) { return v.term.Size() }

// Cursor returns the current cursor position.
func (v *VT) Cursor() Cursor {
	c := v.term.Cursor()
	return Cursor{X: c.X, Y: c.Y}
}

// CursorVisible reports whether the cursor should currently be drawn.
func (v *VT) CursorVisible() bool { return v.term.CursorVisible() }

// CursorStyle reports the current cursor shape for DECRQSS "q" responses.
// vt10x does not track a settable cursor shape, so this always reports the
// default block/steady shape; a richer VT library would let this vary.
func (v *VT) CursorStyle() int { return 2 }

// InAltScreen reports whether the VT is in the alternate screen buffer.
func (v *VT) InAltScreen() bool {
	return v.term.Mode()&vt10x.ModeAltScreen != 0
}

// Pwd returns the working directory last recorded with SetPwd, or "" if
// none. vt10x does not surface OSC 7 itself, and the OSC pipeline
// (internal/oscpipe) passes OSC 7 through without calling SetPwd, so Pwd
// stays "" unless a caller records a directory here.
func (v *VT) Pwd() string { return v.pwd }

// SetPwd records the most recently observed OSC 7 working directory.
func (v *VT) SetPwd(pwd string) { v.pwd = pwd }

// RenderState takes a stable snapshot of the current screen for the
// renderer to diff against. Copying out of vt10x here (rather than reading
// cell-by-cell from the renderer) is what makes the snapshot stable: once
// taken, nothing the backend feeds afterward can mutate it.
func (v *VT) RenderState() RenderState {
	cols, rows := v.term.Size()
	cells := make([][]Glyph, rows)
	for y := 0; y < rows; y++ {
		row := make([]Glyph, cols)
		for x := 0; x < cols; x++ {
			g := v.term.Cell(x, y)
			row[x] = Glyph{
				Char: g.Char,
				Mode: uint8(g.Mode),
				FG:   packColor(g.FG, vt10x.DefaultFG),
				BG:   packColor(g.BG, vt10x.DefaultBG),
			}
		}
		cells[y] = row
	}
	cur := v.term.Cursor()
	return RenderState{
		Cols:       cols,
		Rows:       rows,
		Cells:      cells,
		Cursor:     Cursor{X: cur.X, Y: cur.Y},
		CursorShow: v.term.CursorVisible(),
		AltScreen:  v.InAltScreen(),
	}
}

// ScrollViewport adds delta to a stored scrollback offset (delta > 0 is
// toward history, delta < 0 toward the live screen) and returns the new
// offset, clamped at 0. vt10x does not expose scrollback, so the offset
// has no upper bound and is not read by RenderState: the snapshot is
// always the live screen.
func (v *VT) ScrollViewport(delta int) int {
	v.scrollOffset += delta
	if v.scrollOffset < 0 {
		v.scrollOffset = 0
	}
	return v.scrollOffset
}

// packColor maps a vt10x.Color to our plain uint32 wire form, collapsing
// the library's own default sentinel onto DefaultColor.
func packColor(c, def vt10x.Color) uint32 {
	if c == def {
		return DefaultColor
	}
	return uint32(c)
}

// InvalidateRenderState clears any internal "is this the same snapshot"
// cache so the next RenderState forces a full walk of the grid. vt10x
// has no such cache, so this just resets the scroll offset to the
// viewport's live position on demand.
func (v *VT) InvalidateRenderState() {
	v.scrollOffset = 0
}
