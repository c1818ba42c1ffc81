package render

import (
	"fmt"
	"strings"

	runewidth "github.com/mattn/go-runewidth"

	"github.com/hexewm/hexe/internal/vt"
)

// wideTail marks the second column of a wide glyph: codepoint 0, never
// emits a glyph, advances the cursor by one column.
const wideTail rune = 0

// Renderer owns the double-buffered cell grid and emits the minimal ANSI
// edit sequence each frame.
type Renderer struct {
	current *CellBuffer
	next    *CellBuffer
	sgr     sgrState
}

// New creates a renderer sized to cols x rows.
func New(cols, rows int) *Renderer {
	return &Renderer{
		current: NewCellBuffer(cols, rows),
		next:    NewCellBuffer(cols, rows),
	}
}

// Resize reallocates both buffers as blank; the caller forces the full
// redraw on the next frame.
func (r *Renderer) Resize(cols, rows int) {
	r.current.Resize(cols, rows)
	r.next.Resize(cols, rows)
}

// Invalidate zeroes `current` so the next endFrame is effectively a full
// redraw.
func (r *Renderer) Invalidate() {
	r.current.Clear()
}

// BeginFrame zeroes `next` so callers can stamp this frame's contents.
func (r *Renderer) BeginFrame() {
	r.next.Clear()
}

// SetCell stamps a single cell into the frame being built.
func (r *Renderer) SetCell(x, y int, c Cell) {
	r.next.Set(x, y, c)
}

// DrawRenderState stamps a pane's VT snapshot into the frame at the
// given viewport offset.
func (r *Renderer) DrawRenderState(state vt.RenderState, offsetX, offsetY, w, h int) {
	for y := 0; y < h && y < state.Rows; y++ {
		for x := 0; x < w && x < state.Cols; x++ {
			g := state.Cells[y][x]
			cell := fromGlyph(g)

			if runewidth.RuneWidth(cell.Codepoint) == 2 {
				// lead cell stays as-is; mark the following column as the
				// spacer tail if it's within the viewport, and skip that
				// column so the VT's own cell there does not overwrite it.
				r.SetCell(offsetX+x, offsetY+y, cell)
				if x+1 < w && x+1 < state.Cols {
					r.SetCell(offsetX+x+1, offsetY+y, Cell{Codepoint: wideTail, FG: cell.FG, BG: cell.BG})
					x++
				}
				continue
			} else if cell.Codepoint == wideTail {
				cell.Codepoint = ' '
			}

			r.SetCell(offsetX+x, offsetY+y, cell)
		}
	}
}

// EndFrame emits the minimal diff between `current` and `next` to w,
// then swaps the buffers.
func (r *Renderer) EndFrame(w writer, force bool) error {
	if !force && r.current.Equal(r.next) {
		r.current, r.next = r.next, r.current
		return nil
	}

	var b strings.Builder
	b.WriteString("\x1b[?2026h")
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[0m")
	r.sgr = sgrState{}
	if force {
		b.WriteString("\x1b[H\x1b[2J")
	}

	for y := 0; y < r.next.Rows; y++ {
		r.emitRow(&b, y, force)
	}

	b.WriteString("\x1b[0m\x1b[?2026l")

	if _, err := w.Write([]byte(b.String())); err != nil {
		return err
	}

	r.current, r.next = r.next, r.current
	return nil
}

type writer interface {
	Write([]byte) (int, error)
}

// emitRow writes the minimal edit sequence for one row.
func (r *Renderer) emitRow(b *strings.Builder, y int, force bool) {
	firstDiff := -1
	for x := 0; x < r.next.Cols; x++ {
		if force || r.current.Get(x, y) != r.next.Get(x, y) {
			firstDiff = x
			break
		}
	}
	if firstDiff == -1 {
		return
	}

	lastDiff := firstDiff
	for x := r.next.Cols - 1; x > lastDiff; x-- {
		if force || r.current.Get(x, y) != r.next.Get(x, y) {
			lastDiff = x
			break
		}
	}

	fmt.Fprintf(b, "\x1b[%d;1H", y+1)
	if firstDiff > 0 {
		fmt.Fprintf(b, "\x1b[%dC", firstDiff)
	}

	// Uniform blank tail optimization: if the row ends in a run of blanks
	// sharing one style that reaches back to or past the last changed
	// column, stop early and erase to end of line instead of emitting
	// every cell.
	tailStart, tailStyle, hasTail := r.uniformBlankTail(y, firstDiff, lastDiff)

	end := lastDiff + 1
	if hasTail {
		end = tailStart
	}

	// Walk firstDiff..end, coalescing any run of cells that did not change
	// (force aside) into a single cursor-forward move instead of
	// re-emitting them.
	x := firstDiff
	for x < end {
		if !force && r.current.Get(x, y) == r.next.Get(x, y) {
			run := 0
			for x < end && !(force) && r.current.Get(x, y) == r.next.Get(x, y) {
				run++
				x++
			}
			fmt.Fprintf(b, "\x1b[%dC", run)
			continue
		}

		cell := r.next.Get(x, y)
		if cell.Codepoint == wideTail {
			b.WriteString("\x1b[1C")
			x++
			continue
		}
		r.emitSGR(b, cell)
		b.WriteRune(cell.Codepoint)
		x++
	}

	if hasTail {
		r.emitSGR(b, tailStyle)
		b.WriteString("\x1b[K")
	}
}

// uniformBlankTail finds a trailing run of blank cells sharing one SGR
// style that starts at or before the last real change (and not before
// firstDiff), so it can be collapsed into \e[K.
func (r *Renderer) uniformBlankTail(y, firstDiff, lastDiff int) (start int, style Cell, ok bool) {
	cols := r.next.Cols
	runStart := cols
	for x := cols - 1; x >= firstDiff; x-- {
		c := r.next.Get(x, y)
		if c.Codepoint != ' ' {
			break
		}
		if runStart < cols {
			if c != style {
				break
			}
		}
		style = c
		runStart = x
	}
	if runStart > lastDiff || runStart >= cols {
		return 0, Cell{}, false
	}
	// Only worth it for a run of at least two cells.
	if cols-runStart < 2 {
		return 0, Cell{}, false
	}
	return runStart, style, true
}

// sgrState tracks the currently emitted SGR attributes so emitSGR only
// writes the delta against the previous cell.
type sgrState struct {
	set       bool
	bold      bool
	italic    bool
	faint     bool
	strike    bool
	inverse   bool
	underline vt.UnderlineKind
	fg, bg    Color
}

func (r *Renderer) emitSGR(b *strings.Builder, c Cell) {
	prev := r.sgr
	needReset := prev.set && (
	// Anything that must turn OFF forces a full reset, since there is no
	// single "bold off"-only code that doesn't also affect faint (21/22
	// ambiguity across terminals): reset whenever an attribute needs to
	// go from on to off.
	(prev.bold && !c.Bold) ||
		(prev.italic && !c.Italic) ||
		(prev.faint && !c.Faint) ||
		(prev.strike && !c.Strike) ||
		(prev.inverse && !c.Inverse) ||
		(prev.underline != vt.UnderlineNone && c.Underline == vt.UnderlineNone))

	if needReset {
		b.WriteString("\x1b[0m")
		prev = sgrState{}
	}

	if c.Bold && !prev.bold {
		b.WriteString("\x1b[1m")
	}
	if c.Faint && !prev.faint {
		b.WriteString("\x1b[2m")
	}
	if c.Italic && !prev.italic {
		b.WriteString("\x1b[3m")
	}
	if c.Underline != vt.UnderlineNone && c.Underline != prev.underline {
		b.WriteString("\x1b[4m")
	}
	if c.Inverse && !prev.inverse {
		b.WriteString("\x1b[7m")
	}
	if c.Strike && !prev.strike {
		b.WriteString("\x1b[9m")
	}

	if c.FG != prev.fg {
		writeColor(b, c.FG, true)
	}
	if c.BG != prev.bg {
		writeColor(b, c.BG, false)
	}

	r.sgr = sgrState{
		set: true, bold: c.Bold, italic: c.Italic, faint: c.Faint,
		strike: c.Strike, inverse: c.Inverse, underline: c.Underline,
		fg: c.FG, bg: c.BG,
	}
}

func writeColor(b *strings.Builder, c Color, fg bool) {
	switch c.Kind {
	case ColorNone:
		if fg {
			b.WriteString("\x1b[39m")
		} else {
			b.WriteString("\x1b[49m")
		}
	case ColorPalette:
		if fg {
			fmt.Fprintf(b, "\x1b[38;5;%dm", c.Palette)
		} else {
			fmt.Fprintf(b, "\x1b[48;5;%dm", c.Palette)
		}
	case ColorRGB:
		if fg {
			fmt.Fprintf(b, "\x1b[38;2;%d;%d;%dm", c.R, c.G, c.B)
		} else {
			fmt.Fprintf(b, "\x1b[48;2;%d;%d;%dm", c.R, c.G, c.B)
		}
	}
}
