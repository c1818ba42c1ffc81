// Package mux is the multiplexing engine: panes, tabs, the singleton
// State, the float lifecycle and its IPC surface, directional
// navigation, and the main loop tying them together.
package mux

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/hexewm/hexe/internal/backend"
	"github.com/hexewm/hexe/internal/clipboard"
	"github.com/hexewm/hexe/internal/layout"
	"github.com/hexewm/hexe/internal/logging"
	"github.com/hexewm/hexe/internal/oscpipe"
	"github.com/hexewm/hexe/internal/vt"
)

// FloatMeta is the extra bookkeeping a floating pane carries.
type FloatMeta struct {
	Key       byte
	Title     string
	Exclusive bool
	PerCWD    bool
	Sticky    bool
	WidthPct  float64
	HeightPct float64

	// VisibleOnTab is the per-tab bitmask for global floats (bounded to
	// 64 tabs) or, for a tab-bound float, a single bool stored in bit 0.
	VisibleOnTab uint64
	ParentTab    string // "" = global float, visible per VisibleOnTab across tabs
}

// Pane is the fundamental hosted-terminal unit.
type Pane struct {
	UUID string
	ID   int
	Rect layout.Rect

	Focused  bool
	Floating bool
	Float    *FloatMeta

	VT      *vt.VT
	Backend backend.Backend
	IsDaemon bool

	osc           *oscpipe.Pipeline
	CaptureOutput bool

	ExitStatus *int
	Cwd        string

	// pendingResponse is set by ExpectOuterResponse; the loop routes the
	// next outer-terminal reply byte block to this pane.
	pendingResponse bool
}

func nextID(counter *int) int {
	*counter++
	return *counter
}

// NewLocalPane starts a local PTY-backed pane at the given geometry.
func NewLocalPane(idCounter *int, cols, rows int, cmdArgs []string, cwd string, extraEnv []string) (*Pane, error) {
	lb, err := backend.NewLocal(cols, rows, cmdArgs, cwd, extraEnv)
	if err != nil {
		return nil, err
	}
	p := &Pane{
		UUID:    uuid.NewString(),
		ID:      nextID(idCounter),
		Rect:    layout.Rect{W: cols, H: rows},
		Backend: lb,
		Cwd:     cwd,
	}
	p.VT = vt.New(cols, rows, lb)
	p.osc = oscpipe.New(p)
	return p, nil
}

// NewDaemonPane wraps an already-dialed daemon backend.
func NewDaemonPane(idCounter *int, cols, rows int, db *backend.DaemonBackend) *Pane {
	return newDaemonPane(idCounter, cols, rows, db, uuid.NewString())
}

// AdoptDaemonPane wraps an already-dialed daemon backend for a pane that
// existed before this process started, keeping its original UUID instead
// of minting a new one — the reattach path needs the rebuilt pane to
// carry the same UUID the detach payload recorded.
func AdoptDaemonPane(idCounter *int, cols, rows int, db *backend.DaemonBackend, paneUUID string) *Pane {
	return newDaemonPane(idCounter, cols, rows, db, paneUUID)
}

func newDaemonPane(idCounter *int, cols, rows int, db *backend.DaemonBackend, paneUUID string) *Pane {
	p := &Pane{
		UUID:     paneUUID,
		ID:       nextID(idCounter),
		Rect:     layout.Rect{W: cols, H: rows},
		Backend:  db,
		IsDaemon: true,
	}
	p.VT = vt.New(cols, rows, db)
	p.osc = oscpipe.New(p)
	return p
}

// Poll drives one non-blocking read of the pane's backend, running the
// output pipeline and then feeding the same bytes to the VT.
func (p *Pane) Poll(buf []byte) (consumed bool, didClear bool, err error) {
	p.osc.DidClear = false
	consumed, err = p.Backend.Poll(buf, func(data []byte) {
		p.osc.Process(data)
		p.VT.Feed(data)
	})
	return consumed, p.osc.DidClear, err
}

// IsAlive reports whether the backend's process is still considered
// live (local: waitpid reap; daemon: always true).
func (p *Pane) IsAlive() bool {
	if !p.Backend.IsAlive() {
		if local, ok := p.Backend.(*backend.LocalBackend); ok {
			status := local.ExitStatus()
			p.ExitStatus = &status
		}
		return false
	}
	return true
}

func (p *Pane) Resize(cols, rows int) error {
	p.Rect.W, p.Rect.H = cols, rows
	p.VT.Resize(cols, rows)
	return p.Backend.Resize(cols, rows)
}

func (p *Pane) Close() error {
	return p.Backend.Close()
}

// ReplaceWithDaemon swaps a live local backend for a fresh daemon-client
// one, resetting transient output-pipeline/VT state so the daemon's
// backlog replay repaints it.
func (p *Pane) ReplaceWithDaemon(db *backend.DaemonBackend) error {
	if err := p.Backend.Close(); err != nil {
		logging.Printf("pane %s: close prior backend: %v", p.UUID, err)
	}
	p.Backend = db
	p.IsDaemon = true
	p.VT = vt.New(p.Rect.W, p.Rect.H, db)
	p.osc.Reset()
	return db.Resize(p.Rect.W, p.Rect.H)
}

// --- oscpipe.Host ---

func (p *Pane) CursorRowCol() (row, col int) {
	c := p.VT.Cursor()
	return c.Y + 1, c.X + 1
}

func (p *Pane) CursorStyleCode() int { return p.VT.CursorStyle() }

// SGRString renders the current cell's attributes at the cursor as an
// SGR parameter string for a DECRQSS "m" echo.
func (p *Pane) SGRString() string {
	state := p.VT.RenderState()
	c := state.Cursor
	if c.Y < 0 || c.Y >= len(state.Cells) || c.X < 0 || c.X >= len(state.Cells[c.Y]) {
		return "0"
	}
	g := state.Cells[c.Y][c.X]
	s := "0"
	if g.Mode&vt.ModeBold != 0 {
		s += ";1"
	}
	if g.Mode&vt.ModeUnderline != 0 {
		s += ";4"
	}
	if g.Mode&vt.ModeReverse != 0 {
		s += ";7"
	}
	return s
}

// MarginsString reports the full-screen scroll region (no per-region
// margin tracking is exposed by the adapted VT; echoing *current* state
// is enough, and full-screen is always current unless a pane sets
// margins itself, which the VT would already reflect on resize).
func (p *Pane) MarginsString() string {
	_, rows := p.VT.Size()
	return fmt.Sprintf("1;%d", rows)
}

func (p *Pane) RespondToBackend(b []byte) {
	if _, err := p.Backend.Write(b); err != nil {
		logging.Printf("pane %s: autoresponse write failed: %v", p.UUID, err)
	}
}

func (p *Pane) PassthroughToOuter(b []byte) {
	if _, err := os.Stdout.Write(b); err != nil {
		logging.Printf("pane %s: passthrough write failed: %v", p.UUID, err)
	}
}

func (p *Pane) ExpectOuterResponse() { p.pendingResponse = true }

// TakePendingResponse reports and clears whether this pane is waiting
// for the next outer-terminal reply byte block.
func (p *Pane) TakePendingResponse() bool {
	v := p.pendingResponse
	p.pendingResponse = false
	return v
}

func (p *Pane) ClipboardSet(data []byte) { clipboard.Write(data) }

// CapturedOutput/ResetCapture proxy the output pipeline's capture buffer
// for blocking ad-hoc floats waiting on exit.
func (p *Pane) CapturedOutput() []byte { return p.osc.CapturedOutput() }
func (p *Pane) ResetCapture()          { p.osc.ResetCapture() }
func (p *Pane) SetCapture(on bool) {
	p.CaptureOutput = on
	p.osc.CaptureOutput = on
}
