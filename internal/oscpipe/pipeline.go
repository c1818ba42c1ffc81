// Package oscpipe implements the pane output inspection pipeline: terminal
// query autoresponse, OSC interception/passthrough with safety bounds, and
// clear-screen straddle detection. It inspects bytes a pane's backend just
// read; it never strips or rewrites them — the same bytes are still fed to
// the pane's VT afterward by the caller.
package oscpipe

import "bytes"

const oscMaxLen = 64 * 1024 // OSC accumulation buffer capped at 64 KiB

// Host is the pane-shaped collaborator the pipeline calls back into. A
// concrete Pane implements this; oscpipe has no dependency on the mux
// package, only the other direction.
type Host interface {
	// CursorRowCol returns the VT's current cursor position, 1-based, for
	// a \e[6n Cursor Position Report.
	CursorRowCol() (row, col int)
	// CursorStyleCode returns the DECSCUSR shape code for a DECRQSS "q" echo.
	CursorStyleCode() int
	// SGRString returns the current SGR parameter string for a DECRQSS "m" echo.
	SGRString() string
	// MarginsString returns the current scroll-margin parameter string for
	// a DECRQSS "r" echo.
	MarginsString() string
	// RespondToBackend writes an autoresponse back to the pane's own
	// backend (the process believes it's talking to a real terminal).
	RespondToBackend(p []byte)
	// PassthroughToOuter writes bytes verbatim to the outer terminal's
	// stdout: title, clipboard, and palette sequences.
	PassthroughToOuter(p []byte)
	// ExpectOuterResponse marks that the next byte the outer terminal
	// sends back (e.g. to a color query) should route to this pane.
	ExpectOuterResponse()
	// ClipboardSet pushes base64-decoded OSC 52 payload to the system
	// clipboard, best-effort.
	ClipboardSet(data []byte)
}

// Pipeline is one pane's output inspection state machine.
type Pipeline struct {
	host Host

	qs queryState

	osc       oscState
	oscBuf    bytes.Buffer
	inOSC     bool
	oscParams []byte // bytes before the first ';' (the OSC code)
	sawSemi   bool

	tail    [3]byte
	tailLen int

	CaptureOutput bool
	captureBuf    bytes.Buffer

	DidClear bool
}

// New creates a pipeline bound to host.
func New(host Host) *Pipeline {
	return &Pipeline{host: host}
}

// Process inspects one block of bytes just read from the pane's backend.
// It mutates no caller-visible state except via the Host callbacks and the
// exported CaptureOutput/DidClear fields; the caller still feeds the same
// bytes to the VT afterward.
func (p *Pipeline) Process(data []byte) {
	p.DidClear = false

	if p.CaptureOutput {
		p.captureBuf.Write(data)
	}

	p.detectClear(data)

	for _, b := range data {
		p.stepQuery(b)
		p.stepOSC(b)
	}

	p.stashTail(data)
}

// CapturedOutput returns everything accumulated while CaptureOutput was set.
func (p *Pipeline) CapturedOutput() []byte {
	return p.captureBuf.Bytes()
}

// ResetCapture clears the capture buffer (called when a blocking float's
// wait completes and its captured output has been consumed).
func (p *Pipeline) ResetCapture() {
	p.captureBuf.Reset()
}

// Reset clears all transient pipeline state; used when a pane's backend
// is replaced in place and the VT and output pipeline need a clean slate.
func (p *Pipeline) Reset() {
	p.qs = queryState{}
	p.osc = oscIdle
	p.oscBuf.Reset()
	p.oscParams = nil
	p.sawSemi = false
	p.inOSC = false
	p.tailLen = 0
	p.DidClear = false
}

// stashTail keeps the last up-to-3 bytes seen across calls, so a clear
// sequence split across two reads is still detected.
func (p *Pipeline) stashTail(data []byte) {
	combined := append(append([]byte(nil), p.tail[:p.tailLen]...), data...)
	n := len(combined)
	if n > 3 {
		combined = combined[n-3:]
		n = 3
	}
	p.tailLen = copy(p.tail[:], combined)
	_ = n
}
