package mux

import (
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/hexewm/hexe/internal/backend"
	"github.com/hexewm/hexe/internal/config"
	"github.com/hexewm/hexe/internal/daemon"
	"github.com/hexewm/hexe/internal/layout"
	"github.com/hexewm/hexe/internal/logging"
	"github.com/hexewm/hexe/internal/rawterm"
)

const (
	sharedBufSize = 1 << 20 // shared read buffer reused across every pane drain this iteration
	frameBudgetMs = 16
	idleTimeoutMs = 100
	statusBarMs   = 250
)

// Loop is the single-threaded readiness-driven reactor: one poll(2) call
// per iteration over stdin, pane backends, the daemon socket, and the
// local IPC server, with no worker goroutines.
type Loop struct {
	State *State

	stdinFD int
	buf     []byte

	// quickCommand is true when the last stdin byte was the quick-command
	// prefix and the loop is waiting on the next byte to dispatch a local
	// action instead of forwarding it to the focused pane.
	quickCommand bool

	lastRenderAt  time.Time
	lastStatusAt  time.Time
	lastFrameTick time.Time
}

// NewLoop wires a Loop around an already-populated State.
func NewLoop(st *State) *Loop {
	now := time.Now()
	return &Loop{
		State:         st,
		stdinFD:       int(os.Stdin.Fd()),
		buf:           make([]byte, sharedBufSize),
		lastRenderAt:  now,
		lastStatusAt:  now,
		lastFrameTick: now,
	}
}

// pollTarget is one fd this iteration's poll(2) call watches, tagged so
// the post-poll dispatch knows what kind of source became readable.
type pollTarget struct {
	fd   int
	kind pollKind
	pane *Pane // set for kindTiledPane/kindFloat
}

type pollKind uint8

const (
	kindStdin pollKind = iota
	kindTiledPane
	kindFloat
	kindDaemon
	kindIPC
)

// buildPollSet enumerates every fd this iteration's poll(2) call watches.
func (l *Loop) buildPollSet() []pollTarget {
	targets := []pollTarget{{fd: l.stdinFD, kind: kindStdin}}

	for _, t := range l.State.Tabs {
		for _, p := range t.Panes {
			targets = append(targets, pollTarget{fd: p.Backend.FD(), kind: kindTiledPane, pane: p})
		}
	}
	for _, f := range l.State.Floats {
		targets = append(targets, pollTarget{fd: f.Backend.FD(), kind: kindFloat, pane: f})
	}
	if l.State.Daemon != nil && l.State.Daemon.IsConnected() {
		targets = append(targets, pollTarget{fd: l.State.Daemon.FD(), kind: kindDaemon})
	}
	if l.State.IPC != nil {
		targets = append(targets, pollTarget{fd: l.State.IPC.FD(), kind: kindIPC})
	}
	return targets
}

// pollTimeoutMs is the minimum of the frame deadline, the status-bar
// periodic deadline, and an idle ceiling.
func (l *Loop) pollTimeoutMs() int {
	timeout := idleTimeoutMs

	if l.State.NeedsRender {
		remaining := frameBudgetMs - int(time.Since(l.lastRenderAt).Milliseconds())
		if remaining < 0 {
			remaining = 0
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	statusRemaining := statusBarMs - int(time.Since(l.lastStatusAt).Milliseconds())
	if statusRemaining < 0 {
		statusRemaining = 0
	}
	if statusRemaining < timeout {
		timeout = statusRemaining
	}
	return timeout
}

// Step runs one iteration of the loop — resize check, dead-float reap,
// poll, drain, lifecycle tick, render — recovering any panic into a
// stack-carrying error so the caller can still restore the outer
// terminal before exiting; nothing in the core is designed to panic,
// but this is the backstop. Exported so a cmd/ entry point drives it in
// a `for state.Running { }` loop without this package owning process
// exit.
func (l *Loop) Step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 1)
			logging.Printf("loop: recovered panic: %v\n%s", wrapped, wrapped.ErrorStack())
			err = wrapped
		}
	}()

	l.State.SkipDeadCheck = false // (a)

	if cols, rows, err := rawterm.Size(l.stdinFD); err == nil { // (b)
		l.State.Resize(cols, rows)
	}

	l.State.ReapDeadFloats() // (c)

	targets := l.buildPollSet() // (d)
	pfds := make([]unix.PollFd, len(targets))
	for i, t := range targets {
		pfds[i].Fd = int32(t.fd)
		pfds[i].Events = unix.POLLIN
	}

	timeout := l.pollTimeoutMs() // (e)
	n, err := unix.Poll(pfds, timeout)
	if err != nil && err != unix.EINTR {
		return err
	}

	if n > 0 {
		l.drain(targets, pfds)
	}

	if !l.State.SkipDeadCheck {
		l.State.ReapDeadFloats()
		l.State.ReconcileDeadTiledPanes()
	}

	l.afterLifecycle()
	return nil
}

// drain dispatches readable panes first, then the daemon socket, then
// the IPC server, then stdin.
func (l *Loop) drain(targets []pollTarget, pfds []unix.PollFd) {
	daemonReady, ipcReady, stdinReady := false, false, false

	for i, t := range targets {
		if pfds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		switch t.kind {
		case kindStdin:
			stdinReady = true
		case kindTiledPane, kindFloat:
			l.drainPane(t.pane)
		case kindDaemon:
			daemonReady = true
		case kindIPC:
			ipcReady = true
		}
	}

	if daemonReady {
		l.drainDaemon()
	}
	if ipcReady {
		l.drainIPC()
	}
	if stdinReady {
		l.drainStdin()
	}
}

func (l *Loop) drainPane(p *Pane) {
	_, didClear, err := p.Poll(l.buf)
	if err != nil {
		logging.Printf("loop: pane %s read error: %v", p.UUID, err)
	}
	if didClear {
		l.State.ForceFullRender = true
	}
	l.State.NeedsRender = true
}

func nonzero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// drainDaemon dispatches inbound control messages
// (notify/pane_notification/tab_notification/pop_confirm/pop_choose).
func (l *Loop) drainDaemon() {
	_, err := l.State.Daemon.Poll(func(m daemon.Message) {
		switch m.Type {
		case "notify", "notification", "pane_notification":
			l.State.Realm.Notify(m.Message, nonzero(m.Duration, 3000))
		case "tab_notification":
			scope, target := l.State.ResolvePopupScope(m.TargetUUID)
			l.State.realmManagerFor(scope, target).Notify(m.Message, nonzero(m.Duration, 3000))
		case "pop_confirm":
			l.State.ShowPopup(PopupConfirm, m.Message, nil, m.TargetUUID)
		case "pop_choose":
			l.State.ShowPopup(PopupChoose, m.Message, m.Choices, m.TargetUUID)
		}
		l.State.NeedsRender = true
	})
	if err != nil {
		logging.Printf("loop: daemon read error: %v", err)
	}
}

// drainIPC accepts one pending local IPC connection and processes its
// single request: notify or float.
func (l *Loop) drainIPC() {
	conn, req, ok, err := l.State.IPC.AcceptOne()
	if err != nil {
		logging.Printf("loop: ipc accept error: %v", err)
		return
	}
	if !ok {
		return
	}

	switch req.Type {
	case "notify":
		l.State.Realm.Notify(req.Message, nonzero(req.DurationMs, 3000))
		conn.Close()
	case "float":
		l.handleAdhocFloat(conn, req)
	default:
		writeIPCError(conn, "unknown request type")
		conn.Close()
	}
	l.State.NeedsRender = true
}

// handleAdhocFloat spawns a one-off float from an IPC "float" request.
func (l *Loop) handleAdhocFloat(conn *net.UnixConn, req IPCRequest) {
	if req.Command == "" {
		writeIPCError(conn, "command is required")
		conn.Close()
		return
	}

	var extraEnv []string
	extraEnv = append(extraEnv, req.ExtraEnv...)
	extraEnv = append(extraEnv, req.Env...)
	if fileEnv, ferr := readEnvFile(req.EnvFile); ferr != nil {
		logging.Printf("loop: read env_file %q: %v", req.EnvFile, ferr)
	} else {
		extraEnv = append(extraEnv, fileEnv...)
	}

	resultPath, created := resultFilePath(req.ResultFile)
	if req.Wait {
		extraEnv = append(extraEnv, "HEXE_FLOAT_RESULT_FILE="+resultPath)
	}

	cmdArgs, qerr := shellquote.Split(req.Command)
	if qerr != nil || len(cmdArgs) == 0 || strings.ContainsAny(req.Command, "|&;<>()$`*?[") {
		// Fall back to a shell for anything shellquote can't tokenize and
		// for shell syntax it would pass through as literal words:
		// pipelines, redirects, globs.
		cmdArgs = []string{"/bin/sh", "-c", req.Command}
	}
	pane, err := NewLocalPane(l.State.NextIDCounter(), 80, 24, cmdArgs, req.Cwd, extraEnv)
	if err != nil {
		writeIPCError(conn, "spawn failed: "+err.Error())
		conn.Close()
		return
	}

	rect := floatRect(l.State.Cols, l.State.Rows, 0.6, 0.6)
	pane.Floating = true
	pane.Rect = rect
	pane.Resize(rect.W, rect.H)
	pane.Cwd = req.Cwd
	pane.Float = &FloatMeta{Title: "adhoc"}
	l.State.Floats = append(l.State.Floats, pane)
	l.State.setVisibleOnActiveTab(pane, true)

	if req.Wait {
		pane.SetCapture(true)
		l.State.PendingAdhoc[pane.UUID] = &AdhocRequest{
			Conn: conn, ResultFile: resultPath, createdResultFile: created,
		}
		return
	}

	writeIPCLine(conn, FloatCreatedReply{Type: "float_created", UUID: pane.UUID})
	conn.Close()
}

// quickCommandPrefix is Ctrl+\. It enters a one-shot local-command mode:
// the next byte from stdin is interpreted as a keybinding action instead
// of being forwarded to the focused pane.
const quickCommandPrefix = 0x1c

func (l *Loop) drainStdin() {
	n, err := unix.Read(l.stdinFD, l.buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		logging.Printf("loop: stdin read error: %v", err)
		return
	}
	if n <= 0 {
		return
	}
	data := l.buf[:n]

	if l.quickCommand {
		l.quickCommand = false
		l.runQuickCommand(data[0])
		data = data[1:]
		if len(data) == 0 {
			return
		}
	}

	if data[0] == quickCommandPrefix {
		if len(data) == 1 {
			l.quickCommand = true
			return
		}
		l.runQuickCommand(data[1])
		data = data[2:]
		if len(data) == 0 {
			return
		}
	}

	focused := l.State.FocusedPane()
	if focused == nil {
		return
	}
	if focused.TakePendingResponse() {
		focused.RespondToBackend(data)
		return
	}
	focused.Backend.Write(data)
}

// runQuickCommand dispatches the one byte read after quickCommandPrefix:
// 'd' detaches the session, 's'/'v' split the active tab's focused pane
// horizontally/vertically, and any byte matching a configured named
// float's key toggles that float. Anything else is a no-op cancel, same
// as leaving quick-command mode without effect.
func (l *Loop) runQuickCommand(b byte) {
	switch b {
	case 'd', 'D':
		l.State.DetachMode = true
		return
	case 's', 'S':
		l.splitFocused(layout.Horizontal)
		return
	case 'v', 'V':
		l.splitFocused(layout.Vertical)
		return
	}
	for _, def := range l.State.Floatdef {
		if def.Key == b {
			l.toggleNamedFloat(def)
			return
		}
	}
}

// splitFocused spawns a local pane beside the active tab's focused pane
// and recomputes every leaf's geometry from the tab's current area.
func (l *Loop) splitFocused(dir layout.Direction) {
	tab := l.State.ActiveTabPtr()
	if tab == nil {
		return
	}
	cwd := ""
	if focused := tab.FocusedPane(); focused != nil {
		cwd = focused.Cwd
	}
	pane, err := NewLocalPane(l.State.NextIDCounter(), l.State.Cols, l.State.Rows, nil, cwd, nil)
	if err != nil {
		logging.Printf("loop: split: spawn failed: %v", err)
		return
	}
	tab.AddSplit(pane, dir)
	tab.Resize(layout.Rect{W: l.State.Cols, H: l.State.Rows})
	l.State.NeedsRender = true
}

// toggleNamedFloat shows/hides a configured named float, spawning its
// backing process the first time a toggle finds no existing match.
func (l *Loop) toggleNamedFloat(def config.FloatDefinition) {
	if err := l.State.ToggleNamedFloat(def, func() (*Pane, error) {
		return l.spawnFloatPane(def)
	}); err != nil {
		logging.Printf("loop: toggle float %q: %v", def.Title, err)
	}
	l.State.NeedsRender = true
}

// spawnFloatPane starts the backing process for a named float: the
// daemon's createPane when connected, so the float survives a detach,
// falling back to a local PTY when the daemon is unreachable or refuses.
func (l *Loop) spawnFloatPane(def config.FloatDefinition) (*Pane, error) {
	if l.State.Daemon != nil && l.State.Daemon.IsConnected() {
		handle, err := l.State.Daemon.CreatePane(def.Command, "", nil)
		if err != nil {
			logging.Printf("loop: daemon createPane for float %q: %v", def.Title, err)
		} else {
			db, derr := backend.DialDaemon(handle.SocketPath, handle.UUID, l.State.Cols, l.State.Rows)
			if derr != nil {
				logging.Printf("loop: dial daemon pane for float %q: %v", def.Title, derr)
			} else {
				return NewDaemonPane(l.State.NextIDCounter(), l.State.Cols, l.State.Rows, db), nil
			}
		}
	}
	return NewLocalPane(l.State.NextIDCounter(), l.State.Cols, l.State.Rows, def.Command, "", nil)
}

// afterLifecycle ticks realms/emits popup responses, and renders if due.
func (l *Loop) afterLifecycle() {
	now := time.Now()
	dtMs := int(now.Sub(l.lastFrameTick).Milliseconds())
	l.lastFrameTick = now
	l.State.TickRealmsAndEmitPopupResponse(dtMs)

	if now.Sub(l.lastStatusAt).Milliseconds() >= statusBarMs {
		l.lastStatusAt = now
		l.State.NeedsRender = true
	}

	if l.State.NeedsRender && now.Sub(l.lastRenderAt).Milliseconds() >= frameBudgetMs {
		l.render()
		l.lastRenderAt = now
		l.State.NeedsRender = false
		l.State.ForceFullRender = false
	}
}

// render walks visible panes, stamps the cell grid, and emits the diff.
func (l *Loop) render() {
	r := l.State.Renderer
	if r == nil {
		return
	}
	r.BeginFrame()

	if tab := l.State.ActiveTabPtr(); tab != nil {
		for _, pane := range tab.Panes {
			r.DrawRenderState(pane.VT.RenderState(), pane.Rect.X, pane.Rect.Y, pane.Rect.W, pane.Rect.H)
		}
	}
	for _, f := range l.State.Floats {
		if !l.State.isVisibleOnActiveTab(f) {
			continue
		}
		r.DrawRenderState(f.VT.RenderState(), f.Rect.X, f.Rect.Y, f.Rect.W, f.Rect.H)
	}

	if err := r.EndFrame(os.Stdout, l.State.ForceFullRender); err != nil {
		logging.Printf("loop: render error: %v", err)
	}
}

// SerializedState is the shape persisted across detach/reattach: enough
// to rebuild tab ordering, pane UUIDs, and the float list's geometry and
// per-tab visibility.
type SerializedState struct {
	Tabs   []SerializedTab   `json:"tabs"`
	Floats []SerializedFloat `json:"floats"`
}

type SerializedTab struct {
	UUID  string           `json:"uuid"`
	Panes []SerializedPane `json:"panes"`
}

type SerializedPane struct {
	UUID string `json:"uuid"`
}

// SerializedFloat captures one floating pane's geometry and visibility,
// mirroring FloatMeta plus the pane UUID it's attached to.
type SerializedFloat struct {
	UUID         string  `json:"uuid"`
	Key          byte    `json:"key"`
	Title        string  `json:"title"`
	Exclusive    bool    `json:"exclusive"`
	PerCWD       bool    `json:"per_cwd"`
	Sticky       bool    `json:"sticky"`
	WidthPct     float64 `json:"width_pct"`
	HeightPct    float64 `json:"height_pct"`
	VisibleOnTab uint64  `json:"visible_on_tab"`
	ParentTab    string  `json:"parent_tab,omitempty"`
}

// SerializeState builds the detach payload.
func (s *State) SerializeState() ([]byte, error) {
	var out SerializedState
	for _, t := range s.Tabs {
		st := SerializedTab{UUID: t.UUID}
		for uuidStr := range t.Panes {
			st.Panes = append(st.Panes, SerializedPane{UUID: uuidStr})
		}
		out.Tabs = append(out.Tabs, st)
	}
	for _, f := range s.Floats {
		if f.Float == nil {
			continue
		}
		out.Floats = append(out.Floats, SerializedFloat{
			UUID:         f.UUID,
			Key:          f.Float.Key,
			Title:        f.Float.Title,
			Exclusive:    f.Float.Exclusive,
			PerCWD:       f.Float.PerCWD,
			Sticky:       f.Float.Sticky,
			WidthPct:     f.Float.WidthPct,
			HeightPct:    f.Float.HeightPct,
			VisibleOnTab: f.Float.VisibleOnTab,
			ParentTab:    f.Float.ParentTab,
		})
	}
	return json.Marshal(out)
}

// DeserializeState parses a detach payload produced by SerializeState,
// without touching any live State; the caller uses the result to adopt
// panes from the daemon and rebuild tabs/floats around them.
func DeserializeState(data []byte) (SerializedState, error) {
	var out SerializedState
	err := json.Unmarshal(data, &out)
	return out, err
}
