// Command hexe is the terminal multiplexer's entry point: bare invocation
// starts a new session, --attach <uuid-prefix> reattaches to one already
// detached and held by the "ses" daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	isatty "github.com/mattn/go-isatty"

	"github.com/google/uuid"

	"github.com/hexewm/hexe/internal/backend"
	"github.com/hexewm/hexe/internal/config"
	"github.com/hexewm/hexe/internal/daemon"
	"github.com/hexewm/hexe/internal/layout"
	"github.com/hexewm/hexe/internal/logging"
	"github.com/hexewm/hexe/internal/mux"
	"github.com/hexewm/hexe/internal/rawterm"
	"github.com/hexewm/hexe/internal/render"
)

func main() {
	os.Exit(run())
}

func run() int {
	attach := flag.String("attach", "", "reattach to a detached session by uuid prefix")
	configDir := flag.String("config-dir", "", "override the configuration directory")
	socketDir := flag.String("socket-dir", "", "override the \"ses\" daemon socket directory")
	flag.Parse()

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, "hexe: stdin is not a terminal")
		return 1
	}

	if err := config.InitConfigDir(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "hexe:", err)
	}
	closer, err := logging.Init(config.ConfigDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hexe: warning: logging disabled:", err)
	}
	defer closer.Close()

	settings := config.LoadSettings()
	floatDefs, err := config.LoadFloatDefinitions()
	if err != nil {
		logging.Printf("main: loading float definitions: %v", err)
	}

	st := mux.NewState(settings, floatDefs)

	sockDir := *socketDir
	if sockDir == "" {
		sockDir = filepath.Join(config.ConfigDir, "sessions")
	}
	if err := os.MkdirAll(sockDir, 0755); err != nil {
		logging.Printf("main: creating socket dir: %v", err)
	}

	sessionUUID, sessionSocket, err := resolveSession(sockDir, *attach)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hexe:", err)
		return 1
	}

	lockFile, err := daemon.AcquireSessionLock(sessionSocket)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hexe: session already active:", err)
		return 1
	}
	defer daemon.ReleaseSessionLock(lockFile)

	ipcPath := sessionSocket + ".ipc"
	ipc, err := mux.ListenIPC(ipcPath)
	if err != nil {
		logging.Printf("main: local IPC socket unavailable: %v", err)
	} else {
		st.IPC = ipc
		defer ipc.Close()
	}

	if dc, derr := daemon.Dial(sessionSocket); derr == nil {
		st.Daemon = dc
		defer dc.Close()
	} else {
		logging.Printf("main: daemon not reachable, running without it: %v", derr)
	}

	reattached := false
	if *attach != "" && st.Daemon != nil {
		if err := attachSession(st, sessionUUID); err != nil {
			logging.Printf("main: reattach failed, starting a fresh shell instead: %v", err)
		} else {
			reattached = true
		}
	}

	if !reattached {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		pane, err := mux.NewLocalPane(st.NextIDCounter(), 80, 24, []string{shell}, "", nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hexe: starting shell:", err)
			return 1
		}
		st.Tabs = append(st.Tabs, mux.NewTab(pane))
	}

	stdinFD := int(os.Stdin.Fd())
	cols, rows, err := rawterm.Size(stdinFD)
	if err != nil {
		cols, rows = 80, 24
	}
	st.Renderer = render.New(cols, rows)
	st.Resize(cols, rows)

	raw, err := rawterm.Enable(stdinFD)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hexe: entering raw mode:", err)
		return 1
	}
	rawterm.WriteEnter(os.Stdout)
	defer func() {
		rawterm.WriteExit(os.Stdout)
		raw.Restore()
	}()

	logging.Printf("main: session %s starting on socket %s", sessionUUID, sessionSocket)

	loop := mux.NewLoop(st)
	for st.Running {
		if err := loop.Step(); err != nil {
			logging.Printf("main: loop error: %v", err)
			break
		}
		if st.DetachMode {
			break
		}
	}

	if st.DetachMode {
		payload, serr := st.SerializeState()
		if serr == nil && st.Daemon != nil && st.Daemon.IsConnected() {
			if derr := st.Daemon.DetachSession(sessionUUID, payload); derr != nil {
				logging.Printf("main: detach notify failed: %v", derr)
			}
		}
		rawterm.WriteExit(os.Stdout)
		raw.Restore()
		fmt.Printf("Session detached: %s\n", sessionUUID)
		return 0
	}

	return 0
}

// attachSession fetches the state payload a prior detach stored for
// sessionUUID and rebuilds tabs, floats, and their panes around daemon
// sockets dialed back up with AdoptPane. Any failure leaves st untouched
// and the caller falls back to a fresh shell.
func attachSession(st *mux.State, sessionUUID string) error {
	raw, err := st.Daemon.GetSessionState(sessionUUID)
	if err != nil {
		return fmt.Errorf("fetching saved state: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no saved state for session %s", sessionUUID)
	}
	saved, err := mux.DeserializeState(raw)
	if err != nil {
		return fmt.Errorf("decoding saved state: %w", err)
	}
	if len(saved.Tabs) == 0 {
		return fmt.Errorf("saved state has no tabs")
	}

	adopted := make(map[string]bool)

	var tabs []*mux.Tab
	for _, savedTab := range saved.Tabs {
		if len(savedTab.Panes) == 0 {
			continue
		}
		first, ferr := adoptPane(st, savedTab.Panes[0].UUID)
		if ferr != nil {
			return ferr
		}
		adopted[savedTab.Panes[0].UUID] = true
		tab := mux.AdoptTab(first, savedTab.UUID)
		for _, sp := range savedTab.Panes[1:] {
			pane, perr := adoptPane(st, sp.UUID)
			if perr != nil {
				return perr
			}
			adopted[sp.UUID] = true
			tab.AddSplit(pane, layout.Horizontal)
		}
		tabs = append(tabs, tab)
	}
	if len(tabs) == 0 {
		return fmt.Errorf("saved state had no adoptable panes")
	}

	var floats []*mux.Pane
	for _, f := range saved.Floats {
		pane, ferr := adoptPane(st, f.UUID)
		if ferr != nil {
			logging.Printf("main: skipping float %s on reattach: %v", f.UUID, ferr)
			continue
		}
		adopted[f.UUID] = true
		pane.Floating = true
		pane.Float = &mux.FloatMeta{
			Key:          f.Key,
			Title:        f.Title,
			Exclusive:    f.Exclusive,
			PerCWD:       f.PerCWD,
			Sticky:       f.Sticky,
			WidthPct:     f.WidthPct,
			HeightPct:    f.HeightPct,
			VisibleOnTab: f.VisibleOnTab,
			ParentTab:    f.ParentTab,
		}
		floats = append(floats, pane)
	}

	st.Tabs = append(st.Tabs, tabs...)
	st.Floats = append(st.Floats, floats...)

	if orphans, oerr := st.Daemon.ListOrphanedPanes(); oerr != nil {
		logging.Printf("main: listing orphaned panes on reattach: %v", oerr)
	} else {
		for _, o := range orphans {
			if !adopted[o.UUID] {
				logging.Printf("main: orphaned pane %s (from %s) not in saved state, left with the daemon", o.UUID, o.CreatedFrom)
			}
		}
	}

	return nil
}

// adoptPane asks the daemon for a fresh socket to a pane that survived a
// prior detach and wraps it as a daemon-backed pane carrying its original
// UUID, so layout/float bookkeeping keyed on that UUID keeps working.
func adoptPane(st *mux.State, paneUUID string) (*mux.Pane, error) {
	handle, err := st.Daemon.AdoptPane(paneUUID)
	if err != nil {
		return nil, fmt.Errorf("adopting pane %s: %w", paneUUID, err)
	}
	db, err := backend.DialDaemon(handle.SocketPath, handle.UUID, 80, 24)
	if err != nil {
		return nil, fmt.Errorf("dialing adopted pane %s: %w", paneUUID, err)
	}
	return mux.AdoptDaemonPane(st.NextIDCounter(), 80, 24, db, handle.UUID), nil
}

// resolveSession picks the session uuid and its control-socket path: a
// bare invocation mints a new uuid, --attach matches an existing socket
// file by uuid prefix.
func resolveSession(sockDir, attachPrefix string) (uuidStr, socketPath string, err error) {
	if attachPrefix == "" {
		id := uuid.NewString()
		return id, filepath.Join(sockDir, id+".sock"), nil
	}

	entries, rerr := os.ReadDir(sockDir)
	if rerr != nil {
		return "", "", fmt.Errorf("reading session directory: %w", rerr)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sock") {
			continue
		}
		id := strings.TrimSuffix(name, ".sock")
		if strings.HasPrefix(id, attachPrefix) {
			return id, filepath.Join(sockDir, name), nil
		}
	}
	return "", "", fmt.Errorf("no detached session matching %q", attachPrefix)
}
