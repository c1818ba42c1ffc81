package mux

import (
	"strings"

	"github.com/hexewm/hexe/internal/config"
	"github.com/hexewm/hexe/internal/daemon"
	"github.com/hexewm/hexe/internal/layout"
	"github.com/hexewm/hexe/internal/logging"
	"github.com/hexewm/hexe/internal/render"
)

// State is the process-wide singleton.
type State struct {
	idCounter int

	Tabs      []*Tab
	ActiveTab int

	Floats         []*Pane
	ActiveFloating *int

	Daemon *daemon.Client
	IPC    *IPCServer

	// pendingPopupScope/Target remember which realm a daemon-originated
	// popup belongs to until it resolves.
	pendingPopupScope  Realm
	pendingPopupTarget string
	pendingPopup       *Popup

	// PendingAdhoc holds one in-flight wait=true float request per pane
	// UUID.
	PendingAdhoc map[string]*AdhocRequest

	Renderer *render.Renderer
	Realm    RealmManager // MUX-scoped notifications/popups

	Running            bool
	NeedsRender        bool
	ForceFullRender    bool
	DetachMode         bool
	SkipDeadCheck      bool
	ExitIntentDeadline int64 // unix ms, 0 = unset

	Cols, Rows int

	Config   *config.Settings
	Floatdef []config.FloatDefinition
}

// NewState builds an empty, not-yet-running state. Caller still needs to
// create the first tab/pane and call Resize once terminal size is known.
func NewState(cfg *config.Settings, floatDefs []config.FloatDefinition) *State {
	return &State{
		Config:       cfg,
		Floatdef:     floatDefs,
		PendingAdhoc: make(map[string]*AdhocRequest),
		Running:      true,
	}
}

// ActiveTabPtr returns the active tab, or nil if there are none left.
func (s *State) ActiveTabPtr() *Tab {
	if s.ActiveTab < 0 || s.ActiveTab >= len(s.Tabs) {
		return nil
	}
	return s.Tabs[s.ActiveTab]
}

// FocusedPane returns the single focused pane: the active floating pane
// if one is focused, else the active tab's focused tiled pane.
func (s *State) FocusedPane() *Pane {
	if s.ActiveFloating != nil && *s.ActiveFloating >= 0 && *s.ActiveFloating < len(s.Floats) {
		return s.Floats[*s.ActiveFloating]
	}
	if tab := s.ActiveTabPtr(); tab != nil {
		return tab.FocusedPane()
	}
	return nil
}

// Resize handles a terminal size change: resize every tab's layout,
// recompute float geometries from stored percentages, resize the
// renderer, and force a full redraw.
func (s *State) Resize(cols, rows int) {
	if s.Cols == cols && s.Rows == rows {
		return
	}
	s.Cols, s.Rows = cols, rows

	area := layout.Rect{X: 0, Y: 0, W: cols, H: rows}
	for _, t := range s.Tabs {
		t.Resize(area)
	}
	for _, f := range s.Floats {
		if f.Float == nil {
			continue
		}
		rect := floatRect(cols, rows, f.Float.WidthPct, f.Float.HeightPct)
		if f.Rect != rect {
			f.Rect = rect
			f.Resize(rect.W, rect.H)
		}
	}
	if s.Renderer != nil {
		s.Renderer.Resize(cols, rows)
	}
	s.ForceFullRender = true
	s.NeedsRender = true
}

func floatRect(cols, rows int, widthPct, heightPct float64) layout.Rect {
	if widthPct <= 0 {
		widthPct = 0.6
	}
	if heightPct <= 0 {
		heightPct = 0.6
	}
	w := int(float64(cols) * widthPct)
	h := int(float64(rows) * heightPct)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return layout.Rect{X: (cols - w) / 2, Y: (rows - h) / 2, W: w, H: h}
}

// NextIDCounter hands pane-id allocation to the pane constructors so it
// lives in one place.
func (s *State) NextIDCounter() *int { return &s.idCounter }

// FocusFloat moves focus onto the float at index i.
func (s *State) FocusFloat(i int) {
	if i < 0 || i >= len(s.Floats) {
		return
	}
	if f := s.FocusedPane(); f != nil {
		f.Focused = false
	}
	idx := i
	s.ActiveFloating = &idx
	s.Floats[i].Focused = true
}

// UnfocusFloats hands focus back to the active tab's tiled pane.
func (s *State) UnfocusFloats() {
	if f := s.FocusedPane(); f != nil {
		f.Focused = false
	}
	s.ActiveFloating = nil
	if tab := s.ActiveTabPtr(); tab != nil {
		if p := tab.FocusedPane(); p != nil {
			p.Focused = true
		}
	}
}

// findMatchingFloat is the named-float lookup: skips tab-bound floats
// not on the active tab, and for per_cwd floats also requires a
// matching cwd against the currently focused pane.
func (s *State) findMatchingFloat(def config.FloatDefinition) (int, *Pane) {
	active := s.ActiveTabPtr()
	var activeCwd string
	if focused := s.FocusedPane(); focused != nil {
		activeCwd = focused.Cwd
	}

	for i, f := range s.Floats {
		if f.Float == nil || f.Float.Key != def.Key {
			continue
		}
		if f.Float.ParentTab != "" && (active == nil || f.Float.ParentTab != active.UUID) {
			continue
		}
		if def.PerCWD && f.Cwd != activeCwd {
			continue
		}
		return i, f
	}
	return -1, nil
}

// isVisibleOnActiveTab reports whether a float shows on the current tab,
// honoring the tab-bound bool (bit 0) vs the per-tab bitmask for global
// floats (up to 64 tabs).
func (s *State) isVisibleOnActiveTab(f *Pane) bool {
	if f.Float == nil {
		return false
	}
	if f.Float.ParentTab != "" {
		return f.Float.VisibleOnTab&1 != 0
	}
	if s.ActiveTab < 0 || s.ActiveTab >= 64 {
		return false
	}
	return f.Float.VisibleOnTab&(1<<uint(s.ActiveTab)) != 0
}

func (s *State) setVisibleOnActiveTab(f *Pane, visible bool) {
	if f.Float == nil {
		return
	}
	var bit uint64
	if f.Float.ParentTab != "" {
		bit = 1
	} else if s.ActiveTab >= 0 && s.ActiveTab < 64 {
		bit = 1 << uint(s.ActiveTab)
	}
	if visible {
		f.Float.VisibleOnTab |= bit
	} else {
		f.Float.VisibleOnTab &^= bit
	}
}

// ToggleNamedFloat shows/hides a named float. spawn is called only when
// no existing float matches and must create a new pane (daemon-hosted
// when connected, else local PTY).
func (s *State) ToggleNamedFloat(def config.FloatDefinition, spawn func() (*Pane, error)) error {
	idx, existing := s.findMatchingFloat(def)
	if existing == nil {
		pane, err := spawn()
		if err != nil {
			return err
		}
		rect := floatRect(s.Cols, s.Rows, def.WidthPct, def.HeightPct)
		pane.Floating = true
		pane.Rect = rect
		pane.Resize(rect.W, rect.H)
		pane.Float = &FloatMeta{
			Key: def.Key, Title: def.Title, Exclusive: def.Exclusive,
			PerCWD: def.PerCWD, Sticky: def.Sticky,
			WidthPct: def.WidthPct, HeightPct: def.HeightPct,
		}
		s.Floats = append(s.Floats, pane)
		s.setVisibleOnActiveTab(pane, true)
		s.applyExclusivity(pane)
		s.FocusFloat(len(s.Floats) - 1)
		return nil
	}

	showing := !s.isVisibleOnActiveTab(existing)
	s.setVisibleOnActiveTab(existing, showing)
	if showing {
		s.applyExclusivity(existing)
		s.FocusFloat(idx)
	} else if s.ActiveFloating != nil && *s.ActiveFloating == idx {
		s.UnfocusFloats()
	}
	return nil
}

// applyExclusivity hides sibling floats: if the definition is exclusive,
// hide all other floats on the tab; if per_cwd, hide other instances of
// the same key on the tab.
func (s *State) applyExclusivity(shown *Pane) {
	if shown.Float == nil {
		return
	}
	for _, f := range s.Floats {
		if f == shown || f.Float == nil {
			continue
		}
		if shown.Float.Exclusive || (shown.Float.PerCWD && f.Float.Key == shown.Float.Key) {
			s.setVisibleOnActiveTab(f, false)
		}
	}
}

// ReapDeadFloats polls isAlive, removes corpses in reverse index order,
// delivers wait-for-exit completion, notifies the daemon, and transfers
// focus off a dead focused float.
func (s *State) ReapDeadFloats() {
	for i := len(s.Floats) - 1; i >= 0; i-- {
		f := s.Floats[i]
		if f.IsAlive() {
			continue
		}
		s.completeAdhoc(f)
		if s.Daemon != nil && s.Daemon.IsConnected() {
			if err := s.Daemon.KillPane(f.UUID); err != nil {
				logging.Printf("state: daemon kill_pane %s: %v", f.UUID, err)
			}
		}
		wasFocused := s.ActiveFloating != nil && *s.ActiveFloating == i
		f.Close()
		s.Floats = append(s.Floats[:i], s.Floats[i+1:]...)

		if wasFocused {
			s.ActiveFloating = nil
			if len(s.Floats) > 0 {
				next := i
				if next >= len(s.Floats) {
					next = len(s.Floats) - 1
				}
				s.FocusFloat(next)
			} else if tab := s.ActiveTabPtr(); tab != nil {
				if p := tab.FocusedPane(); p != nil {
					p.Focused = true
				}
			}
		} else if s.ActiveFloating != nil && *s.ActiveFloating > i {
			*s.ActiveFloating--
		}
	}
}

// completeAdhoc finishes a blocking float: read the result file if
// present, trim, delete, and emit exactly one float_result line, then
// close the connection.
func (s *State) completeAdhoc(f *Pane) {
	req, ok := s.PendingAdhoc[f.UUID]
	if !ok {
		return
	}
	delete(s.PendingAdhoc, f.UUID)

	exitCode := 0
	if f.ExitStatus != nil {
		exitCode = *f.ExitStatus
	}

	stdout := ""
	if req.ResultFile != "" {
		if trimmed, err := trimResultFile(req.ResultFile); err == nil {
			stdout = trimmed
		}
	}

	writeIPCLine(req.Conn, FloatResultReply{
		Type: "float_result", UUID: f.UUID, ExitCode: exitCode, Stdout: stdout,
	})
	req.Conn.Close()
}

// ReconcileDeadTiledPanes removes dead tiled splits: close the pane; if
// a tab drops to zero splits, close the tab; if the last tab dies,
// either confirm-exit or set Running=false per configuration.
func (s *State) ReconcileDeadTiledPanes() {
	for ti := 0; ti < len(s.Tabs); ti++ {
		tab := s.Tabs[ti]
		for uuidStr, pane := range tab.Panes {
			if pane.IsAlive() {
				continue
			}
			wasFocused := pane.Focused
			pane.Close()
			if !tab.ClosePane(uuidStr) {
				s.closeTab(ti)
				ti--
				break
			}
			if wasFocused {
				if p := tab.FocusedPane(); p != nil {
					p.Focused = true
				}
			}
		}
	}
}

func (s *State) closeTab(i int) {
	if i < 0 || i >= len(s.Tabs) {
		return
	}
	s.Tabs = append(s.Tabs[:i], s.Tabs[i+1:]...)
	if len(s.Tabs) == 0 {
		if s.Config != nil && s.Config.Behavior.ExitConfirmOnLastTab {
			s.Realm.PushPopup(&Popup{Kind: PopupConfirm, Message: "Exit hexe?"})
		} else {
			s.Running = false
		}
		return
	}
	if s.ActiveTab >= len(s.Tabs) {
		s.ActiveTab = len(s.Tabs) - 1
	}
}

// ResolvePopupScope matches a daemon-supplied target UUID prefix: a tab
// UUID prefix first, then a pane UUID prefix among splits, then among
// floats; no match or no target means MUX scope.
func (s *State) ResolvePopupScope(targetUUID string) (Realm, string) {
	if targetUUID == "" {
		return RealmMux, ""
	}
	for _, t := range s.Tabs {
		if strings.HasPrefix(t.UUID, targetUUID) {
			return RealmTab, t.UUID
		}
	}
	for _, t := range s.Tabs {
		for uuidStr := range t.Panes {
			if strings.HasPrefix(uuidStr, targetUUID) {
				return RealmPane, uuidStr
			}
		}
	}
	for _, f := range s.Floats {
		if strings.HasPrefix(f.UUID, targetUUID) {
			return RealmPane, f.UUID
		}
	}
	return RealmMux, ""
}

// realmManagerFor returns the RealmManager backing scope/target, used by
// the popup relay (ShowPopup) and the daemon's tab notification handler.
func (s *State) realmManagerFor(scope Realm, target string) *RealmManager {
	switch scope {
	case RealmTab:
		for _, t := range s.Tabs {
			if t.UUID == target {
				return &t.Realm
			}
		}
	case RealmPane:
		// Per-pane realms aren't separately stored; PANE-scoped
		// popups/notifications render against the pane but queue on
		// the MUX realm.
		return &s.Realm
	}
	return &s.Realm
}

// ShowPopup relays a daemon-originated popup into the resolved realm.
func (s *State) ShowPopup(kind PopupKind, message string, choices []string, targetUUID string) {
	scope, target := s.ResolvePopupScope(targetUUID)
	p := &Popup{Kind: kind, Message: message, Choices: choices, TargetUUID: targetUUID}
	s.realmManagerFor(scope, target).PushPopup(p)
	s.pendingPopupScope = scope
	s.pendingPopupTarget = target
	s.pendingPopup = p
}

// TickRealmsAndEmitPopupResponse ticks every realm's notification/popup
// managers and, if the pending remote popup resolved (dismissed or
// timed out), emits its response on the daemon connection.
func (s *State) TickRealmsAndEmitPopupResponse(dtMs int) {
	s.Realm.Tick(dtMs)
	for _, t := range s.Tabs {
		t.Realm.Tick(dtMs)
	}

	if s.pendingPopup == nil || !s.pendingPopup.Resolved {
		return
	}
	if s.Daemon != nil && s.Daemon.IsConnected() {
		p := s.pendingPopup
		switch {
		case p.Cancelled:
			s.Daemon.SendPopResponse(nil, nil, true)
		case p.Kind == PopupChoose:
			sel := p.Selected
			s.Daemon.SendPopResponse(nil, &sel, false)
		default:
			ok := p.Confirmed
			s.Daemon.SendPopResponse(&ok, nil, false)
		}
	}
	s.pendingPopup = nil
}
