package mux

import (
	"github.com/google/uuid"

	"github.com/hexewm/hexe/internal/layout"
)

// Tab holds a layout tree of tiled splits plus its own notification
// queue and popup stack.
type Tab struct {
	UUID   string
	Layout *layout.Tree
	Panes  map[string]*Pane // tiled panes only, owned by the tab

	Realm RealmManager
}

// NewTab creates a tab whose layout starts as a single leaf holding pane.
func NewTab(pane *Pane) *Tab {
	return newTab(pane, uuid.NewString())
}

// AdoptTab creates a tab with a caller-supplied UUID instead of minting a
// fresh one — the reattach path needs the rebuilt tab to carry the same
// UUID the detach payload recorded.
func AdoptTab(pane *Pane, tabUUID string) *Tab {
	return newTab(pane, tabUUID)
}

func newTab(pane *Pane, tabUUID string) *Tab {
	t := &Tab{
		UUID:   tabUUID,
		Layout: layout.NewTree(pane.UUID),
		Panes:  map[string]*Pane{pane.UUID: pane},
	}
	return t
}

// FocusedPane implements getFocusedPane.
func (t *Tab) FocusedPane() *Pane {
	return t.Panes[t.Layout.FocusedPaneID()]
}

// AddSplit inserts newPane as a sibling of the focused pane.
func (t *Tab) AddSplit(newPane *Pane, dir layout.Direction) {
	t.Layout.Split(newPane.UUID, dir)
	t.Panes[newPane.UUID] = newPane
}

// ClosePane implements closePane at the tab level: removes paneUUID from
// the layout and the pane map. Returns false if paneUUID was the tab's
// only pane (caller must close the whole tab).
func (t *Tab) ClosePane(paneUUID string) bool {
	if !t.Layout.ClosePane(paneUUID) {
		return false
	}
	delete(t.Panes, paneUUID)
	return true
}

// SplitCount implements splitCount.
func (t *Tab) SplitCount() int { return t.Layout.SplitCount() }

// Resize recomputes every tiled pane's geometry and pushes it to the
// pane's VT/backend.
func (t *Tab) Resize(area layout.Rect) {
	t.Layout.Resize(area)
	t.Layout.SplitIterator(func(paneUUID string, rect layout.Rect) {
		pane := t.Panes[paneUUID]
		if pane == nil {
			return
		}
		if pane.Rect != rect {
			pane.Rect = rect
			pane.Resize(rect.W, rect.H)
		}
	})
}
