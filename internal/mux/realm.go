package mux

import (
	"fmt"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Realm is the scope at which a notification or popup lives: MUX spans
// the whole screen and blocks everything while a popup is shown; TAB is
// scoped to the active tab; PANE to one pane.
type Realm uint8

const (
	RealmMux Realm = iota
	RealmTab
	RealmPane
)

// Notification is a transient message shown for Duration before expiry.
type Notification struct {
	Message    string
	DurationMs int
	ElapsedMs  int
}

func (n *Notification) tick(dtMs int) bool {
	n.ElapsedMs += dtMs
	return n.ElapsedMs >= n.DurationMs
}

// StatusLine renders the notification for the status bar, e.g.
// "disk full (dismisses 3 seconds from now)".
func (n *Notification) StatusLine() string {
	remaining := time.Duration(n.DurationMs-n.ElapsedMs) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	now := time.Now()
	return fmt.Sprintf("%s (dismisses %s)", n.Message, humanize.RelTime(now.Add(remaining), now, "ago", "from now"))
}

// PopupKind distinguishes a yes/no confirm from a multi-choice picker.
type PopupKind uint8

const (
	PopupConfirm PopupKind = iota
	PopupChoose
)

// Popup blocks its realm until resolved by input or TimeoutMs elapsing.
type Popup struct {
	Kind      PopupKind
	Message   string
	Choices   []string
	TimeoutMs int
	elapsedMs int

	// TargetUUID identifies which TAB/PANE this popup is scoped to, when
	// Realm != RealmMux.
	TargetUUID string

	Resolved  bool
	Confirmed bool
	Selected  int
	Cancelled bool
}

// Resolution is what a resolved popup reports back to its daemon caller.
type Resolution struct {
	Confirmed *bool
	Selected  *int
	Cancelled bool
}

func (p *Popup) resolveConfirm(ok bool) Resolution {
	p.Resolved, p.Confirmed = true, ok
	return Resolution{Confirmed: &ok}
}

func (p *Popup) resolveChoice(i int) Resolution {
	p.Resolved, p.Selected = true, i
	return Resolution{Selected: &i}
}

func (p *Popup) resolveCancel() Resolution {
	p.Resolved, p.Cancelled = true, true
	return Resolution{Cancelled: true}
}

func (p *Popup) tick(dtMs int) bool {
	if p.TimeoutMs <= 0 {
		return false
	}
	p.elapsedMs += dtMs
	if p.elapsedMs >= p.TimeoutMs && !p.Resolved {
		p.resolveCancel()
		return true
	}
	return false
}

// RealmManager owns one realm's notification queue and popup stack.
type RealmManager struct {
	Notifications []*Notification
	Popups        []*Popup
}

func (m *RealmManager) Notify(message string, durationMs int) {
	m.Notifications = append(m.Notifications, &Notification{Message: message, DurationMs: durationMs})
}

func (m *RealmManager) PushPopup(p *Popup) { m.Popups = append(m.Popups, p) }

// ActivePopup returns the top-of-stack popup, or nil.
func (m *RealmManager) ActivePopup() *Popup {
	if len(m.Popups) == 0 {
		return nil
	}
	return m.Popups[len(m.Popups)-1]
}

// Tick ages notifications and popups by dtMs, dropping expired
// notifications and returning any popup resolved by timeout this tick
// so the caller can emit its pop_response.
func (m *RealmManager) Tick(dtMs int) []*Popup {
	var live []*Notification
	for _, n := range m.Notifications {
		if !n.tick(dtMs) {
			live = append(live, n)
		}
	}
	m.Notifications = live

	var justResolved []*Popup
	var stillOpen []*Popup
	for _, p := range m.Popups {
		if p.Resolved {
			continue
		}
		if p.tick(dtMs) {
			justResolved = append(justResolved, p)
			continue
		}
		stillOpen = append(stillOpen, p)
	}
	m.Popups = stillOpen
	return justResolved
}

// PopResolved removes and returns a resolved popup from the stack (for
// ones resolved by input rather than timeout).
func (m *RealmManager) PopResolved(p *Popup) {
	for i, q := range m.Popups {
		if q == p {
			m.Popups = append(m.Popups[:i], m.Popups[i+1:]...)
			return
		}
	}
}
