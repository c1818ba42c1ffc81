package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationTickExpires(t *testing.T) {
	n := &Notification{Message: "hi", DurationMs: 100}
	assert.False(t, n.tick(50))
	assert.True(t, n.tick(60))
}

func TestNotificationStatusLineHumanizesRemaining(t *testing.T) {
	n := &Notification{Message: "disk full", DurationMs: 3000, ElapsedMs: 0}
	line := n.StatusLine()
	assert.Contains(t, line, "disk full")
	assert.Contains(t, line, "from now")
}

func TestRealmManagerNotifyAndTick(t *testing.T) {
	var m RealmManager
	m.Notify("hello", 100)
	assert.Len(t, m.Notifications, 1)

	m.Tick(50)
	assert.Len(t, m.Notifications, 1)

	m.Tick(60)
	assert.Len(t, m.Notifications, 0)
}

func TestPopupResolveConfirm(t *testing.T) {
	p := &Popup{Kind: PopupConfirm, Message: "sure?"}
	res := p.resolveConfirm(true)
	assert.True(t, p.Resolved)
	assert.True(t, *res.Confirmed)
}

func TestPopupTimeoutAutoCancels(t *testing.T) {
	p := &Popup{Kind: PopupConfirm, Message: "sure?", TimeoutMs: 100}
	assert.False(t, p.tick(50))
	assert.True(t, p.tick(60))
	assert.True(t, p.Cancelled)
}

func TestRealmManagerTickReturnsTimedOutPopups(t *testing.T) {
	var m RealmManager
	p := &Popup{Kind: PopupConfirm, TimeoutMs: 50}
	m.PushPopup(p)

	resolved := m.Tick(100)
	assert.Len(t, resolved, 1)
	assert.Empty(t, m.Popups)
}
