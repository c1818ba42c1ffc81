package mux

import (
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexewm/hexe/internal/backend"
	"github.com/hexewm/hexe/internal/oscpipe"
	"github.com/hexewm/hexe/internal/vt"
)

// fakeBackend is a minimal backend.Backend double for exercising Pane
// without spawning a real PTY.
type fakeBackend struct {
	writes [][]byte
	alive  bool
	closed bool
}

func (f *fakeBackend) FD() int { return -1 }
func (f *fakeBackend) Poll(buf []byte, fn func([]byte)) (bool, error) { return false, nil }
func (f *fakeBackend) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}
func (f *fakeBackend) Resize(cols, rows int) error { return nil }
func (f *fakeBackend) IsAlive() bool               { return f.alive }
func (f *fakeBackend) Close() error                { f.closed = true; return nil }

func newTestPane(cols, rows int) (*Pane, *fakeBackend) {
	fb := &fakeBackend{alive: true}
	p := &Pane{UUID: "test-pane", Backend: fb}
	p.VT = vt.New(cols, rows, fb)
	p.osc = oscpipe.New(p)
	return p, fb
}

func TestPaneCursorRowColIsOneBased(t *testing.T) {
	p, _ := newTestPane(10, 5)
	row, col := p.CursorRowCol()
	assert.Equal(t, 1, row)
	assert.Equal(t, 1, col)
}

func TestPaneMarginsStringReportsFullScreen(t *testing.T) {
	p, _ := newTestPane(10, 24)
	assert.Equal(t, "1;24", p.MarginsString())
}

func TestPaneRespondToBackendWritesToBackend(t *testing.T) {
	p, fb := newTestPane(10, 5)
	p.RespondToBackend([]byte("\x1b[0n"))
	assert.Len(t, fb.writes, 1)
	assert.Equal(t, "\x1b[0n", string(fb.writes[0]))
}

func TestPaneExpectOuterResponseRoundTrips(t *testing.T) {
	p, _ := newTestPane(10, 5)
	assert.False(t, p.TakePendingResponse())
	p.ExpectOuterResponse()
	assert.True(t, p.TakePendingResponse())
	assert.False(t, p.TakePendingResponse()) // consumed, one-shot
}

func TestPaneIsAliveDelegatesToBackend(t *testing.T) {
	p, fb := newTestPane(10, 5)
	assert.True(t, p.IsAlive())
	fb.alive = false
	assert.False(t, p.IsAlive())
}

func TestPaneSetCaptureTogglesOSCCapture(t *testing.T) {
	p, _ := newTestPane(10, 5)
	p.SetCapture(true)
	p.osc.Process([]byte("hello"))
	assert.Equal(t, "hello", string(p.CapturedOutput()))

	p.ResetCapture()
	assert.Empty(t, p.CapturedOutput())
}

func TestPaneResizeUpdatesRectAndVT(t *testing.T) {
	p, _ := newTestPane(10, 5)
	assert.NoError(t, p.Resize(20, 10))
	assert.Equal(t, 20, p.Rect.W)
	assert.Equal(t, 10, p.Rect.H)
	cols, rows := p.VT.Size()
	assert.Equal(t, 20, cols)
	assert.Equal(t, 10, rows)
}

// dialDaemonPane starts a throwaway unix listener and dials a
// backend.DaemonBackend against it, for tests that need a real daemon
// backend without a running "ses" process.
func dialDaemonPane(t *testing.T, cols, rows int) *backend.DaemonBackend {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "pane.sock")
	ln, err := net.Listen("unix", sockPath)
	assert.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, aerr := ln.Accept()
		if aerr == nil {
			io.Copy(io.Discard, conn)
		}
	}()

	db, err := backend.DialDaemon(sockPath, "daemon-pane", cols, rows)
	assert.NoError(t, err)
	return db
}

func TestPaneReplaceWithDaemonSwapsBackendAndClosesPrior(t *testing.T) {
	p, fb := newTestPane(10, 5)
	assert.False(t, p.IsDaemon)

	db := dialDaemonPane(t, 10, 5)
	assert.NoError(t, p.ReplaceWithDaemon(db))

	assert.True(t, fb.closed)
	assert.True(t, p.IsDaemon)
	assert.Same(t, db, p.Backend.(*backend.DaemonBackend))
	assert.True(t, p.IsAlive()) // daemon backend always reports alive
}
