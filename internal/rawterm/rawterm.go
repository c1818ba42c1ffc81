// Package rawterm puts the outer terminal into raw mode and wraps it in
// the alternate-screen/mouse-reporting envelope the multiplexer draws
// into. Modeled on internal/session/client.go's makeRaw/restore
// termios manipulation.
package rawterm

import (
	"os"

	"golang.org/x/sys/unix"
)

// State holds the outer terminal's original termios so it can be restored.
type State struct {
	fd   int
	orig unix.Termios
}

// Enable switches fd (normally os.Stdin's fd) into raw mode: no echo, no
// canonical line buffering, no signal-generating keys, 8-bit clean.
func Enable(fd int) (*State, error) {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	orig := *termios

	raw := *termios
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return &State{fd: fd, orig: orig}, nil
}

// Restore puts the terminal back the way Enable found it.
func (s *State) Restore() error {
	return unix.IoctlSetTermios(s.fd, unix.TCSETS, &s.orig)
}

// Size reads the outer terminal's current geometry via TIOCGWINSZ.
func Size(fd int) (cols, rows int, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Col), int(ws.Row), nil
}

// enterSequence is written once on startup: switch to the alternate
// screen, clear scrollback and screen, home the cursor, reset SGR,
// select the line-drawing/US-ASCII charset slots, hide the cursor, and
// turn on SGR mouse reporting.
const enterSequence = "\x1b[?1049h\x1b[2J\x1b[3J\x1b[H\x1b[0m\x1b(B\x1b)0\x0f\x1b[?25l\x1b[?1000h\x1b[?1006h"

// exitSequence reverses enterSequence, in reverse order, restoring the
// outer terminal to how a normal shell would leave it.
const exitSequence = "\x1b[?1006l\x1b[?1000l\x1b[?25h\x1b[0m\x1b[?1049l"

func EnterSequence() []byte { return []byte(enterSequence) }
func ExitSequence() []byte  { return []byte(exitSequence) }

// WriteEnter/WriteExit push the envelope sequences straight to the outer
// terminal, bypassing any buffered writer.
func WriteEnter(f *os.File) error {
	_, err := f.Write(EnterSequence())
	return err
}

func WriteExit(f *os.File) error {
	_, err := f.Write(ExitSequence())
	return err
}
