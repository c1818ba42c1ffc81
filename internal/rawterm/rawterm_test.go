package rawterm

import (
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestEnableClearsCanonicalAndEchoFlags(t *testing.T) {
	_, tty, err := pty.Open()
	assert.NoError(t, err)
	defer tty.Close()

	fd := int(tty.Fd())
	st, err := Enable(fd)
	assert.NoError(t, err)
	defer st.Restore()

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	assert.NoError(t, err)
	assert.Zero(t, termios.Lflag&unix.ICANON)
	assert.Zero(t, termios.Lflag&unix.ECHO)
	assert.Zero(t, termios.Lflag&unix.ISIG)
	assert.Equal(t, uint8(1), termios.Cc[unix.VMIN])
}

func TestRestoreReturnsOriginalFlags(t *testing.T) {
	_, tty, err := pty.Open()
	assert.NoError(t, err)
	defer tty.Close()

	fd := int(tty.Fd())
	before, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	assert.NoError(t, err)

	st, err := Enable(fd)
	assert.NoError(t, err)
	assert.NoError(t, st.Restore())

	after, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	assert.NoError(t, err)
	assert.Equal(t, before.Lflag, after.Lflag)
	assert.Equal(t, before.Iflag, after.Iflag)
}

func TestSizeReadsWinsize(t *testing.T) {
	ptmx, tty, err := pty.Open()
	assert.NoError(t, err)
	defer ptmx.Close()
	defer tty.Close()

	assert.NoError(t, pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120}))

	cols, rows, err := Size(int(tty.Fd()))
	assert.NoError(t, err)
	assert.Equal(t, 120, cols)
	assert.Equal(t, 40, rows)
}

func TestEnterAndExitSequencesPairModeToggles(t *testing.T) {
	assert.Contains(t, string(EnterSequence()), "\x1b[?1049h")
	assert.Contains(t, string(ExitSequence()), "\x1b[?1049l")
	assert.Contains(t, string(EnterSequence()), "\x1b[?1000h")
	assert.Contains(t, string(ExitSequence()), "\x1b[?1000l")
	assert.Contains(t, string(EnterSequence()), "\x1b[?1006h")
	assert.Contains(t, string(ExitSequence()), "\x1b[?1006l")
	assert.Contains(t, string(EnterSequence()), "\x1b[?25l")
	assert.Contains(t, string(ExitSequence()), "\x1b[?25h")
}
