package backend

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/hexewm/hexe/internal/logging"
)

// LocalBackend owns a PTY master and the shell/child process running on
// its slave side. Modeled on internal/terminal/panel.go's
// NewPanel/readLoop, restructured from a background goroutine into a
// single non-blocking Poll the main loop drives directly, with no
// reader goroutine per pane.
type LocalBackend struct {
	ptmx *os.File
	cmd  *exec.Cmd
	cols, rows int

	alive      bool
	exitStatus int
}

// command resolves the argv to run: cmdArgs verbatim if non-empty,
// otherwise the user's login shell from $SHELL.
func command(cmdArgs []string) []string {
	if len(cmdArgs) > 0 {
		return cmdArgs
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell, "-i"}
}

// NewLocal starts a PTY-backed process at the given geometry.
func NewLocal(cols, rows int, cmdArgs []string, cwd string, extraEnv []string) (*LocalBackend, error) {
	argv := command(cmdArgs)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, extraEnv...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(ptmx.Fd()), true); err != nil {
		logging.Printf("local backend: set nonblock failed: %v", err)
	}

	return &LocalBackend{ptmx: ptmx, cmd: cmd, cols: cols, rows: rows, alive: true}, nil
}

func (b *LocalBackend) FD() int { return int(b.ptmx.Fd()) }

// Poll performs one non-blocking read. A would-block error is not a
// failure; the loop just continues.
func (b *LocalBackend) Poll(buf []byte, fn func([]byte)) (bool, error) {
	n, err := b.ptmx.Read(buf)
	if n > 0 {
		fn(buf[:n])
	}
	if err != nil {
		if err == unix.EAGAIN {
			return n > 0, nil
		}
		return n > 0, err
	}
	return n > 0, nil
}

func (b *LocalBackend) Write(p []byte) (int, error) { return b.ptmx.Write(p) }

func (b *LocalBackend) Resize(cols, rows int) error {
	b.cols, b.rows = cols, rows
	return pty.Setsize(b.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// IsAlive reaps the child non-blockingly, polling the child process
// status without waiting. Once reaped it always reports dead.
func (b *LocalBackend) IsAlive() bool {
	if !b.alive {
		return false
	}
	var ws unix.WaitStatus
	pid, err := unix.Wait4(b.cmd.Process.Pid, &ws, unix.WNOHANG, nil)
	if err != nil || pid == 0 {
		return true
	}
	b.alive = false
	b.exitStatus = ws.ExitStatus()
	return false
}

// ExitStatus returns the reaped child's exit status; only meaningful once
// IsAlive has returned false.
func (b *LocalBackend) ExitStatus() int { return b.exitStatus }

func (b *LocalBackend) Pid() int { return b.cmd.Process.Pid }

func (b *LocalBackend) Close() error {
	if b.alive {
		b.cmd.Process.Signal(syscall.SIGHUP)
	}
	return b.ptmx.Close()
}

// Respawn closes the current PTY and starts a fresh shell at the same
// geometry.
func (b *LocalBackend) Respawn() error {
	b.Close()
	fresh, err := NewLocal(b.cols, b.rows, nil, "", nil)
	if err != nil {
		return err
	}
	b.ptmx = fresh.ptmx
	b.cmd = fresh.cmd
	b.alive = true
	return nil
}
