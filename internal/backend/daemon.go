package backend

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hexewm/hexe/internal/logging"
)

// DaemonBackend is a pane whose PTY lives in the "ses" daemon process
// rather than under hexe itself; bytes cross a Unix-domain socket framed
// by FrameOutput/FrameInput/FrameResize/FrameBacklogEnd. Modeled on
// internal/session/client.go's dial/hello handshake, restructured from
// its goroutine-pair (stdinLoop/serverLoop) into a single non-blocking
// Poll the reactor drives directly.
type DaemonBackend struct {
	conn net.Conn
	fd   int

	paneUUID string
	reader   FrameReader

	// connAlive tracks only this socket's EOF state, for diagnostics; it
	// does not gate IsAlive, which always reports true for a daemon pane.
	connAlive   bool
	backlogDone bool
	cols, rows  int
}

// DialDaemon connects to the daemon's per-pane socket and performs the
// frame handshake for an existing pane identified by paneUUID.
func DialDaemon(socketPath, paneUUID string, cols, rows int) (*DaemonBackend, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("backend: dial daemon: %w", err)
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("backend: daemon socket is not a unix conn")
	}
	file, err := unixConn.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("backend: extract daemon socket fd: %w", err)
	}
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		logging.Printf("daemon backend: set nonblock failed: %v", err)
	}

	if err := WriteFrame(conn, FrameResize, EncodeResize(cols, rows)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("backend: send initial resize: %w", err)
	}

	return &DaemonBackend{
		conn:      conn,
		fd:        fd,
		paneUUID:  paneUUID,
		connAlive: true,
		cols:      cols,
		rows:      rows,
	}, nil
}

func (b *DaemonBackend) FD() int { return b.fd }

// Poll decodes as many complete frames as are currently buffered. Output
// frames are delivered to fn; a FrameBacklogEnd flips backlogDone so the
// caller knows scrollback replay has finished. An EOF here marks the
// connection (not the pane) dead — IsAlive always reports true regardless,
// since the daemon owns process lifecycle, not this socket.
func (b *DaemonBackend) Poll(buf []byte, fn func([]byte)) (bool, error) {
	n, err := unix.Read(b.fd, buf)
	if n <= 0 && err == nil {
		b.connAlive = false
		return false, nil
	}
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}

	frames, decErr := b.reader.Feed(buf[:n])
	consumed := false
	for _, f := range frames {
		switch f.Type {
		case FrameOutput:
			if len(f.Payload) > 0 {
				fn(f.Payload)
				consumed = true
			}
		case FrameBacklogEnd:
			b.backlogDone = true
		}
	}
	if decErr != nil {
		return consumed, decErr
	}
	return consumed, nil
}

func (b *DaemonBackend) Write(p []byte) (int, error) {
	if err := WriteFrame(b.conn, FrameInput, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *DaemonBackend) Resize(cols, rows int) error {
	b.cols, b.rows = cols, rows
	return WriteFrame(b.conn, FrameResize, EncodeResize(cols, rows))
}

// IsAlive always reports true: the daemon owns the hosted process's
// lifecycle, so a momentary EOF on this socket is not a pane death, only
// a connection the caller should redial or replace.
func (b *DaemonBackend) IsAlive() bool { return true }

// BacklogReplayed reports whether the daemon has finished replaying
// scrollback since this connection was established.
func (b *DaemonBackend) BacklogReplayed() bool { return b.backlogDone }

func (b *DaemonBackend) Close() error {
	b.connAlive = false
	return b.conn.Close()
}
