// Package daemon is the client side of the "ses" daemon contract: a
// control connection carrying line-delimited JSON requests and an
// inbound message stream, plus lifecycle calls that hand back per-pane
// socket paths for the framed binary protocol in internal/backend.
// Modeled on internal/session/client.go's dial/hello pattern and
// internal/session/session.go's lock-file pair, generalized from a
// single PTY-mirroring connection into a persistent control channel
// independent of any one pane, and restructured around a non-blocking
// Poll a single reactor drives instead of a background reader
// goroutine — the daemon socket, when connected, is just one more
// member of the poll set.
package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/blang/semver"
	"golang.org/x/sys/unix"
)

// ProtocolVersion is this binary's control-protocol version, negotiated
// against the daemon's welcome reply.
var ProtocolVersion = semver.MustParse("1.0.0")

// Client is a persistent connection to the daemon's control socket.
type Client struct {
	conn net.Conn
	fd   int
	buf  bytes.Buffer

	connected     bool
	daemonVersion semver.Version

	pending map[string]chan json.RawMessage
	nextID  uint64
}

// Message is one inbound control message, discriminated by Type:
// notify/notification, pane_notification, tab_notification,
// pop_confirm, pop_choose.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	TargetUUID string          `json:"target_uuid,omitempty"`
	Message    string          `json:"message,omitempty"`
	Duration   int             `json:"duration_ms,omitempty"`
	Choices    []string        `json:"choices,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

type request struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Dial connects to the daemon's control socket and performs the
// version handshake: a hello carrying ProtocolVersion, and a welcome
// carrying the daemon's own version. A major-version mismatch is
// refused rather than silently proceeding. The socket is left in
// blocking mode for the handshake, then switched non-blocking for the
// lifetime of the connection.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial: %w", err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("daemon: socket is not a unix conn")
	}

	c := &Client{conn: conn, pending: make(map[string]chan json.RawMessage)}

	if err := c.writeLine(map[string]any{"type": "hello", "version": ProtocolVersion.String()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.readLineBlocking()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: no welcome: %w", err)
	}

	var welcome struct {
		Type    string `json:"type"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(line, &welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: decode welcome: %w", err)
	}
	ver, err := semver.Parse(welcome.Version)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: malformed daemon version %q: %w", welcome.Version, err)
	}
	if ver.Major != ProtocolVersion.Major {
		conn.Close()
		return nil, fmt.Errorf("daemon: incompatible protocol version %s (hexe wants %s.x)", ver, ProtocolVersion)
	}

	file, err := unixConn.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: extract control socket fd: %w", err)
	}
	c.fd = int(file.Fd())
	if err := unix.SetNonblock(c.fd, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon: set nonblock: %w", err)
	}

	c.daemonVersion = ver
	c.connected = true
	return c, nil
}

// FD is the pollable control-socket descriptor.
func (c *Client) FD() int { return c.fd }

func (c *Client) writeLine(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = c.conn.Write(payload)
	return err
}

// readLineBlocking is only used during the initial handshake, before the
// socket is switched non-blocking.
func (c *Client) readLineBlocking() ([]byte, error) {
	buf := make([]byte, 4096)
	for {
		if i := bytes.IndexByte(c.buf.Bytes(), '\n'); i >= 0 {
			line := append([]byte(nil), c.buf.Bytes()[:i]...)
			c.buf.Next(i + 1)
			return line, nil
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.buf.Write(buf[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

// Poll drains whatever is currently available on the control socket,
// dispatches lines matching an outstanding call() to its waiter, and
// delivers everything else to fn. A false return means nothing was read
// because the socket would have blocked.
func (c *Client) Poll(fn func(Message)) (bool, error) {
	tmp := make([]byte, 4096)
	n, err := unix.Read(c.fd, tmp)
	if n <= 0 && err == nil {
		c.connected = false
		return false, nil
	}
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}
	c.buf.Write(tmp[:n])

	consumed := false
	for {
		line, ok := c.nextBufferedLine()
		if !ok {
			break
		}
		consumed = true
		c.dispatchLine(line, fn)
	}
	return consumed, nil
}

func (c *Client) nextBufferedLine() ([]byte, bool) {
	i := bytes.IndexByte(c.buf.Bytes(), '\n')
	if i < 0 {
		return nil, false
	}
	line := append([]byte(nil), c.buf.Bytes()[:i]...)
	c.buf.Next(i + 1)
	return line, true
}

func (c *Client) dispatchLine(line []byte, fn func(Message)) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return
	}
	if probe.ID != "" {
		if ch, ok := c.pending[probe.ID]; ok {
			delete(c.pending, probe.ID)
			ch <- line
			return
		}
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}
	msg.Raw = line
	fn(msg)
}

func (c *Client) IsConnected() bool { return c.connected }

// call sends a request and spin-polls the socket until its matching
// response line arrives or the timeout elapses. Single-threaded, so this
// only blocks the call site (an interactive pane lifecycle action), not
// a concurrent reader; it still drains and forwards any unrelated
// message lines that arrive while waiting.
func (c *Client) call(reqType string, params any, result any, onMessage func(Message)) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}

	c.nextID++
	id := fmt.Sprintf("%d", c.nextID)
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch

	if err := c.writeLine(request{ID: id, Type: reqType, Params: payload}); err != nil {
		delete(c.pending, id)
		return fmt.Errorf("daemon: send %s: %w", reqType, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		select {
		case raw := <-ch:
			var resp response
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("daemon: decode %s response: %w", reqType, err)
			}
			if resp.Error != "" {
				return fmt.Errorf("daemon: %s: %s", reqType, resp.Error)
			}
			if result != nil {
				return json.Unmarshal(resp.Result, result)
			}
			return nil
		default:
		}

		if time.Now().After(deadline) {
			delete(c.pending, id)
			return fmt.Errorf("daemon: %s: timed out", reqType)
		}
		consumed, err := c.Poll(func(m Message) {
			if onMessage != nil {
				onMessage(m)
			}
		})
		if err != nil {
			delete(c.pending, id)
			return fmt.Errorf("daemon: %s: %w", reqType, err)
		}
		if !consumed {
			time.Sleep(2 * time.Millisecond)
		}
	}
}

// DetachSession hands the daemon the serialized mux state so panes can
// outlive this process.
func (c *Client) DetachSession(uuid string, serializedState json.RawMessage) error {
	return c.call("detach_session", map[string]any{"uuid": uuid, "state": serializedState}, nil, nil)
}

// GetSessionState fetches back the state payload a prior DetachSession
// call stored for uuid, for the reattach path to deserialize and rebuild
// tabs/panes/floats from.
func (c *Client) GetSessionState(uuid string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call("get_session_state", map[string]any{"uuid": uuid}, &out, nil)
	return out, err
}

// PaneHandle is what CreatePane/AdoptPane hand back: where to dial for
// the pane's framed binary data stream.
type PaneHandle struct {
	SocketPath string `json:"socket_path"`
	UUID       string `json:"uuid"`
}

func (c *Client) CreatePane(command []string, cwd string, envs map[string]string) (PaneHandle, error) {
	var out PaneHandle
	err := c.call("create_pane", map[string]any{"command": command, "cwd": cwd, "envs": envs}, &out, nil)
	return out, err
}

// OrphanPane tells the daemon to keep a pane's process alive after this
// mux process stops tracking it.
func (c *Client) OrphanPane(uuid string) error {
	return c.call("orphan_pane", map[string]any{"uuid": uuid}, nil, nil)
}

func (c *Client) AdoptPane(orphanUUID string) (PaneHandle, error) {
	var out PaneHandle
	err := c.call("adopt_pane", map[string]any{"orphan_uuid": orphanUUID}, &out, nil)
	return out, err
}

func (c *Client) KillPane(uuid string) error {
	return c.call("kill_pane", map[string]any{"uuid": uuid}, nil, nil)
}

// OrphanedPane is one entry from ListOrphanedPanes.
type OrphanedPane struct {
	UUID        string `json:"uuid"`
	CreatedFrom string `json:"created_from,omitempty"`
	FocusedFrom string `json:"focused_from,omitempty"`
}

func (c *Client) ListOrphanedPanes() ([]OrphanedPane, error) {
	var out []OrphanedPane
	err := c.call("list_orphaned_panes", map[string]any{}, &out, nil)
	return out, err
}

// PaneAux is free-form provenance the daemon tracks per pane, e.g. which
// tab/float created or last focused it, surfaced across
// detach/reattach.
type PaneAux struct {
	CreatedFrom string `json:"created_from,omitempty"`
	FocusedFrom string `json:"focused_from,omitempty"`
}

func (c *Client) GetPaneAux(uuid string) (PaneAux, error) {
	var out PaneAux
	err := c.call("get_pane_aux", map[string]any{"uuid": uuid}, &out, nil)
	return out, err
}

func (c *Client) UpdatePaneAux(uuid string, aux PaneAux) error {
	params := map[string]any{"uuid": uuid}
	if aux.CreatedFrom != "" {
		params["created_from"] = aux.CreatedFrom
	}
	if aux.FocusedFrom != "" {
		params["focused_from"] = aux.FocusedFrom
	}
	return c.call("update_pane_aux", params, nil, nil)
}

// SendPopResponse answers a pop_confirm/pop_choose message: exactly one
// of confirmed/selected/cancelled should be set.
func (c *Client) SendPopResponse(confirmed *bool, selected *int, cancelled bool) error {
	payload := map[string]any{"type": "pop_response"}
	switch {
	case confirmed != nil:
		payload["confirmed"] = *confirmed
	case selected != nil:
		payload["selected"] = *selected
	case cancelled:
		payload["cancelled"] = true
	}
	return c.writeLine(payload)
}

func (c *Client) Close() error {
	c.connected = false
	return c.conn.Close()
}

// AcquireSessionLock takes an exclusive, non-blocking flock on
// socketPath+".lock" so two hexe processes can't race to start the same
// daemon session. Modeled on internal/session/session.go's
// AcquireSessionLock.
func AcquireSessionLock(socketPath string) (*os.File, error) {
	lockPath := socketPath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("daemon: open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: session already locked: %w", err)
	}
	return f, nil
}

// ReleaseSessionLock releases and removes the lock file taken by
// AcquireSessionLock.
func ReleaseSessionLock(f *os.File) error {
	if f == nil {
		return nil
	}
	lockPath := f.Name()
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	return os.Remove(lockPath)
}
