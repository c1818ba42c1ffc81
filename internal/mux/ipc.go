package mux

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hexewm/hexe/internal/logging"
)

// IPCServer is the local Unix-domain socket: single-shot JSON line
// requests, with the connection held open for the duration of a `wait`
// float request. Built directly on a non-blocking raw socket (like
// internal/backend's daemon dial) rather than net.Listener, so its fd
// joins the single poll(2) set the reactor already builds instead of
// parking a goroutine in the runtime's own netpoller.
type IPCServer struct {
	fd   int
	path string
}

// ListenIPC creates the IPC socket at path, removing any stale socket
// file left by a crashed prior instance.
func ListenIPC(path string) (*IPCServer, error) {
	os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		logging.Printf("ipc: set nonblock failed: %v", err)
	}
	return &IPCServer{fd: fd, path: path}, nil
}

func (s *IPCServer) FD() int { return s.fd }

func (s *IPCServer) Close() error {
	unix.Close(s.fd)
	os.Remove(s.path)
	return nil
}

// IPCRequest is the decoded shape of any line the IPC socket accepts:
// `notify` or `float`.
type IPCRequest struct {
	Type       string   `json:"type"`
	Message    string   `json:"message,omitempty"`
	DurationMs int      `json:"duration_ms,omitempty"`
	Command    string   `json:"command,omitempty"`
	Cwd        string   `json:"cwd,omitempty"`
	Env        []string `json:"env,omitempty"`
	ExtraEnv   []string `json:"extra_env,omitempty"`
	EnvFile    string   `json:"env_file,omitempty"`
	Wait       bool     `json:"wait,omitempty"`
	ResultFile string   `json:"result_file,omitempty"`
}

// AcceptOne accepts a single pending connection and decodes its one
// request line. Returns ok=false if no connection was pending. The
// accepted connection is left in blocking mode with a short read
// deadline for the request line: requests are one small local-socket
// line, so a bounded blocking read here is simpler than folding
// partial-line reassembly into the reactor's own poll set.
func (s *IPCServer) AcceptOne() (conn *net.UnixConn, req IPCRequest, ok bool, err error) {
	nfd, _, acceptErr := unix.Accept(s.fd)
	if acceptErr != nil {
		if acceptErr == unix.EAGAIN {
			return nil, IPCRequest{}, false, nil
		}
		return nil, IPCRequest{}, false, acceptErr
	}

	file := os.NewFile(uintptr(nfd), "hexe-ipc-conn")
	fc, err := net.FileConn(file)
	file.Close()
	if err != nil {
		unix.Close(nfd)
		return nil, IPCRequest{}, false, err
	}
	c := fc.(*net.UnixConn)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReaderSize(c, 64*1024)
	line, readErr := reader.ReadBytes('\n')
	if readErr != nil && len(line) == 0 {
		writeIPCError(c, "empty request")
		c.Close()
		return nil, IPCRequest{}, false, nil
	}
	c.SetReadDeadline(time.Time{})

	var r IPCRequest
	if err := json.Unmarshal(bytes.TrimSpace(line), &r); err != nil {
		writeIPCError(c, "malformed JSON: "+err.Error())
		c.Close()
		return nil, IPCRequest{}, false, nil
	}
	return c, r, true, nil
}

func writeIPCError(w net.Conn, reason string) {
	payload, _ := json.Marshal(map[string]string{"type": "error", "message": reason})
	payload = append(payload, '\n')
	w.Write(payload)
}

// writeIPCLine writes one JSON line and is used for both the immediate
// float_created reply and the terminal float_result reply.
func writeIPCLine(w net.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

// FloatCreatedReply is sent immediately for a non-waiting `float` request.
type FloatCreatedReply struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
}

// FloatResultReply is sent exactly once, after the float dies, for a
// waiting `float` request.
type FloatResultReply struct {
	Type     string `json:"type"`
	UUID     string `json:"uuid"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
}

// readEnvFile reads newline-separated KEY=VAL lines and unlinks the file.
func readEnvFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	os.Remove(path)

	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// trimResultFile reads a float's result file, trims trailing whitespace,
// and deletes it; the caller JSON-encodes the returned string.
func trimResultFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	os.Remove(path)
	trimmed := bytes.TrimRight(data, " \n\r\t")
	return string(trimmed), nil
}

// AdhocRequest is the pending-state for one in-flight wait=true `float`
// IPC request: it borrows the connection fd and is responsible for
// closing it on completion.
type AdhocRequest struct {
	Conn       *net.UnixConn
	ResultFile string
	createdResultFile bool
}

func resultFilePath(explicit string) (path string, created bool) {
	if explicit != "" {
		return explicit, false
	}
	f, err := os.CreateTemp("", "hexe-float-result-*")
	if err != nil {
		return "", false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return name, true
}

