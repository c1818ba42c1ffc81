package mux

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListenIPCThenAcceptOneDecodesRequest(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv, err := ListenIPC(sockPath)
	assert.NoError(t, err)
	defer srv.Close()

	client, err := net.Dial("unix", sockPath)
	assert.NoError(t, err)
	defer client.Close()

	payload, _ := json.Marshal(IPCRequest{Type: "notify", Message: "hi", DurationMs: 100})
	client.Write(append(payload, '\n'))

	var conn *net.UnixConn
	var req IPCRequest
	var ok bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !ok {
		conn, req, ok, err = srv.AcceptOne()
		assert.NoError(t, err)
		if !ok {
			time.Sleep(5 * time.Millisecond)
		}
	}
	assert.True(t, ok)
	assert.Equal(t, "notify", req.Type)
	assert.Equal(t, "hi", req.Message)
	conn.Close()
}

func TestAcceptOneReturnsNotOKWhenNothingPending(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv, err := ListenIPC(sockPath)
	assert.NoError(t, err)
	defer srv.Close()

	_, _, ok, err := srv.AcceptOne()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAcceptOneWritesErrorOnMalformedJSON(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv, err := ListenIPC(sockPath)
	assert.NoError(t, err)
	defer srv.Close()

	client, err := net.Dial("unix", sockPath)
	assert.NoError(t, err)
	defer client.Close()
	client.Write([]byte("not json\n"))

	deadline := time.Now().Add(time.Second)
	var ok bool
	for time.Now().Before(deadline) && !ok {
		_, _, ok, err = srv.AcceptOne()
		assert.NoError(t, err)
		if !ok {
			time.Sleep(5 * time.Millisecond)
		}
	}
	assert.False(t, ok) // malformed request is rejected, not surfaced as a request

	reader := bufio.NewReader(client)
	line, readErr := reader.ReadString('\n')
	assert.NoError(t, readErr)
	var resp map[string]string
	assert.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, "error", resp["type"])
}

func TestReadEnvFileParsesAndUnlinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.txt")
	assert.NoError(t, os.WriteFile(path, []byte("FOO=bar\nBAZ=qux\n\n"), 0644))

	lines, err := readEnvFile(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"FOO=bar", "BAZ=qux"}, lines)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadEnvFileEmptyPathIsNoOp(t *testing.T) {
	lines, err := readEnvFile("")
	assert.NoError(t, err)
	assert.Nil(t, lines)
}

func TestTrimResultFileTrimsTrailingWhitespaceAndUnlinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")
	assert.NoError(t, os.WriteFile(path, []byte("output here\n\n  \t"), 0644))

	trimmed, err := trimResultFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "output here", trimmed)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestResultFilePathUsesExplicitWhenGiven(t *testing.T) {
	path, created := resultFilePath("/tmp/explicit-result")
	assert.Equal(t, "/tmp/explicit-result", path)
	assert.False(t, created)
}

func TestResultFilePathGeneratesTempNameWhenEmpty(t *testing.T) {
	path, created := resultFilePath("")
	assert.NotEmpty(t, path)
	assert.True(t, created)
	_, statErr := os.Stat(path) // resultFilePath removes its probe file before returning
	assert.True(t, os.IsNotExist(statErr))
}
