package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestNewLocalSpawnsProcessAndReportsAlive(t *testing.T) {
	b, err := NewLocal(80, 24, []string{"/bin/cat"}, "", nil)
	assert.NoError(t, err)
	defer b.Close()

	assert.True(t, b.IsAlive())
	assert.Greater(t, b.Pid(), 0)
	assert.Greater(t, b.FD(), 0)
}

func TestLocalBackendWritePollRoundTrips(t *testing.T) {
	b, err := NewLocal(80, 24, []string{"/bin/cat"}, "", nil)
	assert.NoError(t, err)
	defer b.Close()

	_, err = b.Write([]byte("ping\n"))
	assert.NoError(t, err)

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) && len(got) == 0 {
		unix.Poll([]unix.PollFd{{Fd: int32(b.FD()), Events: unix.POLLIN}}, 50)
		_, pollErr := b.Poll(buf, func(p []byte) { got = append(got, p...) })
		if pollErr != nil {
			break
		}
	}
	assert.Contains(t, string(got), "ping")
}

func TestLocalBackendIsAliveFalseAfterProcessExits(t *testing.T) {
	b, err := NewLocal(80, 24, []string{"/bin/sh", "-c", "exit 0"}, "", nil)
	assert.NoError(t, err)
	defer b.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.IsAlive() {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, b.IsAlive())
	assert.Equal(t, 0, b.ExitStatus())
}

func TestLocalBackendResizeUpdatesGeometry(t *testing.T) {
	b, err := NewLocal(80, 24, []string{"/bin/cat"}, "", nil)
	assert.NoError(t, err)
	defer b.Close()

	err = b.Resize(100, 30)
	assert.NoError(t, err)
	assert.Equal(t, 100, b.cols)
	assert.Equal(t, 30, b.rows)
}

func TestLocalBackendRespawnReplacesDeadProcess(t *testing.T) {
	t.Setenv("SHELL", "/bin/sh")
	b, err := NewLocal(80, 24, []string{"/bin/sh", "-c", "exit 0"}, "", nil)
	assert.NoError(t, err)
	defer b.Close()
	oldPid := b.Pid()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.IsAlive() {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, b.IsAlive())

	assert.NoError(t, b.Respawn())
	assert.True(t, b.IsAlive())
	assert.NotEqual(t, oldPid, b.Pid())

	_, err = b.Write([]byte("ping\n"))
	assert.NoError(t, err)
}

func TestCommandFallsBackToShellEnvWhenNoArgsGiven(t *testing.T) {
	t.Setenv("SHELL", "/bin/dash")
	assert.Equal(t, []string{"/bin/dash", "-i"}, command(nil))
}

func TestCommandUsesExplicitArgsWhenGiven(t *testing.T) {
	assert.Equal(t, []string{"/bin/ls", "-l"}, command([]string{"/bin/ls", "-l"}))
}
