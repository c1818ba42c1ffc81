// Package backend implements the two pane backend variants: a local
// PTY-owning backend and a daemon-client backend that speaks the framed
// binary protocol over a Unix socket. Both satisfy the same Backend
// interface so a Pane never branches on which one it has beyond a
// single call-site switch.
package backend

// Backend is the IO source for one pane.
type Backend interface {
	// FD returns the pollable file descriptor backing this backend.
	FD() int
	// Poll reads available bytes into buf and runs them through fn if any
	// were read; it returns true iff data was consumed this call.
	Poll(buf []byte, fn func([]byte)) (bool, error)
	// Write sends bytes to the backend (keystrokes, resize-triggered
	// redraw nudges, query autoresponses).
	Write(p []byte) (int, error)
	// Resize notifies the backend of a new pane geometry.
	Resize(cols, rows int) error
	// IsAlive reports whether the backend's process is still running.
	IsAlive() bool
	// Close releases the backend's resources.
	Close() error
}

// Local is implemented by backends that additionally own a real PTY and
// child process, for the respawn-on-exit and disown flows.
type Local interface {
	Backend
	// Respawn closes the current PTY and spawns a fresh shell at the same
	// geometry.
	Respawn() error
	Pid() int
}
