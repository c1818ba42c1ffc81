// Package clipboard pushes OSC 52 payloads to the host clipboard,
// fire-and-forget.
package clipboard

import (
	"os"

	"github.com/zyedidia/clipper"

	"github.com/hexewm/hexe/internal/logging"
)

// register is the clipboard selection hexe writes to; clipper's register
// byte addresses primary/clipboard/selection the way X11 does.
const register = '"'

var backend clipper.Clipboard

func init() {
	for _, cb := range clipper.GetClipboards(clipper.Config{}) {
		if cb != nil {
			backend = cb
			break
		}
	}
}

// Available reports whether a clipboard helper is reachable at all,
// gated on WAYLAND_DISPLAY/DISPLAY being set.
func Available() bool {
	if backend == nil {
		return false
	}
	return os.Getenv("WAYLAND_DISPLAY") != "" || os.Getenv("DISPLAY") != ""
}

// Write best-effort copies data to the system clipboard in the background;
// any failure is logged and never surfaced to the pane.
func Write(data []byte) {
	if !Available() {
		return
	}
	payload := string(data)
	go func() {
		if err := backend.WriteAll(register, payload); err != nil {
			logging.Printf("clipboard: write failed: %v", err)
		}
	}()
}
