// Package logging provides the single file-backed logger used across hexe.
//
// stdout is owned by the renderer once the alternate screen is active, so
// nothing in the mux core may log there; everything goes to an append-only
// log file under the config directory instead.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

var global *log.Logger

// Init opens (or creates) the log file at dir/hexe.log and installs it as
// the package-wide logger. Callers that fail to open the file still get a
// working logger writing to io.Discard so log calls never panic.
func Init(dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		global = log.New(io.Discard, "hexe: ", log.LstdFlags)
		return io.NopCloser(nil), err
	}

	path := filepath.Join(dir, "hexe.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		global = log.New(io.Discard, "hexe: ", log.LstdFlags)
		return io.NopCloser(nil), err
	}

	global = log.New(f, "hexe: ", log.LstdFlags|log.Lmicroseconds)
	return f, nil
}

// L returns the global logger, creating a discard logger on first use if
// Init was never called (unit tests, for instance).
func L() *log.Logger {
	if global == nil {
		global = log.New(io.Discard, "hexe: ", log.LstdFlags)
	}
	return global
}

func Printf(format string, args ...any) { L().Printf(format, args...) }
func Println(args ...any)               { L().Println(args...) }
