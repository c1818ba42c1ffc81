package backend

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame types for the per-pane daemon protocol: a 1-byte type, a 4-byte
// big-endian length, then the payload. Generalized from
// internal/session/protocol.go's single-purpose FrameData/FrameResize
// pair into four distinct frame types.
const (
	FrameOutput     byte = 1 // bytes from the pane, daemon -> hexe
	FrameInput      byte = 2 // bytes to the pane, hexe -> daemon
	FrameResize     byte = 3 // payload: 2x big-endian u16, cols then rows
	FrameBacklogEnd byte = 4 // no payload; marks scrollback replay done
)

// MaxFrameLen is the maximum payload length: 16 MiB.
const MaxFrameLen = 16 * 1024 * 1024

// Frame is one decoded protocol message.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes one frame as a single syscall where possible.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("backend: frame payload too large: %d > %d", len(payload), MaxFrameLen)
	}
	buf := make([]byte, 5+len(payload))
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

// EncodeResize builds a FrameResize payload: cols then rows, each a
// big-endian u16.
func EncodeResize(cols, rows int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(cols))
	binary.BigEndian.PutUint16(buf[2:4], uint16(rows))
	return buf
}

func DecodeResize(payload []byte) (cols, rows int, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("backend: malformed resize payload: %d bytes", len(payload))
	}
	return int(binary.BigEndian.Uint16(payload[0:2])), int(binary.BigEndian.Uint16(payload[2:4])), nil
}

// FrameReader incrementally decodes frames out of a non-blocking byte
// stream, since a single Poll call may see a partial frame.
type FrameReader struct {
	buf []byte
}

// Feed appends newly read bytes and returns every complete frame now
// available, leaving any partial trailing frame buffered for next time.
func (r *FrameReader) Feed(p []byte) ([]Frame, error) {
	r.buf = append(r.buf, p...)

	var frames []Frame
	for {
		if len(r.buf) < 5 {
			break
		}
		length := binary.BigEndian.Uint32(r.buf[1:5])
		if length > MaxFrameLen {
			return frames, fmt.Errorf("backend: frame payload too large: %d", length)
		}
		total := 5 + int(length)
		if len(r.buf) < total {
			break
		}
		frames = append(frames, Frame{Type: r.buf[0], Payload: append([]byte(nil), r.buf[5:total]...)})
		r.buf = r.buf[total:]
	}
	return frames, nil
}
