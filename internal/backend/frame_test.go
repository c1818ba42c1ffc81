package backend

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteFrameThenDecodeRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteFrame(&buf, FrameOutput, []byte("hello")))

	var r FrameReader
	frames, err := r.Feed(buf.Bytes())
	assert.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, FrameOutput, frames[0].Type)
	assert.Equal(t, "hello", string(frames[0].Payload))
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, FrameOutput, make([]byte, MaxFrameLen+1))
	assert.Error(t, err)
}

func TestFrameReaderBuffersPartialFrameAcrossFeedCalls(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteFrame(&buf, FrameInput, []byte("keystroke")))
	full := buf.Bytes()

	var r FrameReader
	frames, err := r.Feed(full[:3])
	assert.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = r.Feed(full[3:])
	assert.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, "keystroke", string(frames[0].Payload))
}

func TestFrameReaderDecodesMultipleFramesInOneFeed(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteFrame(&buf, FrameOutput, []byte("a")))
	assert.NoError(t, WriteFrame(&buf, FrameOutput, []byte("bb")))
	assert.NoError(t, WriteFrame(&buf, FrameBacklogEnd, nil))

	var r FrameReader
	frames, err := r.Feed(buf.Bytes())
	assert.NoError(t, err)
	assert.Len(t, frames, 3)
	assert.Equal(t, "a", string(frames[0].Payload))
	assert.Equal(t, "bb", string(frames[1].Payload))
	assert.Equal(t, FrameBacklogEnd, frames[2].Type)
	assert.Empty(t, frames[2].Payload)
}

func TestFrameReaderRejectsOversizeLengthPrefix(t *testing.T) {
	var r FrameReader
	hdr := []byte{FrameOutput, 0xFF, 0xFF, 0xFF, 0xFF} // length way over MaxFrameLen
	_, err := r.Feed(hdr)
	assert.Error(t, err)
}

func TestEncodeDecodeResizeRoundTrips(t *testing.T) {
	payload := EncodeResize(120, 40)
	cols, rows, err := DecodeResize(payload)
	assert.NoError(t, err)
	assert.Equal(t, 120, cols)
	assert.Equal(t, 40, rows)
}

func TestDecodeResizeRejectsMalformedPayload(t *testing.T) {
	_, _, err := DecodeResize([]byte{1, 2, 3})
	assert.Error(t, err)
}
