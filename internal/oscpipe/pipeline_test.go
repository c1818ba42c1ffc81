package oscpipe

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHost struct {
	responses       [][]byte
	passthrough     [][]byte
	expectedOuter   int
	clipboardWrites [][]byte
	row, col        int
}

func (f *fakeHost) CursorRowCol() (int, int)  { return f.row, f.col }
func (f *fakeHost) CursorStyleCode() int      { return 2 }
func (f *fakeHost) SGRString() string         { return "0" }
func (f *fakeHost) MarginsString() string     { return "1;24" }
func (f *fakeHost) RespondToBackend(p []byte) { f.responses = append(f.responses, append([]byte(nil), p...)) }
func (f *fakeHost) PassthroughToOuter(p []byte) {
	f.passthrough = append(f.passthrough, append([]byte(nil), p...))
}
func (f *fakeHost) ExpectOuterResponse()  { f.expectedOuter++ }
func (f *fakeHost) ClipboardSet(d []byte) { f.clipboardWrites = append(f.clipboardWrites, append([]byte(nil), d...)) }

func TestCursorPositionReportAutoresponds(t *testing.T) {
	h := &fakeHost{row: 3, col: 7}
	p := New(h)
	p.Process([]byte("\x1b[6n"))
	assert.Len(t, h.responses, 1)
	assert.Equal(t, "\x1b[3;7R", string(h.responses[0]))
}

func TestDeviceStatusReportAutoresponds(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b[5n"))
	assert.Equal(t, "\x1b[0n", string(h.responses[0]))
}

func TestDECRQSSCursorStyleAutoresponds(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1bP$qq\x1b\\"))
	assert.Len(t, h.responses, 1)
	assert.Equal(t, "\x1bP1$r2 q\x1b\\", string(h.responses[0]))
}

func TestOSCPassthroughCodeForwardsToOuter(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b]0;window title\x07"))
	assert.Len(t, h.passthrough, 1)
	assert.Equal(t, "\x1b]0;window title\x07", string(h.passthrough[0]))
}

func TestOSCColorQuerySynthesizedLocally(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b]10;?\x07"))
	assert.Len(t, h.responses, 1)
	assert.Contains(t, string(h.responses[0]), "10;rgb:")
	assert.Empty(t, h.passthrough) // color queries are synthesized, not passed through
}

func TestOSC52SetPushesDecodedPayloadToClipboard(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	payload := base64.StdEncoding.EncodeToString([]byte("hello clipboard"))
	p.Process([]byte("\x1b]52;c;" + payload + "\x07"))
	assert.Len(t, h.clipboardWrites, 1)
	assert.Equal(t, "hello clipboard", string(h.clipboardWrites[0]))
}

func TestOSC52GetRequestIsNotServicedLocally(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b]52;c;?\x07"))
	assert.Empty(t, h.clipboardWrites)
}

func TestOSCOverflowDropsSequenceWithoutPassthrough(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b]0;"))
	p.Process([]byte(strings.Repeat("x", oscMaxLen+10)))
	p.Process([]byte("\x07"))
	assert.Empty(t, h.passthrough)
}

func TestClearScreenDetectedWithinOneChunk(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("hello\x1b[2Jworld"))
	assert.True(t, p.DidClear)
}

func TestClearScreenDetectedAcrossReadBoundary(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("hello\x1b[2"))
	assert.False(t, p.DidClear)
	p.Process([]byte("Jworld"))
	assert.True(t, p.DidClear)
}

func TestDidClearResetsEachProcessCall(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("\x1b[2J"))
	assert.True(t, p.DidClear)
	p.Process([]byte("no clear here"))
	assert.False(t, p.DidClear)
}

func TestCaptureOutputAccumulatesAndResets(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.CaptureOutput = true
	p.Process([]byte("first"))
	p.Process([]byte("second"))
	assert.Equal(t, "firstsecond", string(p.CapturedOutput()))

	p.ResetCapture()
	assert.Empty(t, p.CapturedOutput())
}

func TestResetClearsTransientState(t *testing.T) {
	h := &fakeHost{}
	p := New(h)
	p.Process([]byte("hello\x1b[2"))
	p.Reset()
	p.Process([]byte("Jworld"))
	assert.False(t, p.DidClear) // stashed tail was cleared by Reset, so the straddle no longer reassembles
}
