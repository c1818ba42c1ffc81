package oscpipe

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
)

type oscState uint8

const (
	oscIdle oscState = iota
	oscEsc           // just saw ESC outside of an open OSC
	oscOpen          // accumulating an OSC payload
	oscOpenEsc       // saw ESC while accumulating (might be the ST terminator)
)

// passthroughCodes are OSC codes emitted verbatim to the outer terminal:
// window/icon title, the OSC 7 working-directory report, clipboard, and
// the color-set/reset family.
func passthroughCode(code int) bool {
	switch {
	case code >= 0 && code <= 2:
		return true
	case code == 7:
		return true
	case code == 52:
		return true
	case code == 4 || code == 104:
		return true
	case code >= 10 && code <= 19:
		return true
	case code >= 110 && code <= 119:
		return true
	}
	return false
}

// colorQueryCode reports whether code is one of the color-related codes
// whose queries are synthesized locally rather than passed through.
func colorQueryCode(code int) bool {
	return (code >= 10 && code <= 19) || (code >= 110 && code <= 119)
}

func (p *Pipeline) stepOSC(b byte) {
	switch p.osc {
	case oscIdle:
		if b == 0x1b {
			p.osc = oscEsc
		}
	case oscEsc:
		if b == ']' {
			p.osc = oscOpen
			p.oscBuf.Reset()
		} else {
			p.osc = oscIdle
		}
	case oscOpen:
		switch b {
		case 0x07: // BEL terminator
			p.finishOSC()
			p.osc = oscIdle
		case 0x1b:
			p.osc = oscOpenEsc
		default:
			if p.oscBuf.Len() >= oscMaxLen {
				// Overflow drops the sequence without emitting partial output.
				p.oscBuf.Reset()
				p.osc = oscIdle
				return
			}
			p.oscBuf.WriteByte(b)
		}
	case oscOpenEsc:
		if b == '\\' {
			p.finishOSC()
		}
		p.osc = oscIdle
	}
}

// finishOSC handles one complete OSC payload.
func (p *Pipeline) finishOSC() {
	payload := p.oscBuf.Bytes()
	p.oscBuf.Reset()

	semi := bytes.IndexByte(payload, ';')
	codeStr := string(payload)
	rest := ""
	if semi >= 0 {
		codeStr = string(payload[:semi])
		rest = string(payload[semi+1:])
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return
	}

	isQuery := strings.Contains(rest, ";?") || rest == "?"

	if colorQueryCode(code) && isQuery {
		reply := synthesizeColorReply(code)
		p.host.RespondToBackend([]byte("\x1b]" + reply + "\x07"))
		return
	}

	if code == 52 && semi >= 0 {
		p.handleOSC52(rest)
	}

	if passthroughCode(code) {
		full := append([]byte("\x1b]"), payload...)
		full = append(full, 0x07)
		p.host.PassthroughToOuter(full)
		if isQuery {
			p.host.ExpectOuterResponse()
		}
	}
}

// synthesizeColorReply returns the OSC payload body (without introducer or
// terminator) for a hardcoded fg/bg/cursor color reply. These are
// placeholders pending a real theme source.
func synthesizeColorReply(code int) string {
	// 10: default fg -> white, 11: default bg -> black, 12: cursor -> white.
	switch code {
	case 11:
		return "11;rgb:0000/0000/0000"
	default:
		return strconv.Itoa(code) + ";rgb:ffff/ffff/ffff"
	}
}

// handleOSC52 decodes an OSC 52 "set" payload (Pc;Pd where Pd is base64)
// and best-effort pushes it to the system clipboard.
func (p *Pipeline) handleOSC52(rest string) {
	semi := strings.IndexByte(rest, ';')
	if semi < 0 {
		return
	}
	data := rest[semi+1:]
	if data == "?" {
		return // get-clipboard requests aren't serviced locally
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return
	}
	p.host.ClipboardSet(decoded)
}

// detectClear scans data for any complete clear-screen sequence, plus the
// boundary between the stashed tail and data for one split across a read.
// It never rescans a sequence that landed wholly inside the stashed tail,
// since that one already set DidClear on the call that consumed it.
func (p *Pipeline) detectClear(data []byte) {
	if containsClearSequence(data) {
		p.DidClear = true
		return
	}
	if p.tailLen == 0 {
		return
	}
	straddleLen := maxClearSeqLen - 1
	if straddleLen > len(data) {
		straddleLen = len(data)
	}
	window := append(append([]byte(nil), p.tail[:p.tailLen]...), data[:straddleLen]...)
	if clearSequenceStraddles(window, p.tailLen) {
		p.DidClear = true
	}
}

var clearSequences = [][]byte{
	{0x0c},                   // form feed
	[]byte("\x1b[2J"),
	[]byte("\x1b[3J"),
	[]byte("\x1b[J"),
	[]byte("\x1b[0J"),
	[]byte("\x1b[H\x1b[2J"),
	[]byte("\x1b[H\x1b[J"),
}

// maxClearSeqLen is the longest entry in clearSequences.
var maxClearSeqLen = func() int {
	n := 0
	for _, seq := range clearSequences {
		if len(seq) > n {
			n = len(seq)
		}
	}
	return n
}()

func containsClearSequence(b []byte) bool {
	for _, seq := range clearSequences {
		if bytes.Contains(b, seq) {
			return true
		}
	}
	return false
}

// clearSequenceStraddles reports whether window contains a clear sequence
// occurrence that actually crosses the boundary index — starts before it
// and ends after it — rather than lying wholly on one side.
func clearSequenceStraddles(window []byte, boundary int) bool {
	for _, seq := range clearSequences {
		for idx := 0; ; {
			rel := bytes.Index(window[idx:], seq)
			if rel < 0 {
				break
			}
			start := idx + rel
			end := start + len(seq)
			if start < boundary && end > boundary {
				return true
			}
			idx = start + 1
			if idx >= len(window) {
				break
			}
		}
	}
	return false
}
