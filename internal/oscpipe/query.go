package oscpipe

import "fmt"

// queryState walks the idle -> esc -> csi -> dcs -> dcs_esc state machine,
// buffering CSI/DCS parameter bytes as they arrive and autoresponding on
// the sequence's final byte.
type queryState struct {
	mode   qsMode
	params []byte // parameter+intermediate bytes seen so far (not the CSI/DCS introducer)
}

type qsMode uint8

const (
	qsIdle qsMode = iota
	qsEsc
	qsCSI
	qsDCS
	qsDCSEsc
)

func (p *Pipeline) stepQuery(b byte) {
	s := &p.qs
	switch s.mode {
	case qsIdle:
		if b == 0x1b {
			s.mode = qsEsc
			s.params = s.params[:0]
		}
	case qsEsc:
		switch b {
		case '[':
			s.mode = qsCSI
			s.params = s.params[:0]
		case 'P':
			s.mode = qsDCS
			s.params = s.params[:0]
		default:
			s.mode = qsIdle
		}
	case qsCSI:
		if b >= 0x40 && b <= 0x7e {
			p.finishCSI(b, s.params)
			s.mode = qsIdle
			break
		}
		s.params = append(s.params, b)
		if len(s.params) > 32 {
			s.mode = qsIdle // malformed: bail, never propagated
		}
	case qsDCS:
		if b == 0x1b {
			s.mode = qsDCSEsc
			break
		}
		s.params = append(s.params, b)
		if len(s.params) > 64 {
			s.mode = qsIdle
		}
	case qsDCSEsc:
		if b == '\\' {
			p.finishDCS(s.params)
		}
		s.mode = qsIdle
	}
}

// finishCSI handles a completed CSI sequence whose final byte is fin and
// whose prior bytes (params+intermediates) are params.
func (p *Pipeline) finishCSI(fin byte, params []byte) {
	ps := string(params)
	switch {
	case fin == 'n' && ps == "5":
		p.host.RespondToBackend([]byte("\x1b[0n"))
	case fin == 'n' && ps == "6":
		row, col := p.host.CursorRowCol()
		p.host.RespondToBackend([]byte(fmt.Sprintf("\x1b[%d;%dR", row, col)))
	case fin == 'c' && ps == "":
		p.host.RespondToBackend([]byte("\x1b[?1;2c"))
	case fin == 'c' && ps == ">":
		p.host.RespondToBackend([]byte("\x1b[>0;0;0c"))
	}
}

// finishDCS handles a completed DECRQSS request: \eP$q<final>\e\.
func (p *Pipeline) finishDCS(params []byte) {
	if len(params) < 2 || params[0] != '$' || params[1] != 'q' {
		return
	}
	final := params[2:]
	var reply string
	switch string(final) {
	case "q":
		reply = fmt.Sprintf("%d q", p.host.CursorStyleCode())
	case "m":
		reply = p.host.SGRString() + "m"
	case "r":
		reply = p.host.MarginsString() + "r"
	default:
		// Unknown request: DECRQSS convention replies with an invalid
		// response (0$r...), but an unrecognized request here is just
		// swallowed; malformed input is never propagated.
		return
	}
	p.host.RespondToBackend([]byte("\x1bP1$r" + reply + "\x1b\\"))
}
