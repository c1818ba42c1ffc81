package mux

import "github.com/hexewm/hexe/internal/layout"

// Direction is a directional-move request.
type Direction uint8

const (
	Left Direction = iota
	Right
	Up
	Down
)

// Candidate is one pane under consideration for a directional move.
type Candidate struct {
	PaneUUID string
	Rect     layout.Rect
}

func center(r layout.Rect) (x, y float64) {
	return float64(r.X) + float64(r.W)/2, float64(r.Y) + float64(r.H)/2
}

// inDirection reports whether candidate's center lies strictly beyond
// current's center along dir's primary axis.
func inDirection(cur, cand layout.Rect, dir Direction) bool {
	cx, cy := center(cur)
	nx, ny := center(cand)
	switch dir {
	case Left:
		return nx < cx
	case Right:
		return nx > cx
	case Up:
		return ny < cy
	default: // Down
		return ny > cy
	}
}

// primaryGap is the rectangle gap along the primary axis (0 on overlap).
func primaryGap(cur, cand layout.Rect, dir Direction) float64 {
	switch dir {
	case Left:
		return gap(cand.X+cand.W, cur.X)
	case Right:
		return gap(cur.X+cur.W, cand.X)
	case Up:
		return gap(cand.Y+cand.H, cur.Y)
	default:
		return gap(cur.Y+cur.H, cand.Y)
	}
}

func gap(a, b int) float64 {
	d := b - a
	if d < 0 {
		d = 0
	}
	return float64(d)
}

// secondaryGap is the range-gap on the perpendicular axis (0 on overlap).
func secondaryGap(cur, cand layout.Rect, dir Direction) float64 {
	switch dir {
	case Left, Right:
		return rangeGap(cur.Y, cur.Y+cur.H, cand.Y, cand.Y+cand.H)
	default:
		return rangeGap(cur.X, cur.X+cur.W, cand.X, cand.X+cand.W)
	}
}

func rangeGap(aLo, aHi, bLo, bHi int) float64 {
	if aHi <= bLo {
		return float64(bLo - aHi)
	}
	if bHi <= aLo {
		return float64(aLo - bHi)
	}
	return 0
}

// beamContains is the tiebreaker heuristic: does the candidate's
// perpendicular range contain the cursor's column/row.
func beamContains(cand layout.Rect, cursorX, cursorY int, dir Direction) bool {
	switch dir {
	case Left, Right:
		return cursorY >= cand.Y && cursorY < cand.Y+cand.H
	default:
		return cursorX >= cand.X && cursorX < cand.X+cand.W
	}
}

// Next finds the nearest pane in direction dir from cur: a pure function
// of the candidate geometry set, current rect, direction, and cursor
// position; ties on the primary gap break by beam containment, then by
// the secondary gap, then by input order (the earlier candidate wins), so
// results never depend on hidden iteration order beyond the caller's own
// candidate slice order.
func Next(cur layout.Rect, candidates []Candidate, dir Direction, cursorX, cursorY int) (string, bool) {
	var best *scoredCandidate

	for _, c := range candidates {
		if c.Rect == cur {
			continue
		}
		if !inDirection(cur, c.Rect, dir) {
			continue
		}
		s := scoredCandidate{
			uuid:      c.PaneUUID,
			primary:   primaryGap(cur, c.Rect, dir),
			secondary: secondaryGap(cur, c.Rect, dir),
			beam:      beamContains(c.Rect, cursorX, cursorY, dir),
		}
		if best == nil || better(s, *best) {
			cp := s
			best = &cp
		}
	}
	if best == nil {
		return "", false
	}
	return best.uuid, true
}

type scoredCandidate struct {
	uuid      string
	primary   float64
	secondary float64
	beam      bool
}

func better(a, b scoredCandidate) bool {
	if a.primary != b.primary {
		return a.primary < b.primary
	}
	if a.beam != b.beam {
		return a.beam
	}
	return a.secondary < b.secondary
}

// PointToRectDistance is the L1 distance from a point to the nearest
// point on r, a utility for cursor-based variants.
func PointToRectDistance(x, y int, r layout.Rect) int {
	dx := 0
	if x < r.X {
		dx = r.X - x
	} else if x >= r.X+r.W {
		dx = x - (r.X + r.W - 1)
	}
	dy := 0
	if y < r.Y {
		dy = r.Y - y
	} else if y >= r.Y+r.H {
		dy = y - (r.Y + r.H - 1)
	}
	return dx + dy
}
