package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexewm/hexe/internal/layout"
)

func TestNextPicksNearestInDirection(t *testing.T) {
	cur := layout.Rect{X: 0, Y: 0, W: 40, H: 24}
	near := layout.Rect{X: 40, Y: 0, W: 40, H: 24}
	far := layout.Rect{X: 80, Y: 0, W: 40, H: 24}

	uuid, ok := Next(cur, []Candidate{
		{PaneUUID: "near", Rect: near},
		{PaneUUID: "far", Rect: far},
	}, Right, 20, 12)

	assert.True(t, ok)
	assert.Equal(t, "near", uuid)
}

func TestNextIgnoresWrongDirection(t *testing.T) {
	cur := layout.Rect{X: 40, Y: 0, W: 40, H: 24}
	left := layout.Rect{X: 0, Y: 0, W: 40, H: 24}

	_, ok := Next(cur, []Candidate{{PaneUUID: "left", Rect: left}}, Right, 60, 12)
	assert.False(t, ok)
}

func TestNextIsDeterministicAcrossCandidateOrder(t *testing.T) {
	cur := layout.Rect{X: 0, Y: 0, W: 20, H: 24}
	a := layout.Rect{X: 20, Y: 0, W: 20, H: 12}
	b := layout.Rect{X: 20, Y: 12, W: 20, H: 12}

	uuid1, _ := Next(cur, []Candidate{{PaneUUID: "a", Rect: a}, {PaneUUID: "b", Rect: b}}, Right, 10, 5)
	uuid2, _ := Next(cur, []Candidate{{PaneUUID: "b", Rect: b}, {PaneUUID: "a", Rect: a}}, Right, 10, 5)

	assert.Equal(t, uuid1, uuid2)
}

func TestNextBeamTiebreakPrefersCursorRow(t *testing.T) {
	cur := layout.Rect{X: 0, Y: 0, W: 20, H: 24}
	top := layout.Rect{X: 20, Y: 0, W: 20, H: 12}
	bottom := layout.Rect{X: 20, Y: 12, W: 20, H: 12}

	uuid, ok := Next(cur, []Candidate{
		{PaneUUID: "top", Rect: top},
		{PaneUUID: "bottom", Rect: bottom},
	}, Right, 10, 18) // cursor row 18 falls inside "bottom"

	assert.True(t, ok)
	assert.Equal(t, "bottom", uuid)
}

func TestPointToRectDistance(t *testing.T) {
	r := layout.Rect{X: 10, Y: 10, W: 5, H: 5}
	assert.Equal(t, 0, PointToRectDistance(12, 12, r))
	assert.Equal(t, 5, PointToRectDistance(10, 5, r))
}
