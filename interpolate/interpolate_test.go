package interpolate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcwelder/geometry"
)

func TestInterpolateSemiCircleStaysWithinResolution(t *testing.T) {
	circle := geometry.Circle{CX: 0, CY: 0, R: 10}
	start := geometry.Point{X: 10, Y: 0}
	end := geometry.Point{X: -10, Y: 0, ERelative: 2, E: 2}
	arc := geometry.Arc{
		Circle:             circle,
		Start:              start,
		End:                end,
		SignedAngleRadians: math.Pi,
		Length:             math.Pi * 10,
	}

	pts := Interpolate(arc, 0.01)
	require.GreaterOrEqual(t, len(pts), 2)
	assert.InDelta(t, start.X, pts[0].X, 1e-9)
	assert.InDelta(t, end.X, pts[len(pts)-1].X, 1e-9)

	for _, p := range pts {
		dist := math.Hypot(p.X-circle.CX, p.Y-circle.CY)
		assert.InDelta(t, circle.R, dist, 1e-9, "interpolated point must lie exactly on the circle")
	}
}

func TestInterpolateFinerResolutionProducesMorePoints(t *testing.T) {
	circle := geometry.Circle{CX: 0, CY: 0, R: 50}
	start := geometry.Point{X: 50, Y: 0}
	end := geometry.Point{X: 0, Y: 50}
	arc := geometry.Arc{Circle: circle, Start: start, End: end, SignedAngleRadians: math.Pi / 2, Length: math.Pi * 25}

	coarse := Interpolate(arc, 1.0)
	fine := Interpolate(arc, 0.01)
	assert.Greater(t, len(fine), len(coarse))
}

func TestInterpolateDegenerateZeroAngleReturnsEndpoints(t *testing.T) {
	arc := geometry.Arc{
		Circle:             geometry.Circle{CX: 0, CY: 0, R: 5},
		Start:              geometry.Point{X: 5, Y: 0},
		End:                geometry.Point{X: 5, Y: 0},
		SignedAngleRadians: 0,
	}
	pts := Interpolate(arc, 0.01)
	assert.Len(t, pts, 2)
}

func TestInterpolateCarriesExtrusionAcrossSteps(t *testing.T) {
	circle := geometry.Circle{CX: 0, CY: 0, R: 10}
	start := geometry.Point{X: 10, Y: 0, E: 1}
	end := geometry.Point{X: -10, Y: 0, ERelative: 4, E: 5}
	arc := geometry.Arc{Circle: circle, Start: start, End: end, SignedAngleRadians: math.Pi, Length: math.Pi * 10}

	pts := Interpolate(arc, 0.05)
	assert.InDelta(t, 5, pts[len(pts)-1].E, 1e-9)
}
