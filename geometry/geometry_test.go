package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircleFromThreePoints(t *testing.T) {
	c, err := CircleFromThreePoints(
		Point{X: 10, Y: 0},
		Point{X: 0, Y: 10},
		Point{X: -10, Y: 0},
		1000,
	)
	require.NoError(t, err)
	assert.InDelta(t, 0, c.CX, 1e-9)
	assert.InDelta(t, 0, c.CY, 1e-9)
	assert.InDelta(t, 10, c.R, 1e-9)
}

func TestCircleFromThreePointsColinear(t *testing.T) {
	_, err := CircleFromThreePoints(
		Point{X: 0, Y: 0},
		Point{X: 1, Y: 1},
		Point{X: 2, Y: 2},
		1000,
	)
	assert.ErrorIs(t, err, ErrColinear)
}

func TestCircleFromThreePointsRadiusExceeded(t *testing.T) {
	_, err := CircleFromThreePoints(
		Point{X: 10, Y: 0},
		Point{X: 0, Y: 10},
		Point{X: -10, Y: 0},
		5,
	)
	assert.ErrorIs(t, err, ErrRadiusExceeded)
}

func TestFootOfPerpendicularInside(t *testing.T) {
	foot, ok := FootOfPerpendicular(Point{X: 0, Y: 0}, Point{X: 10, Y: 0}, Point{X: 5, Y: 5})
	require.True(t, ok)
	assert.InDelta(t, 5, foot.X, 1e-9)
	assert.InDelta(t, 0, foot.Y, 1e-9)
}

func TestFootOfPerpendicularOutsideSegment(t *testing.T) {
	_, ok := FootOfPerpendicular(Point{X: 0, Y: 0}, Point{X: 10, Y: 0}, Point{X: 15, Y: 5})
	assert.False(t, ok)
}

func TestArcFromCircleAndPointsPentagonCCW(t *testing.T) {
	// Four sides of a pentagon inscribed in a circle of radius 10 centered
	// at the origin, traveled counter-clockwise. The polyline runs 6.9%
	// short of the swept arc (chords vs. circumference), so the tolerance
	// must clear that for the fit to succeed.
	c := Circle{CX: 0, CY: 0, R: 10}
	pts := []Point{
		{X: 10, Y: 0},
		{X: 3.09016994, Y: 9.51056516},
		{X: -8.09016994, Y: 5.87785252},
		{X: -8.09016994, Y: -5.87785252},
		{X: 3.09016994, Y: -9.51056516},
	}
	polylineLength := 0.0
	for i := 1; i < len(pts); i++ {
		polylineLength += XYDistance(pts[i-1], pts[i])
	}

	arc, err := ArcFromCircleAndPoints(c, pts, polylineLength, false, 0.08)
	require.NoError(t, err)
	assert.Equal(t, CCW, arc.Direction())
	assert.InDelta(t, twoPi*4/5, arc.SignedAngleRadians, 1e-6)
	assert.InDelta(t, twoPi*10*4/5, arc.Length, 1e-4)
}

func TestArcFromCircleAndPointsRejectsTightTolerance(t *testing.T) {
	// Same geometry as above but at a 5% path tolerance, which the 6.9%
	// chord shortfall exceeds.
	c := Circle{CX: 0, CY: 0, R: 10}
	pts := []Point{
		{X: 10, Y: 0},
		{X: 3.09016994, Y: 9.51056516},
		{X: -8.09016994, Y: 5.87785252},
		{X: -8.09016994, Y: -5.87785252},
		{X: 3.09016994, Y: -9.51056516},
	}
	polylineLength := 0.0
	for i := 1; i < len(pts); i++ {
		polylineLength += XYDistance(pts[i-1], pts[i])
	}

	_, err := ArcFromCircleAndPoints(c, pts, polylineLength, false, 0.05)
	assert.ErrorIs(t, err, ErrArcLengthMismatch)
}

// TestColinearSamplesNeverYieldCircle: colinear samples never reach
// ArcFromCircleAndPoints, because the circle through the first, middle and
// last sample (the one the fitter builds) fails with ErrColinear.
func TestColinearSamplesNeverYieldCircle(t *testing.T) {
	pts := []Point{
		{X: -2, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0},
	}
	_, err := CircleFromThreePoints(pts[0], pts[2], pts[4], 1000)
	assert.ErrorIs(t, err, ErrColinear)
}

func TestRotatePointRoundTrip(t *testing.T) {
	c := Circle{CX: 0, CY: 0, R: 10}
	start := Point{X: 10, Y: 0, Z: 0}
	rotated := c.RotatePoint(start, math.Pi/2, 0)
	assert.InDelta(t, 0, rotated.X, 1e-9)
	assert.InDelta(t, 10, rotated.Y, 1e-9)
}

// TestArcFromCircleAndPointsFullCircle: start and end coincide, so the
// real sweep can only be told apart from a zero-length degenerate case
// by where the mid sample falls.
func TestArcFromCircleAndPointsFullCircle(t *testing.T) {
	c := Circle{CX: 0, CY: 0, R: 10}
	pts := []Point{
		{X: 10, Y: 0},
		{X: 0, Y: -10},
		{X: 10, Y: 0},
	}
	arc, err := ArcFromCircleAndPoints(c, pts, twoPi*10, false, 0.05)
	require.NoError(t, err)
	assert.Equal(t, CW, arc.Direction())
	assert.InDelta(t, -twoPi, arc.SignedAngleRadians, 1e-9)
	assert.InDelta(t, twoPi*10, arc.Length, 1e-9)
}

func TestArcFromCircleAndPointsAmbiguousWhenMidCoincidesWithStart(t *testing.T) {
	c := Circle{CX: 0, CY: 0, R: 10}
	start := Point{X: 10, Y: 0}
	_, err := ArcFromCircleAndPoints(c, []Point{start, start, start}, twoPi*10, false, 0.05)
	assert.ErrorIs(t, err, ErrAmbiguousDirection)
}

func TestArcXYPlaneSign(t *testing.T) {
	center := Point{X: 0, Y: 0}
	ccwPts := []Point{{X: 10, Y: 0}, {X: 0, Y: 10}, {X: -10, Y: 0}}
	assert.Equal(t, CCW, ArcXYPlaneSign(center, ccwPts))

	cwPts := []Point{{X: 10, Y: 0}, {X: 0, Y: -10}, {X: -10, Y: 0}}
	assert.Equal(t, CW, ArcXYPlaneSign(center, cwPts))
}
