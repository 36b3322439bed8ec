package geometry

import (
	"errors"
	"math"
)

// Direction encodes the winding sense of an arc's sweep: negative angle is
// clockwise (G2), positive is counter-clockwise (G3).
type Direction int

const (
	CW  Direction = -1
	CCW Direction = 1
)

// Arc is a circular-plane path segment: a Circle plus its start/end points
// and signed angular sweep.
type Arc struct {
	Circle
	Start, End Point

	// SignedAngleRadians encodes direction: negative = CW = G2, positive
	// = CCW = G3.
	SignedAngleRadians float64

	// Length is the absolute arc length (Pythagoras with any Z delta
	// when 3D arcs are allowed).
	Length float64

	// ERelativeSum is the total relative extrusion across the sampled
	// points (excluding the anchor), carried for emission in
	// extruder-relative mode.
	ERelativeSum float64
}

// Direction reports the arc's winding sense.
func (a Arc) Direction() Direction {
	if a.SignedAngleRadians < 0 {
		return CW
	}
	return CCW
}

// ErrArcLengthMismatch is returned when the fitted arc's length disagrees
// with the sampled polyline's length by more than path_tolerance_percent.
var ErrArcLengthMismatch = errors.New("geometry: arc length does not match polyline length within tolerance")

// ErrAmbiguousDirection is returned when the middle sample point lies
// exactly on the start->end chord and neither winding direction's arc
// length agrees with the polyline length within tolerance.
var ErrAmbiguousDirection = errors.New("geometry: arc direction is ambiguous")

const twoPi = 2 * math.Pi

// normalizeAngle reduces a to the half-open interval [0, 2pi).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// sweepEps absorbs floating error when deciding which side of the
// start->end chord the midpoint sample falls on.
const sweepEps = 1e-9

// ArcFromCircleAndPoints computes the arc traced by circle through the
// ordered sample points, choosing direction so the points[mid] sample lies
// on the traversed side (tie-broken by which direction's length matches
// originalPolylineLength within tolerancePercent), and validates that the
// resulting arc length agrees with originalPolylineLength within
// tolerancePercent. allow3D controls whether a Z delta between the first
// and last point contributes to the arc length via Pythagoras, or is
// ignored (2D-only arc length).
func ArcFromCircleAndPoints(circle Circle, points []Point, originalPolylineLength float64, allow3D bool, tolerancePercent float64) (Arc, error) {
	if len(points) < 3 {
		return Arc{}, ErrAmbiguousDirection
	}
	start := points[0]
	end := points[len(points)-1]
	mid := points[len(points)/2]

	angleStart := math.Atan2(start.Y-circle.CY, start.X-circle.CX)
	angleEnd := math.Atan2(end.Y-circle.CY, end.X-circle.CX)
	angleMid := math.Atan2(mid.Y-circle.CY, mid.X-circle.CX)

	relEnd := normalizeAngle(angleEnd - angleStart)
	relMid := normalizeAngle(angleMid - angleStart)

	onCCW := relMid <= relEnd+sweepEps
	onCW := relMid >= relEnd-sweepEps

	var ccwAngle, cwAngle float64
	if relEnd <= sweepEps {
		// Start and end coincide (or nearly so): either a full circle
		// or a degenerate zero-sweep. Use the midpoint to tell which —
		// any nonzero relMid means the path actually travels all the
		// way around.
		if relMid > sweepEps {
			ccwAngle = twoPi
			cwAngle = -twoPi
		} else {
			return Arc{}, ErrAmbiguousDirection
		}
	} else {
		ccwAngle = relEnd
		cwAngle = relEnd - twoPi
	}

	arcLength := func(angle float64) float64 {
		r := circle.R
		planar := math.Abs(angle) * r
		if allow3D {
			dz := end.Z - start.Z
			if dz != 0 {
				return math.Hypot(planar, dz)
			}
		}
		return planar
	}

	withinTolerance := func(length float64) bool {
		if originalPolylineLength <= equalTolerance {
			return false
		}
		return math.Abs(length-originalPolylineLength)/originalPolylineLength <= tolerancePercent
	}

	var chosenAngle float64
	switch {
	case onCCW && !onCW:
		chosenAngle = ccwAngle
	case onCW && !onCCW:
		chosenAngle = cwAngle
	default:
		// Tie: midpoint exactly on the start->end chord. Pick whichever
		// direction's length agrees with the polyline length.
		ccwLen := arcLength(ccwAngle)
		cwLen := arcLength(cwAngle)
		switch {
		case withinTolerance(ccwLen):
			chosenAngle = ccwAngle
		case withinTolerance(cwLen):
			chosenAngle = cwAngle
		default:
			return Arc{}, ErrAmbiguousDirection
		}
	}

	length := arcLength(chosenAngle)
	if !withinTolerance(length) {
		return Arc{}, ErrArcLengthMismatch
	}

	var eSum float64
	for _, p := range points[1:] {
		eSum += p.ERelative
	}

	return Arc{
		Circle:             circle,
		Start:              start,
		End:                end,
		SignedAngleRadians: chosenAngle,
		Length:             length,
		ERelativeSum:       eSum,
	}, nil
}

// ArcXYPlaneSign determines winding direction purely from the signed area
// of the polyline relative to the circle's center, without requiring the
// tolerance-matching performed by ArcFromCircleAndPoints. It is used where
// only the sign is needed (e.g. diagnostics), not a validated Arc.
func ArcXYPlaneSign(center Point, points []Point) Direction {
	var signedArea float64
	for i := 0; i < len(points)-1; i++ {
		p0 := points[i]
		p1 := points[i+1]
		signedArea += (p0.X-center.X)*(p1.Y-center.Y) - (p1.X-center.X)*(p0.Y-center.Y)
	}
	if signedArea < 0 {
		return CW
	}
	return CCW
}
