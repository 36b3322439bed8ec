package geometry

import (
	"errors"
	"math"
)

// Errors returned by the circle/arc predicates. These stay internal: the
// fitter turns them into a rejected point, they never propagate past
// that.
var (
	ErrColinear       = errors.New("geometry: points are colinear")
	ErrZeroRadius     = errors.New("geometry: radius is zero")
	ErrRadiusExceeded = errors.New("geometry: radius exceeds maximum")
)

// Circle is a circle in the XY plane.
type Circle struct {
	CX, CY float64
	R      float64
}

// circleColinearTolerance is the cross-product-magnitude threshold below
// which three points are treated as colinear.
const circleColinearTolerance = 1e-10

// CircleFromThreePoints constructs the circle passing through p0, p1, p2 via
// the standard perpendicular-bisector intersection. It fails with
// ErrColinear if the points are (nearly) colinear, ErrZeroRadius if the
// resulting radius is zero, and ErrRadiusExceeded if the radius is larger
// than maxRadius.
func CircleFromThreePoints(p0, p1, p2 Point, maxRadius float64) (Circle, error) {
	ax, ay := p0.X, p0.Y
	bx, by := p1.X, p1.Y
	cx, cy := p2.X, p2.Y

	d := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	if math.Abs(d) < circleColinearTolerance {
		return Circle{}, ErrColinear
	}

	aSq := ax*ax + ay*ay
	bSq := bx*bx + by*by
	cSq := cx*cx + cy*cy

	ux := (aSq*(by-cy) + bSq*(cy-ay) + cSq*(ay-by)) / d
	uy := (aSq*(cx-bx) + bSq*(ax-cx) + cSq*(bx-ax)) / d

	r := math.Hypot(ux-ax, uy-ay)
	if r <= equalTolerance {
		return Circle{}, ErrZeroRadius
	}
	if r > maxRadius {
		return Circle{}, ErrRadiusExceeded
	}

	return Circle{CX: ux, CY: uy, R: r}, nil
}

// FootOfPerpendicular projects q onto the segment a-b and returns the
// projection along with true, but only if the projection lies strictly
// between a and b (open interval). Otherwise it returns false.
func FootOfPerpendicular(a, b, q Point) (Point, bool) {
	abx, aby := b.X-a.X, b.Y-a.Y
	lenSq := abx*abx + aby*aby
	if lenSq <= equalTolerance {
		return Point{}, false
	}

	t := ((q.X-a.X)*abx + (q.Y-a.Y)*aby) / lenSq
	if t <= 0 || t >= 1 {
		return Point{}, false
	}

	return Point{
		X: a.X + t*abx,
		Y: a.Y + t*aby,
		Z: a.Z + t*(b.Z-a.Z),
	}, true
}

// DistanceToCenter returns the distance from p to the circle's center.
func (c Circle) DistanceToCenter(p Point) float64 {
	return math.Hypot(p.X-c.CX, p.Y-c.CY)
}

// RadiusDeviation returns |distance(p, center) - r|, the quantity every
// resolution check in the fitter compares against resolution_mm.
func (c Circle) RadiusDeviation(p Point) float64 {
	return math.Abs(c.DistanceToCenter(p) - c.R)
}

// RotatePoint rotates start about the circle's center by angle radians
// and places it at height z. Rotating the radius vector analytically —
// rather than subdividing chords — keeps the emitter's line-splitter and
// the simulator in package interpolate free of cumulative trigonometric
// error.
func (c Circle) RotatePoint(start Point, angle float64, z float64) Point {
	sin, cos := math.Sincos(angle)
	rx := start.X - c.CX
	ry := start.Y - c.CY
	return Point{
		X: c.CX + rx*cos - ry*sin,
		Y: c.CY + rx*sin + ry*cos,
		Z: z,
	}
}
