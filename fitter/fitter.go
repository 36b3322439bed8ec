// Package fitter implements the segmented-arc fitter: the rolling
// hypothesis-testing state machine that decides whether a run of sampled
// points can be replaced by a single circular arc. One struct, plain
// methods, no virtual dispatch; every geometric failure surfaces as a
// rejected point, never as an error.
package fitter

import (
	"arcwelder/buffer"
	"arcwelder/geometry"
)

// AddResult is the outcome of a TryAddPoint call.
type AddResult int

const (
	Added AddResult = iota
	Rejected
	BufferFull
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "Added"
	case Rejected:
		return "Rejected"
	case BufferFull:
		return "BufferFull"
	default:
		return "Unknown"
	}
}

// Config holds the tuning parameters that govern the fitter's geometric
// tolerances.
type Config struct {
	MinSegments          int
	MaxSegments          int
	ResolutionMM         float64
	PathTolerancePercent float64
	MaxRadiusMM          float64
	Allow3DArcs          bool
}

// Fitter owns the rolling point buffer, the currently hypothesized
// circle, the running polyline length, and the accumulated relative
// extrusion of the buffered points.
type Fitter struct {
	cfg Config

	points              *buffer.Points
	circle              geometry.Circle
	isShape             bool
	originalShapeLength float64
	eRelativeTotal      float64

	// zTrend is the sign of Z travel across the buffered points when 3D
	// arcs are enabled: Z must vary monotonically within one arc. Zero
	// until the first Z-changing segment is accepted.
	zTrend int
}

// New creates a Fitter with an empty buffer.
func New(cfg Config) *Fitter {
	return &Fitter{
		cfg:    cfg,
		points: buffer.NewPoints(cfg.MaxSegments),
	}
}

// Count returns the number of points currently buffered.
func (f *Fitter) Count() int { return f.points.Count() }

// IsShape reports whether the fitter currently holds a valid hypothesized
// circle (i.e. has reached min_segments and passed its provisional fit).
func (f *Fitter) IsShape() bool { return f.isShape }

// PolylineLength returns the running sum of XY chord lengths between
// consecutive buffered points.
func (f *Fitter) PolylineLength() float64 { return f.originalShapeLength }

// ERelativeTotal returns the accumulated e_relative across all buffered
// points excluding the anchor.
func (f *Fitter) ERelativeTotal() float64 { return f.eRelativeTotal }

// midIndex computes the index of the middle sample point used to build a
// test circle, given the buffer's point count *before* the candidate
// point is (tentatively) appended — the index that lands on the midpoint
// of the resulting count+1 point buffer.
func midIndex(beforeCount int) int {
	return (beforeCount-2)/2 + 1
}

// TryAddPoint attempts to add p (whose ERelative is the extrusion delta
// from the previous point) to the fitter's buffer. The first point of a
// fresh buffer anchors unconditionally; after that a point is admitted
// only if every buffered sample still fits one circle within tolerance.
func (f *Fitter) TryAddPoint(p geometry.Point) AddResult {
	if f.points.Count() == 0 {
		f.points.Append(p)
		return Added
	}

	prev, _ := f.points.Last()

	if f.points.Count() >= f.cfg.MaxSegments {
		return BufferFull
	}
	if geometry.IsZeroDistance(prev, p) {
		return Rejected
	}
	zSign := zDirection(prev.Z, p.Z)
	if zSign != 0 {
		if !f.cfg.Allow3DArcs {
			return Rejected
		}
		if f.zTrend != 0 && zSign != f.zTrend {
			return Rejected
		}
	}

	var result AddResult
	if f.points.Count() < f.cfg.MinSegments-1 {
		result = f.appendProvisional(p)
	} else {
		result = f.extendOrSlide(p, prev)
	}
	if result == Added && zSign != 0 && f.zTrend == 0 {
		f.zTrend = zSign
	}
	return result
}

func zDirection(prevZ, z float64) int {
	if zEqual(prevZ, z) {
		return 0
	}
	if z > prevZ {
		return 1
	}
	return -1
}

func zEqual(a, b float64) bool {
	const zTolerance = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= zTolerance
}

// appendProvisional appends unconditionally while the buffer is below
// min_segments-1. TryAddPoint calls it only then, so the append never
// brings the buffer to min_segments and the provisional-fit branch below
// does not fire; the point that reaches min_segments is fitted by
// extendOrSlide instead.
func (f *Fitter) appendProvisional(p geometry.Point) AddResult {
	prev, _ := f.points.Last()
	distance := geometry.XYDistance(prev, p)

	f.points.Append(p)
	f.originalShapeLength += distance

	if f.points.Count() == f.cfg.MinSegments {
		beforeCount := f.cfg.MinSegments - 1
		mid := midIndex(beforeCount)
		pts := f.points.All()
		circle, err := geometry.CircleFromThreePoints(pts[0], pts[mid], pts[len(pts)-1], f.cfg.MaxRadiusMM)
		if err != nil || !f.doesCircleFitAll(circle) {
			f.points.PopBack()
			f.originalShapeLength -= distance
			return Rejected
		}
		f.circle = circle
		f.isShape = true
	}

	f.eRelativeTotal += p.ERelative
	return Added
}

// extendOrSlide tries to extend the current hypothesized arc; on failure
// it either rejects outright (buffer already at min_segments) or slides
// the window forward and retries once.
func (f *Fitter) extendOrSlide(p geometry.Point, prev geometry.Point) AddResult {
	distance := geometry.XYDistance(prev, p)

	if f.tryExtendArc(p, distance) {
		f.isShape = true
		f.eRelativeTotal += p.ERelative
		return Added
	}

	if f.points.Count() >= f.cfg.MinSegments {
		return Rejected
	}

	if f.points.Count() > 1 {
		old, _ := f.points.PopFront()
		newAnchor := f.points.At(0)
		f.originalShapeLength -= geometry.XYDistance(old, newAnchor)
		f.eRelativeTotal -= newAnchor.ERelative
		return f.TryAddPoint(p)
	}

	return Rejected
}

// tryExtendArc tests whether p extends the buffered samples to a larger
// arc. On success it installs the test circle as the fitter's current
// hypothesis and returns true; on failure it leaves the buffer exactly
// as it was.
func (f *Fitter) tryExtendArc(p geometry.Point, distance float64) bool {
	beforeCount := f.points.Count()
	mid := midIndex(beforeCount)
	pts := f.points.All()
	if mid < 0 || mid >= len(pts) {
		return false
	}

	testCircle, err := geometry.CircleFromThreePoints(pts[0], pts[mid], p, f.cfg.MaxRadiusMM)
	if err != nil {
		return false
	}

	f.points.Append(p)
	previousLength := f.originalShapeLength
	f.originalShapeLength += distance

	if !f.doesCircleFitAll(testCircle) {
		f.points.PopBack()
		f.originalShapeLength = previousLength
		return false
	}

	f.circle = testCircle
	return true
}

// doesCircleFitAll checks every buffered point and every chord-foot
// against the candidate circle within resolution_mm, then confirms the
// arc-length-vs-polyline-length tolerance via geometry.ArcFromCircleAndPoints.
func (f *Fitter) doesCircleFitAll(c geometry.Circle) bool {
	pts := f.points.All()

	for i := 1; i < len(pts); i++ {
		if c.RadiusDeviation(pts[i]) > f.cfg.ResolutionMM {
			return false
		}
	}

	for i := 0; i < len(pts)-1; i++ {
		foot, ok := geometry.FootOfPerpendicular(pts[i], pts[i+1], geometry.Point{X: c.CX, Y: c.CY})
		if !ok {
			continue
		}
		if c.RadiusDeviation(foot) > f.cfg.ResolutionMM {
			return false
		}
	}

	_, err := geometry.ArcFromCircleAndPoints(c, pts, f.originalShapeLength, f.cfg.Allow3DArcs, f.cfg.PathTolerancePercent)
	return err == nil
}

// CommitArc returns the currently fitted Arc and resets the fitter to a
// fresh state anchored at the arc's endpoint.
func (f *Fitter) CommitArc() (geometry.Arc, bool) {
	pts := f.points.All()
	arc, err := geometry.ArcFromCircleAndPoints(f.circle, pts, f.originalShapeLength, f.cfg.Allow3DArcs, f.cfg.PathTolerancePercent)
	if err != nil {
		return geometry.Arc{}, false
	}

	endpoint := arc.End
	f.reset(&endpoint)
	return arc, true
}

// AbortArc resets the fitter, anchoring the fresh buffer at the last
// buffered point's position. The caller is responsible for flushing the
// buffered raw lines.
func (f *Fitter) AbortArc() {
	last, ok := f.points.Last()
	if !ok {
		f.reset(nil)
		return
	}
	f.reset(&last)
}

// AnchorAt resets the fitter to a fresh buffer anchored at p, overriding
// whatever the buffer's last point was. The welder uses this when a
// point is forwarded verbatim instead of being offered to the fitter at
// all — the machine has moved, so the next candidate arc must start from
// p rather than from whatever was buffered last.
func (f *Fitter) AnchorAt(p geometry.Point) {
	f.reset(&p)
}

func (f *Fitter) reset(anchor *geometry.Point) {
	f.points.Reset(anchor)
	f.circle = geometry.Circle{}
	f.isShape = false
	f.originalShapeLength = 0
	f.eRelativeTotal = 0
	f.zTrend = 0
}

// Points exposes the buffered points in traversal order (the welder reads
// the last one for its Z and extrusion-rate pre-filters).
func (f *Fitter) Points() []geometry.Point {
	return f.points.All()
}
