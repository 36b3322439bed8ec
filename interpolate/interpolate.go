// Package interpolate implements the inverse processor: it expands a
// committed arc back into a polyline, the way a firmware's arc
// interpolator (G2/G3 -> many small G1 segments) would. It shares only
// data types with the welder and exists as the round-trip oracle for
// tests. The step count is deviation-bounded via the chord-sagitta
// formula, so no point of the true arc strays from the returned polyline
// by more than the requested resolution.
package interpolate

import (
	"math"

	"arcwelder/geometry"
)

// Interpolate expands arc into a sequence of points (including both
// endpoints) such that no point on the true circular arc deviates from the
// returned polyline by more than resolutionMM.
func Interpolate(arc geometry.Arc, resolutionMM float64) []geometry.Point {
	angle := math.Abs(arc.SignedAngleRadians)
	if angle <= 0 || arc.R <= 0 {
		return []geometry.Point{arc.Start, arc.End}
	}

	// Deviation-bounded step count: the maximum chord-sagitta error for a
	// step of angular size theta is r*(1-cos(theta/2)); solve for theta
	// given the allowed resolution.
	maxStepAngle := 2 * math.Acos(1-clamp01(resolutionMM/arc.R))
	if maxStepAngle <= 0 || math.IsNaN(maxStepAngle) {
		maxStepAngle = angle
	}
	steps := int(math.Ceil(angle / maxStepAngle))
	if steps < 1 {
		steps = 1
	}

	points := make([]geometry.Point, 0, steps+1)
	points = append(points, arc.Start)

	step := arc.SignedAngleRadians / float64(steps)
	zStep := (arc.End.Z - arc.Start.Z) / float64(steps)
	eRelStep := arc.ERelativeSum / float64(steps)
	eAbsStep := (arc.End.E - arc.Start.E) / float64(steps)

	for i := 1; i <= steps; i++ {
		p := arc.Circle.RotatePoint(arc.Start, step*float64(i), arc.Start.Z+zStep*float64(i))
		p.ERelative = eRelStep
		p.E = arc.Start.E + eAbsStep*float64(i)
		p.ExtruderRelative = arc.End.ExtruderRelative
		points = append(points, p)
	}
	// Force the last point to the arc's recorded endpoint exactly, so
	// downstream comparisons against the original polyline's final vertex
	// are not perturbed by trigonometric rounding.
	points[len(points)-1] = arc.End
	return points
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
