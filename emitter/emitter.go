// Package emitter formats a fitted arc as one or more G2/G3 gcode lines:
// fixed parameter order, trimmed fixed-precision numbers, no F parameter,
// and analytic splitting when a line would exceed a configured byte
// length.
package emitter

import (
	"strconv"
	"strings"

	"arcwelder/geometry"
)

// Precision holds the per-axis fractional-digit counts the welder tracks
// dynamically. XYZ and IJ share one precision; E uses its own.
type Precision struct {
	XYZ int
	E   int
}

// Context is everything the emitter needs beyond the Arc itself to
// render it.
type Context struct {
	AbsoluteE      bool
	Precision      Precision
	MaxGcodeLength int
	Allow3DArcs    bool
	Comment        string
}

// Format renders arc as one or more gcode lines. When MaxGcodeLength is 0
// (no limit) or the single-arc rendering already fits, it returns exactly
// one line; otherwise it splits the arc into equal angular sub-arcs
// computed analytically from the true circle, per the Design Notes'
// "rotate the radius vector, don't subdivide the chord."
func Format(arc geometry.Arc, ctx Context) []string {
	line := formatOne(arc, ctx)
	if ctx.MaxGcodeLength <= 0 || len(line) <= ctx.MaxGcodeLength {
		return []string{line}
	}

	for n := 2; n <= 360; n++ {
		subArcs := split(arc, n)
		lines := make([]string, 0, n)
		fits := true
		for _, sub := range subArcs {
			l := formatOne(sub, ctx)
			if len(l) > ctx.MaxGcodeLength {
				fits = false
				break
			}
			lines = append(lines, l)
		}
		if fits {
			return lines
		}
	}

	// Could not split small enough; emit the unsplit line rather than
	// silently drop the move.
	return []string{line}
}

func formatOne(arc geometry.Arc, ctx Context) string {
	word := "G3"
	if arc.Direction() == geometry.CW {
		word = "G2"
	}

	var b strings.Builder
	b.WriteString(word)

	writeNum(&b, 'X', arc.End.X, ctx.Precision.XYZ)
	writeNum(&b, 'Y', arc.End.Y, ctx.Precision.XYZ)
	if ctx.Allow3DArcs && !floatsEqual(arc.End.Z, arc.Start.Z) {
		writeNum(&b, 'Z', arc.End.Z, ctx.Precision.XYZ)
	}
	writeNum(&b, 'I', arc.CX-arc.Start.X, ctx.Precision.XYZ)
	writeNum(&b, 'J', arc.CY-arc.Start.Y, ctx.Precision.XYZ)

	e := arc.ERelativeSum
	if ctx.AbsoluteE {
		e = arc.End.E
	}
	writeNum(&b, 'E', e, ctx.Precision.E)

	if ctx.Comment != "" {
		b.WriteByte(' ')
		b.WriteString(ctx.Comment)
	}

	return b.String()
}

func writeNum(b *strings.Builder, letter byte, v float64, precision int) {
	b.WriteByte(' ')
	b.WriteByte(letter)
	b.WriteString(formatFixed(v, precision))
}

// formatFixed renders v with precision fractional digits, trimming
// trailing zeros and the decimal point itself when nothing remains after
// it.
func formatFixed(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func floatsEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// split divides arc into n equal angular sub-arcs by rotating the radius
// vector from the circle's center, not by linearly interpolating chord
// midpoints, so cumulative drift across splits is zero.
func split(arc geometry.Arc, n int) []geometry.Arc {
	out := make([]geometry.Arc, 0, n)
	step := arc.SignedAngleRadians / float64(n)
	start := arc.Start
	zStep := (arc.End.Z - arc.Start.Z) / float64(n)
	eRelStep := arc.ERelativeSum / float64(n)
	eAbsStep := (arc.End.E - arc.Start.E) / float64(n)

	for i := 1; i <= n; i++ {
		end := arc.Circle.RotatePoint(arc.Start, step*float64(i), arc.Start.Z+zStep*float64(i))
		end.ERelative = eRelStep
		end.E = arc.Start.E + eAbsStep*float64(i)
		end.ExtruderRelative = arc.End.ExtruderRelative
		out = append(out, geometry.Arc{
			Circle:             arc.Circle,
			Start:              start,
			End:                end,
			SignedAngleRadians: step,
			Length:             arc.Length / float64(n),
			ERelativeSum:       eRelStep,
		})
		start = end
	}
	return out
}
