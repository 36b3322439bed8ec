package gcode

import "math"

// Position is an absolute machine position in millimeters.
type Position struct {
	X, Y, Z, E float64
}

// inToMM converts inches to millimeters.
const inToMM = 25.4

// Tracker turns a parsed Command into an updated absolute position,
// resolving G90/G91, M82/M83, G20/G21, and G92 along the way. It only
// tracks; it never queues a move.
type Tracker struct {
	g90g91InfluencesExtruder bool

	absoluteXYZ bool
	absoluteE   bool
	inches      bool

	feedrate float64
	pos      Position
	prevPos  Position
}

// NewTracker creates a Tracker in the gcode-standard initial state:
// absolute XYZ, absolute E, millimeters.
func NewTracker(g90g91InfluencesExtruder bool) *Tracker {
	return &Tracker{
		g90g91InfluencesExtruder: g90g91InfluencesExtruder,
		absoluteXYZ:              true,
		absoluteE:                true,
	}
}

// Position returns the current absolute position.
func (t *Tracker) Position() Position { return t.pos }

// AbsoluteXYZ reports the current G90/G91 mode.
func (t *Tracker) AbsoluteXYZ() bool { return t.absoluteXYZ }

// AbsoluteE reports the current extruder mode (M82/M83, or G90/G91 when
// g90_g91_influences_extruder is set).
func (t *Tracker) AbsoluteE() bool { return t.absoluteE }

// Feedrate returns the most recently seen feedrate (native units, as given
// on the F parameter).
func (t *Tracker) Feedrate() float64 { return t.feedrate }

// SetPosition forcibly overrides the tracked absolute position.
func (t *Tracker) SetPosition(p Position) { t.pos = p }

func (t *Tracker) scale(v float64) float64 {
	if t.inches {
		return v * inToMM
	}
	return v
}

// Apply updates the tracker's state from cmd and returns the position
// before and after the command, plus the E delta (e_relative) the move
// produced. For commands with no motion (mode changes, M-codes, comments)
// prev == current and eRelative == 0.
func (t *Tracker) Apply(cmd *Command) (prev, current Position, eRelative float64) {
	prev = t.pos

	switch cmd.Type {
	case 'G':
		t.applyG(cmd)
	case 'M':
		t.applyM(cmd)
	}

	current = t.pos
	eRelative = current.E - prev.E
	t.prevPos = prev
	return prev, current, eRelative
}

func (t *Tracker) applyG(cmd *Command) {
	switch cmd.Number {
	case 0, 1:
		t.applyLinearMove(cmd)
	case 2, 3:
		t.applyArcMove(cmd)
	case 20:
		t.inches = true
	case 21:
		t.inches = false
	case 90:
		t.absoluteXYZ = true
		if t.g90g91InfluencesExtruder {
			t.absoluteE = true
		}
	case 91:
		t.absoluteXYZ = false
		if t.g90g91InfluencesExtruder {
			t.absoluteE = false
		}
	case 92:
		t.applySetPosition(cmd)
	}
}

func (t *Tracker) applyM(cmd *Command) {
	switch cmd.Number {
	case 82:
		t.absoluteE = true
	case 83:
		t.absoluteE = false
	}
}

func (t *Tracker) applyLinearMove(cmd *Command) {
	if cmd.Has('F') {
		t.feedrate = cmd.Get('F', t.feedrate)
	}
	t.pos.X = t.resolveAxis(cmd, 'X', t.pos.X)
	t.pos.Y = t.resolveAxis(cmd, 'Y', t.pos.Y)
	t.pos.Z = t.resolveAxis(cmd, 'Z', t.pos.Z)
	t.pos.E = t.resolveExtruder(cmd, t.pos.E)
}

// applyArcMove tracks position across a passthrough G2/G3 (one the welder
// forwards unchanged because it appeared in the input), and normalizes an
// R-radius-form arc to I,J center-offset form in place so downstream
// consumers only ever see one arc notation.
func (t *Tracker) applyArcMove(cmd *Command) {
	if cmd.Has('F') {
		t.feedrate = cmd.Get('F', t.feedrate)
	}

	start := t.pos
	endX := t.resolveAxis(cmd, 'X', start.X)
	endY := t.resolveAxis(cmd, 'Y', start.Y)
	endZ := t.resolveAxis(cmd, 'Z', start.Z)

	if cmd.Has('R') && !cmd.Has('I') && !cmd.Has('J') {
		i, j := radiusToOffset(start.X, start.Y, endX, endY, t.scale(cmd.Get('R', 0)), cmd.Number == 2)
		delete(cmd.Params, 'R')
		cmd.Params['I'] = i
		cmd.Params['J'] = j
	}

	t.pos.X = endX
	t.pos.Y = endY
	t.pos.Z = endZ
	t.pos.E = t.resolveExtruder(cmd, t.pos.E)
}

// radiusToOffset converts R-radius arc notation to I,J center-offset
// notation. A negative radius selects the larger of the two candidate
// centers; an R shorter than half the chord is clamped to the minimum
// geometrically possible radius.
func radiusToOffset(startX, startY, endX, endY, radius float64, clockwise bool) (i, j float64) {
	dist := math.Hypot(endX-startX, endY-startY)
	if dist <= 1e-9 {
		return 0, 0
	}
	absR := math.Abs(radius)
	if dist > absR*2 {
		absR = dist / 2
	}

	theta := math.Atan2(endY-startY, endX-startX)
	if (clockwise && radius > 0) || (!clockwise && radius < 0) {
		theta -= math.Pi / 2
	} else {
		theta += math.Pi / 2
	}

	offset := absR * math.Cos(math.Asin(dist/(absR*2)))
	cx := (startX+endX)/2 + offset*math.Cos(theta)
	cy := (startY+endY)/2 + offset*math.Sin(theta)
	return cx - startX, cy - startY
}

func (t *Tracker) applySetPosition(cmd *Command) {
	if cmd.Has('X') {
		t.pos.X = t.scale(cmd.Get('X', 0))
	}
	if cmd.Has('Y') {
		t.pos.Y = t.scale(cmd.Get('Y', 0))
	}
	if cmd.Has('Z') {
		t.pos.Z = t.scale(cmd.Get('Z', 0))
	}
	if cmd.Has('E') {
		t.pos.E = t.scale(cmd.Get('E', 0))
	}
}

func (t *Tracker) resolveAxis(cmd *Command, axis byte, current float64) float64 {
	if !cmd.Has(axis) {
		return current
	}
	v := t.scale(cmd.Get(axis, 0))
	if t.absoluteXYZ {
		return v
	}
	return current + v
}

func (t *Tracker) resolveExtruder(cmd *Command, current float64) float64 {
	if !cmd.Has('E') {
		return current
	}
	v := t.scale(cmd.Get('E', 0))
	if t.absoluteE {
		return v
	}
	return current + v
}
