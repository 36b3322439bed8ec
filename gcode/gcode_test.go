package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineMotion(t *testing.T) {
	tok := NewTokenizer()
	cmd, err := tok.ParseLine("G1 X10 Y-3.5 E0.125 F1200 ; comment")
	require.NoError(t, err)
	assert.Equal(t, byte('G'), cmd.Type)
	assert.Equal(t, 1, cmd.Number)
	assert.InDelta(t, 10, cmd.Get('X', 0), 1e-9)
	assert.InDelta(t, -3.5, cmd.Get('Y', 0), 1e-9)
	assert.InDelta(t, 0.125, cmd.Get('E', 0), 1e-9)
	assert.InDelta(t, 1200, cmd.Get('F', 0), 1e-9)
	assert.Equal(t, "; comment", cmd.Comment)
}

func TestParseLineBlank(t *testing.T) {
	tok := NewTokenizer()
	cmd, err := tok.ParseLine("")
	require.NoError(t, err)
	assert.True(t, cmd.IsBlankOrComment())
}

func TestParseLineCommentOnly(t *testing.T) {
	tok := NewTokenizer()
	cmd, err := tok.ParseLine(";layer 1")
	require.NoError(t, err)
	assert.Equal(t, ";layer 1", cmd.Comment)
}

func TestParseLineMalformed(t *testing.T) {
	tok := NewTokenizer()
	cmd, err := tok.ParseLine("G")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "G", cmd.Raw)
}

func TestParseLineLineNumbersIncrement(t *testing.T) {
	tok := NewTokenizer()
	_, _ = tok.ParseLine("G1 X1")
	cmd, _ := tok.ParseLine("G1 X2")
	assert.Equal(t, 2, cmd.Line)
}

func TestTrackerAbsoluteMoves(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)

	cmd, _ := tok.ParseLine("G1 X10 Y5 Z0.2 E1 F1200")
	prev, cur, eRel := tr.Apply(cmd)
	assert.Equal(t, Position{}, prev)
	assert.Equal(t, Position{X: 10, Y: 5, Z: 0.2, E: 1}, cur)
	assert.InDelta(t, 1, eRel, 1e-9)
}

func TestTrackerRelativeMode(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)

	cmd, _ := tok.ParseLine("G91")
	tr.Apply(cmd)

	cmd, _ = tok.ParseLine("G1 X5 Y5 E1")
	_, cur, eRel := tr.Apply(cmd)
	assert.Equal(t, Position{X: 5, Y: 5, Z: 0, E: 1}, cur)
	assert.InDelta(t, 1, eRel, 1e-9)

	// G91 makes XYZ relative; without g90_g91_influences_extruder E stays
	// absolute, so the second E1 sets E to 1 again.
	cmd, _ = tok.ParseLine("G1 X5 Y5 E1")
	_, cur, _ = tr.Apply(cmd)
	assert.Equal(t, Position{X: 10, Y: 10, Z: 0, E: 1}, cur)
}

func TestTrackerM82M83(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)
	cmd, _ := tok.ParseLine("M83")
	tr.Apply(cmd)
	assert.False(t, tr.AbsoluteE())

	cmd, _ = tok.ParseLine("G1 X1 E2")
	_, cur, eRel := tr.Apply(cmd)
	assert.InDelta(t, 2, cur.E, 1e-9)
	assert.InDelta(t, 2, eRel, 1e-9)

	cmd, _ = tok.ParseLine("G1 X2 E2")
	_, cur, eRel = tr.Apply(cmd)
	assert.InDelta(t, 4, cur.E, 1e-9)
	assert.InDelta(t, 2, eRel, 1e-9)
}

func TestTrackerG92Resync(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)
	cmd, _ := tok.ParseLine("G1 X1 E5")
	tr.Apply(cmd)

	cmd, _ = tok.ParseLine("G92 E0")
	_, cur, _ := tr.Apply(cmd)
	assert.InDelta(t, 0, cur.E, 1e-9)

	cmd, _ = tok.ParseLine("G1 X2 E1")
	_, cur, eRel := tr.Apply(cmd)
	assert.InDelta(t, 1, cur.E, 1e-9)
	assert.InDelta(t, 1, eRel, 1e-9)
}

func TestTrackerRadiusToOffsetNormalization(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)

	cmd, _ := tok.ParseLine("G1 X10 Y0")
	tr.Apply(cmd)

	cmd, _ = tok.ParseLine("G3 X0 Y10 R10")
	_, cur, _ := tr.Apply(cmd)
	assert.InDelta(t, 0, cur.X, 1e-9)
	assert.InDelta(t, 10, cur.Y, 1e-9)
	assert.False(t, cmd.Has('R'))
	i := cmd.Get('I', 0)
	j := cmd.Get('J', 0)
	// Center should be equidistant (within tolerance) from both the
	// start and end points.
	distStart := (i)*(i) + (j)*(j)
	distEnd := (i-(-10))*(i-(-10)) + (j-10)*(j-10)
	assert.InDelta(t, distStart, distEnd, 1e-6)
}

func TestTrackerInches(t *testing.T) {
	tok := NewTokenizer()
	tr := NewTracker(false)
	cmd, _ := tok.ParseLine("G20")
	tr.Apply(cmd)

	cmd, _ = tok.ParseLine("G1 X1")
	_, cur, _ := tr.Apply(cmd)
	assert.InDelta(t, 25.4, cur.X, 1e-9)
}
